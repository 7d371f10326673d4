package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/n0madic/go-zai2api/internal/auth"
	"github.com/n0madic/go-zai2api/internal/config"
	"github.com/n0madic/go-zai2api/internal/types"
	"github.com/n0madic/go-zai2api/internal/upstream"
)

func postChat(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

// sseChunks parses an OpenAI SSE body into chunks and reports whether the
// [DONE] sentinel closed it.
func sseChunks(t *testing.T, body string) ([]types.ChatCompletionChunk, bool) {
	t.Helper()
	var chunks []types.ChatCompletionChunk
	done := false
	for _, frame := range strings.Split(body, "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		payload, ok := strings.CutPrefix(frame, "data: ")
		if !ok {
			t.Fatalf("frame without data prefix: %q", frame)
		}
		if done {
			t.Fatalf("frame after [DONE]: %q", frame)
		}
		if payload == "[DONE]" {
			done = true
			continue
		}
		var c types.ChatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			t.Fatalf("decode chunk %q: %v", payload, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, done
}

func TestChatCompletionsNonStreaming(t *testing.T) {
	up := &queuedUpstreamClient{results: []queuedUpstreamResult{{
		body: sseBody(answerFrame("Hello"), answerFrame(", world"), doneFrame),
	}}}
	s := newCompatTestServer(nil, up)

	rr := postChat(t, s, `{"model":"GLM-4.5","messages":[{"role":"user","content":"hi"}],"stream":false}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d body=%s", rr.Code, rr.Body.String())
	}

	var resp types.ChatCompletionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Object != "chat.completion" || resp.Model != "GLM-4.5" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if !strings.HasPrefix(resp.ID, "chatcmpl-") {
		t.Fatalf("unexpected id: %q", resp.ID)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "Hello, world" {
		t.Fatalf("unexpected choices: %+v", resp.Choices)
	}
	if fr := resp.Choices[0].FinishReason; fr == nil || *fr != "stop" {
		t.Fatalf("finish reason: %v", fr)
	}
	if resp.Usage == nil {
		t.Fatal("expected usage object")
	}

	if len(up.calls) != 1 {
		t.Fatalf("upstream calls: %d", len(up.calls))
	}
	call := up.calls[0]
	if call.token != "anon-token" {
		t.Fatalf("token: %q", call.token)
	}
	if call.req.Model != "0727-360B-API" || !call.req.Stream {
		t.Fatalf("unexpected upstream request: model=%q stream=%v", call.req.Model, call.req.Stream)
	}
	if call.req.Params.MaxTokens != 80000 || call.req.Params.TopP != 0.95 {
		t.Fatalf("unexpected params: %+v", call.req.Params)
	}
}

func TestChatCompletionsStreaming(t *testing.T) {
	thinking := `{"type":"chat:completion","data":{"delta_content":"<details type=\"reasoning\"><summary>Thinking…</summary>\n> plan","phase":"thinking"}}`
	usage := `{"type":"chat:completion","data":{"phase":"answer","delta_content":"","usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}}`
	up := &queuedUpstreamClient{results: []queuedUpstreamResult{{
		body: sseBody(thinking, answerFrame("Hi"), `not json`, usage, doneFrame, answerFrame("ignored")),
	}}}
	s := newCompatTestServer(nil, up)

	rr := postChat(t, s, `{"model":"glm-4.5","messages":[{"role":"user","content":"hi"}],"stream":true,"stream_options":{"include_usage":true}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}

	chunks, done := sseChunks(t, rr.Body.String())
	if !done {
		t.Fatal("stream not terminated by [DONE]")
	}
	if len(chunks) != 4 {
		t.Fatalf("expected role, 2 content and finish chunks, got %d: %s", len(chunks), rr.Body.String())
	}
	if chunks[0].Choices[0].Delta.Role != "assistant" {
		t.Fatalf("first chunk must carry the role: %+v", chunks[0])
	}
	if got := chunks[1].Choices[0].Delta.Content; got != "plan" {
		t.Fatalf("thinking delta: got %q", got)
	}
	if got := chunks[2].Choices[0].Delta.Content; got != "Hi" {
		t.Fatalf("answer delta: got %q", got)
	}
	last := chunks[3]
	if fr := last.Choices[0].FinishReason; fr == nil || *fr != "stop" {
		t.Fatalf("finish chunk: %+v", last)
	}
	if last.Usage == nil || last.Usage.TotalTokens != 5 {
		t.Fatalf("usage: %+v", last.Usage)
	}
	for _, c := range chunks {
		if c.ID != chunks[0].ID || c.Model != "glm-4.5" || c.Object != "chat.completion.chunk" {
			t.Fatalf("inconsistent chunk envelope: %+v", c)
		}
	}
}

func TestChatCompletionsStreamInBandError(t *testing.T) {
	errFrame := `{"type":"chat:completion","data":{"error":{"detail":"Something went wrong","code":500}}}`
	up := &queuedUpstreamClient{results: []queuedUpstreamResult{{
		body: sseBody(answerFrame("partial"), errFrame, answerFrame("never")),
	}}}
	s := newCompatTestServer(nil, up)

	rr := postChat(t, s, `{"model":"glm-4.5","messages":[{"role":"user","content":"hi"}],"stream":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d", rr.Code)
	}
	chunks, done := sseChunks(t, rr.Body.String())
	if !done {
		t.Fatal("in-band error must still end with [DONE]")
	}
	if len(chunks) != 3 {
		t.Fatalf("expected role, content, finish; got %d", len(chunks))
	}
	if strings.Contains(rr.Body.String(), "never") {
		t.Fatal("content after the error must not be forwarded")
	}
	if chunks[2].Usage != nil {
		t.Fatal("usage must be omitted when not requested")
	}
}

func TestChatCompletionsBufferedInBandError(t *testing.T) {
	cases := []struct {
		name     string
		errFrame string
	}{
		{name: "top level error", errFrame: `{"type":"chat:completion","error":{"detail":"quota exceeded"}}`},
		{name: "data error", errFrame: `{"data":{"error":{"detail":"something went wrong"}}}`},
		{name: "inner error", errFrame: `{"data":{"inner":{"error":{"detail":"try again later"}}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			up := &queuedUpstreamClient{results: []queuedUpstreamResult{{
				body: sseBody(answerFrame("Hello"), tc.errFrame, answerFrame("never")),
			}}}
			rr := postChat(t, newCompatTestServer(nil, up), `{"model":"glm-4.5","messages":[{"role":"user","content":"hi"}],"stream":false}`)

			if rr.Code != http.StatusOK {
				t.Fatalf("in-band error must not surface as HTTP error, got %d body=%s", rr.Code, rr.Body.String())
			}
			var resp types.ChatCompletionResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got := resp.Choices[0].Message.Content; got != "Hello" {
				t.Fatalf("content: got %q want %q", got, "Hello")
			}
			if fr := resp.Choices[0].FinishReason; fr == nil || *fr != "stop" {
				t.Fatalf("finish reason: %v", fr)
			}
		})
	}
}

func TestChatCompletionsDefaultStream(t *testing.T) {
	cases := []struct {
		name          string
		defaultStream bool
		body          string
		wantSSE       bool
	}{
		{
			name:          "absent field uses default on",
			defaultStream: true,
			body:          `{"model":"glm-4.5","messages":[{"role":"user","content":"hi"}]}`,
			wantSSE:       true,
		},
		{
			name:          "absent field uses default off",
			defaultStream: false,
			body:          `{"model":"glm-4.5","messages":[{"role":"user","content":"hi"}]}`,
			wantSSE:       false,
		},
		{
			name:          "explicit false beats default",
			defaultStream: true,
			body:          `{"model":"glm-4.5","messages":[{"role":"user","content":"hi"}],"stream":false}`,
			wantSSE:       false,
		},
		{
			name:          "nested stream key suppresses default",
			defaultStream: true,
			body:          `{"model":"glm-4.5","metadata":{"stream":true},"messages":[{"role":"user","content":"hi"}]}`,
			wantSSE:       false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.DefaultStream = tc.defaultStream
			up := &queuedUpstreamClient{results: []queuedUpstreamResult{{body: sseBody(answerFrame("x"), doneFrame)}}}
			rr := postChat(t, newCompatTestServer(cfg, up), tc.body)

			if rr.Code != http.StatusOK {
				t.Fatalf("status: %d body=%s", rr.Code, rr.Body.String())
			}
			gotSSE := rr.Header().Get("Content-Type") == "text/event-stream"
			if gotSSE != tc.wantSSE {
				t.Fatalf("streaming: got %v want %v", gotSSE, tc.wantSSE)
			}
		})
	}
}

func TestChatCompletionsRequestErrors(t *testing.T) {
	cases := []struct {
		name         string
		body         string
		result       queuedUpstreamResult
		wantStatus   int
		wantContains string
		wantCalls    int
	}{
		{
			name:         "invalid json",
			body:         `{"model":`,
			wantStatus:   http.StatusBadRequest,
			wantContains: "Invalid JSON",
		},
		{
			name: "upstream non-2xx",
			body: `{"model":"glm-4.5","messages":[],"stream":true}`,
			result: queuedUpstreamResult{err: &upstream.UpstreamError{
				StatusCode: http.StatusForbidden,
				Body:       []byte(`{"detail":"banned"}`),
			}},
			wantStatus:   http.StatusBadGateway,
			wantContains: "banned",
			wantCalls:    1,
		},
		{
			name:         "network failure",
			body:         `{"model":"glm-4.5","messages":[],"stream":true}`,
			result:       queuedUpstreamResult{err: errors.New("dial tcp: connection refused")},
			wantStatus:   http.StatusBadGateway,
			wantContains: "Failed to call upstream",
			wantCalls:    1,
		},
		{
			name:         "empty upstream body",
			body:         `{"model":"glm-4.5","messages":[],"stream":true}`,
			result:       queuedUpstreamResult{body: ""},
			wantStatus:   http.StatusBadGateway,
			wantContains: "Upstream response body is empty",
			wantCalls:    1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			up := &queuedUpstreamClient{results: []queuedUpstreamResult{tc.result}}
			rr := postChat(t, newCompatTestServer(nil, up), tc.body)

			if rr.Code != tc.wantStatus {
				t.Fatalf("status: got %d want %d body=%s", rr.Code, tc.wantStatus, rr.Body.String())
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("errors must be JSON before commit, got %q", ct)
			}
			if !strings.Contains(rr.Body.String(), tc.wantContains) {
				t.Fatalf("body %q does not contain %q", rr.Body.String(), tc.wantContains)
			}
			if len(up.calls) != tc.wantCalls {
				t.Fatalf("upstream calls: got %d want %d", len(up.calls), tc.wantCalls)
			}
		})
	}
}

func TestChatCompletionsContentProcessing(t *testing.T) {
	body := `{"model":"%s","stream":false,"messages":[{"role":"user","content":[
		{"type":"text","text":"describe"},
		{"type":"image_url","image_url":{"url":"data:image/png;base64,AAAA"}},
		{"type":"text","text":"briefly"}
	]}]}`

	t.Run("text model flattens blocks", func(t *testing.T) {
		up := &queuedUpstreamClient{results: []queuedUpstreamResult{{body: sseBody(doneFrame)}}}
		rr := postChat(t, newCompatTestServer(nil, up), strings.Replace(body, "%s", "gpt-4", 1))
		if rr.Code != http.StatusOK {
			t.Fatalf("status: %d", rr.Code)
		}
		msg := up.calls[0].req.Messages[0]
		if msg.Content != "describe\nbriefly" {
			t.Fatalf("content: %#v", msg.Content)
		}
		if up.calls[0].req.Features.PreviewMode {
			t.Fatal("text model must not enable preview mode")
		}
	})

	t.Run("vision model keeps blocks", func(t *testing.T) {
		up := &queuedUpstreamClient{results: []queuedUpstreamResult{{body: sseBody(doneFrame)}}}
		rr := postChat(t, newCompatTestServer(nil, up), strings.Replace(body, "%s", "glm4.5v", 1))
		if rr.Code != http.StatusOK {
			t.Fatalf("status: %d", rr.Code)
		}
		req := up.calls[0].req
		if req.Model != "glm-4.5v" || !req.Features.PreviewMode {
			t.Fatalf("unexpected upstream request: %+v", req)
		}
		blocks, ok := types.ContentBlocks(req.Messages[0].Content)
		if !ok || len(blocks) != 3 {
			t.Fatalf("blocks: %#v", req.Messages[0].Content)
		}
	})
}

func TestChatCompletionsDebugModelOverride(t *testing.T) {
	cfg := testConfig()
	cfg.DebugModel = "glm-4.5v"
	up := &queuedUpstreamClient{results: []queuedUpstreamResult{{body: sseBody(answerFrame("ok"), doneFrame)}}}
	rr := postChat(t, newCompatTestServer(cfg, up), `{"model":"GLM-4.5","messages":[{"role":"user","content":"hi"}],"stream":false}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d", rr.Code)
	}
	if up.calls[0].req.Model != "glm-4.5v" {
		t.Fatalf("upstream model: %q", up.calls[0].req.Model)
	}
	var resp types.ChatCompletionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Model != "GLM-4.5" {
		t.Fatalf("response must echo the requested model, got %q", resp.Model)
	}
}

func TestChatCompletionsStaticFallbackToken(t *testing.T) {
	up := &queuedUpstreamClient{results: []queuedUpstreamResult{{body: sseBody(answerFrame("ok"), doneFrame)}}}
	s := newCompatTestServer(nil, up)
	s.tokens = fixedCredentials{cred: auth.Credential{
		Token:  "static-token",
		Source: auth.SourceStatic,
		Err:    auth.ErrAnonymousTokenStatus,
	}}

	rr := postChat(t, s, `{"model":"glm-4.5","messages":[{"role":"user","content":"hi"}],"stream":false}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("credential failure must not surface, got %d", rr.Code)
	}
	if up.calls[0].token != "static-token" {
		t.Fatalf("token: %q", up.calls[0].token)
	}
}

func TestChatCompletionsModelItem(t *testing.T) {
	cfg := testConfig()
	cfg.IncludeModelItem = true
	up := &queuedUpstreamClient{results: []queuedUpstreamResult{{body: sseBody(doneFrame)}}}
	rr := postChat(t, newCompatTestServer(cfg, up), `{"model":"glm-4.5","messages":[],"stream":false}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d", rr.Code)
	}
	item := up.calls[0].req.ModelItem
	if item == nil || item.ID != "0727-360B-API" {
		t.Fatalf("model item: %+v", item)
	}
}

func TestChatCompletionsThinkModeFromConfig(t *testing.T) {
	thinking := `{"type":"chat:completion","data":{"delta_content":"<details><summary>s</summary>idea</details>","phase":"thinking"}}`
	cases := []struct {
		mode string
		want string
	}{
		{mode: "strip", want: "idea"},
		{mode: "think", want: "<thinking>idea</thinking>"},
		{mode: "raw", want: "<details>idea</details>"},
		{mode: "bogus", want: "idea"},
	}
	for _, tc := range cases {
		t.Run(tc.mode, func(t *testing.T) {
			cfg := &config.ServerConfig{ThinkTagsMode: tc.mode}
			up := &queuedUpstreamClient{results: []queuedUpstreamResult{{body: sseBody(thinking, doneFrame)}}}
			rr := postChat(t, newCompatTestServer(cfg, up), `{"model":"glm-4.5","messages":[],"stream":false}`)
			var resp types.ChatCompletionResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v (%s)", err, rr.Body.String())
			}
			if got := resp.Choices[0].Message.Content; got != tc.want {
				t.Fatalf("content: got %q want %q", got, tc.want)
			}
		})
	}
}
