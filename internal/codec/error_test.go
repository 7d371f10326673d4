package codec

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/n0madic/go-zai2api/internal/types"
)

func TestFormatUpstreamError(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		body         string
		wantContains []string
	}{
		{
			name:       "openai error envelope",
			statusCode: 429,
			body:       `{"error":{"message":"Rate limit exceeded"}}`,
			wantContains: []string{
				"HTTP 429 Too Many Requests",
				"Rate limit exceeded",
			},
		},
		{
			name:       "detail field",
			statusCode: 401,
			body:       `{"detail":"Your session has expired"}`,
			wantContains: []string{
				"HTTP 401 Unauthorized",
				"Your session has expired",
			},
		},
		{
			name:       "nested errors array",
			statusCode: 400,
			body:       `{"errors":[{"detail":"bad schema"}]}`,
			wantContains: []string{
				"HTTP 400 Bad Request",
				"bad schema",
			},
		},
		{
			name:       "raw text body",
			statusCode: 502,
			body:       "gateway overloaded\nplease retry later",
			wantContains: []string{
				"HTTP 502 Bad Gateway",
				"unparsed body",
				"gateway overloaded please retry later",
			},
		},
		{
			name:       "empty body",
			statusCode: 500,
			body:       "",
			wantContains: []string{
				"HTTP 500 Internal Server Error",
				"empty error body",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatUpstreamError(tt.statusCode, []byte(tt.body))
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Fatalf("expected %q to contain %q", got, want)
				}
			}
		})
	}
}

func TestExtractUpstreamErrorMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"error":"plain string"}`, "plain string"},
		{`{"error":{"detail":"nested detail"}}`, "nested detail"},
		{`{"data":{"error":{"detail":"in band"}}}`, "in band"},
		{`{"errors":["first"]}`, "first"},
		{`{"error":{"code":42}}`, ""},
		{`not json`, ""},
	}
	for _, tc := range tests {
		if got := ExtractUpstreamErrorMessage([]byte(tc.body)); got != tc.want {
			t.Errorf("ExtractUpstreamErrorMessage(%s) = %q, want %q", tc.body, got, tc.want)
		}
	}
}

func TestFormatUpstreamErrorWithHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("cf-ray", "8abc-SJC")
	got := FormatUpstreamErrorWithHeaders(503, nil, h)
	if !strings.HasSuffix(got, "(request_id: 8abc-SJC)") {
		t.Fatalf("missing request id: %q", got)
	}
	if got := FormatUpstreamErrorWithHeaders(503, nil, nil); strings.Contains(got, "request_id") {
		t.Fatalf("unexpected request id: %q", got)
	}
}

func TestWriteOpenAIError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteOpenAIError(rec, http.StatusUnauthorized, "Missing or invalid Authorization header")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type: got %q", ct)
	}
	var resp types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error.Message != "Missing or invalid Authorization header" || resp.Error.Type != "authentication_error" {
		t.Fatalf("unexpected error body: %+v", resp.Error)
	}
}
