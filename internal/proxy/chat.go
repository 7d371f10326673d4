package proxy

import (
	"errors"
	"net/http"

	"github.com/n0madic/go-zai2api/internal/codec"
	"github.com/n0madic/go-zai2api/internal/stream"
	"github.com/n0madic/go-zai2api/internal/transform"
	"github.com/n0madic/go-zai2api/internal/types"
	"github.com/n0madic/go-zai2api/internal/upstream"
)

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := s.now()
	logger := requestLogger(s.logger, r)
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	modelLabel := ""
	defer func() {
		s.metrics.RecordOutcome(rec.status, s.now().Sub(start), modelLabel)
	}()

	body, ok := readLimitedRequestBody(rec, r, "Failed to read request body")
	if !ok {
		return
	}
	var req types.ChatCompletionRequest
	if !decodeJSONBody(rec, body, &req, "Invalid JSON") {
		return
	}
	if !mentionsStream(body) {
		req.Stream = s.Config.DefaultStream
	}

	model := s.Registry.Resolve(req.Model)
	modelLabel = model.ID
	includeUsage := req.StreamOptions != nil && req.StreamOptions.IncludeUsage
	logger.Debug("chat.request",
		"requested_model", req.Model,
		"model", model.ID,
		"upstream_model", model.UpstreamID,
		"messages", len(req.Messages),
		"stream", req.Stream,
		"include_usage", includeUsage,
	)

	messages := transform.ProcessMessages(req.Messages, model, logger)
	ids := upstream.NewRequestIDs(s.now())
	upReq := upstream.BuildRequest(messages, model, ids, upstream.BuildOptions{
		IncludeModelItem: s.Config.IncludeModelItem,
	})

	cred := s.tokens.Acquire(r.Context())
	s.metrics.RecordCredential(string(cred.Source))
	if cred.Fallback() {
		logger.Debug("chat.credential_fallback", "error", cred.Err)
	}

	resp, err := s.upstream.Do(r.Context(), upReq, cred.Token)
	if err != nil {
		var upErr *upstream.UpstreamError
		if errors.As(err, &upErr) {
			codec.WriteOpenAIError(rec, http.StatusBadGateway, "Upstream error: "+upErr.Error())
			return
		}
		codec.WriteOpenAIError(rec, http.StatusBadGateway, "Failed to call upstream: "+err.Error())
		return
	}
	if err := upstream.PeekBody(resp); err != nil {
		if errors.Is(err, upstream.ErrEmptyBody) {
			codec.WriteOpenAIError(rec, http.StatusBadGateway, "Upstream response body is empty")
			return
		}
		codec.WriteOpenAIError(rec, http.StatusBadGateway, "Failed to read upstream response: "+err.Error())
		return
	}

	assembler := codec.NewAssembler(req.Model, s.now())
	tr := stream.New(stream.Options{
		Assembler:    assembler,
		ThinkMode:    s.Config.ThinkMode(),
		IncludeUsage: includeUsage,
		Logger:       logger,
	})

	if req.Stream {
		codec.WriteStreamHeaders(rec, http.StatusOK)
		res := tr.Stream(r.Context(), resp.Body, codec.NewSSEWriter(rec, logger))
		s.metrics.RecordStreamTermination(res.Termination.String())
		logger.Debug("chat.stream_closed", "state", tr.State(), "termination", res.Termination.String())
		return
	}

	res := tr.Collect(r.Context(), resp.Body)
	s.metrics.RecordStreamTermination(res.Termination.String())
	switch res.Termination {
	case stream.TerminationUpstreamError:
		// The partial answer is still returned.
		logger.Warn("chat.upstream_error", "detail", res.ErrorDetail, "content_len", len(res.Content))
	case stream.TerminationReadError:
		codec.WriteOpenAIError(rec, http.StatusBadGateway, "Failed to process upstream response")
		return
	case stream.TerminationCanceled:
		logger.Debug("chat.client_gone", "error", res.Err)
		return
	}
	codec.WriteJSON(rec, http.StatusOK, assembler.Completion(res.Content, res.Usage))
}
