package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// ErrSinkClosed is returned by writes after Close.
var ErrSinkClosed = errors.New("sse writer closed")

// WriteStreamHeaders commits an event-stream response.
func WriteStreamHeaders(w http.ResponseWriter, statusCode int) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(statusCode)
}

// SSEWriter writes OpenAI chunks as `data: <json>\n\n` frames and flushes
// after each one. It is not safe for concurrent use.
type SSEWriter struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	logger *slog.Logger
	closed bool
	err    error
}

// NewSSEWriter wraps w. The stream headers must already be written.
func NewSSEWriter(w http.ResponseWriter, logger *slog.Logger) *SSEWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSEWriter{w: w, rc: http.NewResponseController(w), logger: logger}
}

// WriteChunk marshals chunk into one frame.
func (s *SSEWriter) WriteChunk(chunk any) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	return s.writeFrame(data)
}

// WriteDone writes the [DONE] sentinel.
func (s *SSEWriter) WriteDone() error {
	return s.writeFrame([]byte("[DONE]"))
}

func (s *SSEWriter) writeFrame(payload []byte) error {
	if s.closed {
		return ErrSinkClosed
	}
	if s.err != nil {
		return s.err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		s.logger.Debug("client disconnected during SSE write", "error", err)
		s.err = err
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.err = err
		return err
	}
	return nil
}

// Close releases the writer. Only the first call has an effect.
func (s *SSEWriter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return nil
}
