package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/n0madic/go-zai2api/internal/codec"
	"github.com/n0madic/go-zai2api/internal/reasoning"
	"github.com/n0madic/go-zai2api/internal/types"
)

// State is the translator lifecycle position.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateTerminated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateTerminated:
		return "terminated"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Termination records why the translation loop stopped.
type Termination int

const (
	// TerminationEOF means the upstream body ended without a done signal.
	TerminationEOF Termination = iota
	TerminationDone
	TerminationUpstreamError
	TerminationCanceled
	TerminationReadError
	TerminationWriteError
)

func (t Termination) String() string {
	switch t {
	case TerminationEOF:
		return "eof"
	case TerminationDone:
		return "done"
	case TerminationUpstreamError:
		return "upstream_error"
	case TerminationCanceled:
		return "canceled"
	case TerminationReadError:
		return "read_error"
	case TerminationWriteError:
		return "write_error"
	}
	return "unknown"
}

// Result summarizes one translation.
type Result struct {
	Content     string
	Usage       *types.Usage
	Termination Termination
	ErrorDetail string
	Events      int
	ParseErrors int
	Chunks      int
	Err         error
}

// Sink receives OpenAI chunks in streaming mode. Close is called exactly
// once when Stream returns.
type Sink interface {
	WriteChunk(chunk any) error
	WriteDone() error
	Close() error
}

// Options configures a Translator.
type Options struct {
	Assembler    *codec.Assembler
	ThinkMode    reasoning.Mode
	IncludeUsage bool
	Logger       *slog.Logger
}

// Translator converts one upstream SSE body into OpenAI output. A Translator
// handles a single response and is not safe for concurrent use.
type Translator struct {
	opts   Options
	logger *slog.Logger
	state  State
}

// New creates a Translator.
func New(opts Options) *Translator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ThinkMode == "" {
		opts.ThinkMode = reasoning.ModeStrip
	}
	return &Translator{opts: opts, logger: logger}
}

// State returns the current lifecycle state.
func (t *Translator) State() State {
	return t.state
}

// Stream writes the role chunk, then one chunk per non-empty content delta,
// then a finish chunk and [DONE]. The finish sequence is written unless the
// client went away (cancellation or a failed write). body and sink are
// released on every path.
func (t *Translator) Stream(ctx context.Context, body io.ReadCloser, sink Sink) (res Result) {
	defer func() {
		if err := sink.Close(); err != nil {
			t.logger.Debug("stream.sink_close", "error", err)
		}
		t.state = StateClosed
	}()
	defer body.Close()

	a := t.opts.Assembler
	t.state = StateStreaming
	if err := sink.WriteChunk(a.RoleChunk()); err != nil {
		t.state = StateTerminated
		res.Termination = TerminationWriteError
		res.Err = err
		return res
	}
	res.Chunks++

	var content strings.Builder
	t.consume(ctx, body, &res, func(text string) error {
		if err := sink.WriteChunk(a.ContentChunk(text)); err != nil {
			return err
		}
		content.WriteString(text)
		res.Chunks++
		return nil
	})
	res.Content = content.String()
	t.state = StateTerminated

	switch res.Termination {
	case TerminationCanceled, TerminationWriteError:
	default:
		if err := t.finish(sink, &res); err != nil {
			res.Termination = TerminationWriteError
			res.Err = err
		}
	}
	t.logResult("stream", res)
	return res
}

func (t *Translator) finish(sink Sink, res *Result) error {
	var usage *types.Usage
	if t.opts.IncludeUsage {
		usage = res.Usage
		if usage == nil {
			usage = &types.Usage{}
		}
	}
	if err := sink.WriteChunk(t.opts.Assembler.FinishChunk(usage)); err != nil {
		return err
	}
	res.Chunks++
	return sink.WriteDone()
}

// Collect accumulates all content deltas into Result.Content. An in-band
// upstream error stops accumulation; the caller decides how to report it.
func (t *Translator) Collect(ctx context.Context, body io.ReadCloser) (res Result) {
	defer func() {
		body.Close()
		t.state = StateClosed
	}()

	t.state = StateStreaming
	var content strings.Builder
	t.consume(ctx, body, &res, func(text string) error {
		content.WriteString(text)
		return nil
	})
	res.Content = content.String()
	t.state = StateTerminated
	t.logResult("collect", res)
	return res
}

// consume runs the decode loop until a terminal condition and records it in
// res.Termination. emit receives every non-empty transformed delta.
func (t *Translator) consume(ctx context.Context, body io.Reader, res *Result, emit func(string) error) {
	reader := NewReader(body)
	for {
		if err := ctx.Err(); err != nil {
			res.Termination = TerminationCanceled
			res.Err = err
			return
		}
		payload, err := reader.Next()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				res.Termination = TerminationEOF
			case ctx.Err() != nil:
				res.Termination = TerminationCanceled
				res.Err = ctx.Err()
			default:
				res.Termination = TerminationReadError
				res.Err = err
			}
			return
		}
		res.Events++

		evt, upErr, err := DecodeEvent(payload)
		if err != nil {
			res.ParseErrors++
			t.logger.Debug("stream.parse_error", "error", err, "payload", truncate(string(payload), 200))
			continue
		}
		if upErr != nil {
			res.Termination = TerminationUpstreamError
			res.ErrorDetail = upErr.Detail
			t.logUpstreamError(upErr)
			return
		}

		data := evt.Data
		t.logger.Debug("stream.event",
			"type", evt.Type,
			"phase", data.Phase,
			"delta_len", len(data.DeltaContent),
			"done", data.Done,
		)
		if data.Usage != nil {
			res.Usage = data.Usage
		}
		if data.DeltaContent != "" {
			out := data.DeltaContent
			if data.Phase == types.PhaseThinking {
				out = reasoning.Transform(out, t.opts.ThinkMode)
			}
			if out != "" {
				if err := emit(out); err != nil {
					res.Termination = TerminationWriteError
					res.Err = err
					return
				}
			}
		}
		if data.Done || data.Phase == types.PhaseDone {
			res.Termination = TerminationDone
			return
		}
	}
}

func (t *Translator) logUpstreamError(upErr *types.UpstreamError) {
	t.logger.Warn("stream.upstream_error", "detail", upErr.Detail, "code", upErr.Code)
	detail := strings.ToLower(upErr.Detail)
	if strings.Contains(detail, "something went wrong") || strings.Contains(detail, "try again later") {
		t.logger.Warn("stream.upstream_error_hint",
			"hint", "anonymous tokens may reject multimodal input; set ZAI_TOKEN, shrink media or retry later")
	}
}

func (t *Translator) logResult(mode string, res Result) {
	t.logger.Debug("stream.finished",
		"mode", mode,
		"termination", res.Termination.String(),
		"events", res.Events,
		"parse_errors", res.ParseErrors,
		"chunks", res.Chunks,
		"content_len", len(res.Content),
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
