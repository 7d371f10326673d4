package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/n0madic/go-zai2api/internal/codec"
	"github.com/n0madic/go-zai2api/internal/config"
	"github.com/n0madic/go-zai2api/internal/types"
)

// upstreamHTTPTimeout is the maximum time allowed for the upstream SSE request.
// SSE streams can be long-lived, so we use a generous timeout.
const upstreamHTTPTimeout = 5 * time.Minute

// maxErrorBody caps how much of a failed response is kept for the error.
const maxErrorBody = 64 * 1024

// ErrEmptyBody is returned when a successful upstream response has no bytes.
var ErrEmptyBody = errors.New("upstream response body is empty")

// UpstreamError represents a non-2xx upstream response.
type UpstreamError struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

func (e *UpstreamError) Error() string {
	return codec.FormatUpstreamErrorWithHeaders(e.StatusCode, e.Body, e.Headers)
}

// Options configures a Client.
type Options struct {
	URL         string
	Origin      string
	Fingerprint config.Fingerprint
	HTTPClient  *http.Client
	Logger      *slog.Logger
	// Debug logs a redacted request body and a multimodal summary.
	Debug bool
}

// Client sends chat requests to the Z.ai backend.
type Client struct {
	url        string
	origin     string
	fp         config.Fingerprint
	httpClient *http.Client
	logger     *slog.Logger
	debug      bool
}

// NewClient creates a new upstream client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: upstreamHTTPTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:        opts.URL,
		origin:     strings.TrimRight(opts.Origin, "/"),
		fp:         opts.Fingerprint,
		httpClient: httpClient,
		logger:     logger,
		debug:      opts.Debug,
	}
}

// Do posts upReq with the given bearer token and returns the streaming
// response. A non-2xx status is returned as *UpstreamError with the body
// already consumed and closed. No retries are made.
func (c *Client) Do(ctx context.Context, upReq *types.UpstreamRequest, token string) (*http.Response, error) {
	body, err := json.Marshal(upReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	if c.debug {
		c.logRequest(upReq, body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.applyHeaders(httpReq, upReq.ChatID)
	(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(httpReq)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	c.logger.Debug("upstream.response",
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
		"elapsed", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: errBody, Headers: resp.Header}
	}
	return resp, nil
}

func (c *Client) applyHeaders(req *http.Request, chatID string) {
	c.fp.Apply(req.Header)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Accept-Language", "zh-CN")
	req.Header.Set("Origin", c.origin)
	req.Header.Set("Referer", c.origin+"/c/"+chatID)
}

// PeekBody makes sure resp carries at least one byte before anything is
// committed to the client. On success resp.Body is replaced by a buffered
// reader positioned at the start. On failure the body is closed.
func PeekBody(resp *http.Response) error {
	if resp.Body == nil || resp.Body == http.NoBody {
		return ErrEmptyBody
	}
	br := bufio.NewReader(resp.Body)
	if _, err := br.Peek(1); err != nil {
		resp.Body.Close()
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("read upstream body: %w", err)
	}
	resp.Body = &bufferedBody{Reader: br, closer: resp.Body}
	return nil
}

type bufferedBody struct {
	*bufio.Reader
	closer io.Closer
}

func (b *bufferedBody) Close() error {
	return b.closer.Close()
}
