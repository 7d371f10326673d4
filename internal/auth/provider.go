package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/n0madic/go-zai2api/internal/config"
)

// CredentialSource names where an upstream token came from.
type CredentialSource string

const (
	SourceAnonymous CredentialSource = "anonymous"
	SourceStatic    CredentialSource = "static"
)

// Credential is the outcome of one acquisition. When the anonymous fetch
// fails, Source is SourceStatic and Err holds the cause; the token is still
// usable.
type Credential struct {
	Token  string
	Source CredentialSource
	Err    error
}

// Fallback reports whether the anonymous fetch was attempted and failed.
func (c Credential) Fallback() bool {
	return c.Source == SourceStatic && c.Err != nil
}

// ProviderOptions configures a TokenProvider.
type ProviderOptions struct {
	AnonURL          string
	Origin           string
	StaticToken      string
	AnonymousEnabled bool
	Fingerprint      config.Fingerprint
	HTTPClient       *http.Client
	Logger           *slog.Logger
}

// TokenProvider issues upstream credentials, preferring a fresh anonymous
// token and falling back to the static one.
type TokenProvider struct {
	anonURL    string
	origin     string
	anonymous  bool
	static     oauth2.TokenSource
	fp         config.Fingerprint
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTokenProvider creates a provider from opts.
func NewTokenProvider(opts ProviderOptions) *TokenProvider {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenProvider{
		anonURL:    opts.AnonURL,
		origin:     strings.TrimRight(opts.Origin, "/"),
		anonymous:  opts.AnonymousEnabled,
		static:     oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.StaticToken, TokenType: "Bearer"}),
		fp:         opts.Fingerprint,
		httpClient: client,
		logger:     logger,
	}
}

// Acquire returns a credential for one upstream call. It never blocks the
// request on a failed anonymous fetch and performs no retries.
func (p *TokenProvider) Acquire(ctx context.Context) Credential {
	if p.anonymous {
		tok, err := p.fetchAnonymous(ctx)
		if err == nil {
			p.logger.Debug("auth.anonymous", "expiry", tok.Expiry)
			return Credential{Token: tok.AccessToken, Source: SourceAnonymous}
		}
		p.logger.Warn("auth.anonymous_failed", "error", err)
		return Credential{Token: p.staticToken(), Source: SourceStatic, Err: err}
	}
	return Credential{Token: p.staticToken(), Source: SourceStatic}
}

func (p *TokenProvider) staticToken() string {
	tok, err := p.static.Token()
	if err != nil || tok == nil {
		return ""
	}
	return tok.AccessToken
}

func (p *TokenProvider) fetchAnonymous(ctx context.Context) (*oauth2.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.anonURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build anonymous token request: %w", err)
	}
	p.fp.Apply(req.Header)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")
	req.Header.Set("Origin", p.origin)
	req.Header.Set("Referer", p.origin+"/")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anonymous token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrAnonymousTokenStatus, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read anonymous token response: %w", err)
	}
	token := strings.TrimSpace(gjson.GetBytes(body, "token").String())
	if token == "" {
		return nil, ErrEmptyAnonymousToken
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer", Expiry: tokenExpiry(token)}, nil
}
