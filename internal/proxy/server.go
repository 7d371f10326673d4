package proxy

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/n0madic/go-zai2api/internal/auth"
	"github.com/n0madic/go-zai2api/internal/codec"
	"github.com/n0madic/go-zai2api/internal/config"
	"github.com/n0madic/go-zai2api/internal/metrics"
	"github.com/n0madic/go-zai2api/internal/models"
	"github.com/n0madic/go-zai2api/internal/types"
	"github.com/n0madic/go-zai2api/internal/upstream"
)

// upstreamDoer abstracts the Z.ai upstream client so the proxy handlers can
// be tested with a mock without a real network connection.
type upstreamDoer interface {
	Do(ctx context.Context, upReq *types.UpstreamRequest, token string) (*http.Response, error)
}

// credentialSource issues the upstream token for one request.
type credentialSource interface {
	Acquire(ctx context.Context) auth.Credential
}

// Server is the main proxy HTTP server.
type Server struct {
	Config     *config.ServerConfig
	Registry   *models.Registry
	httpServer *http.Server
	upstream   upstreamDoer
	tokens     credentialSource
	metrics    metrics.Recorder
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
	now        func() time.Time
}

const missingAuthError = "Missing or invalid Authorization header"

// New creates a new proxy server with all routes registered.
func New(cfg *config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	fp := cfg.Fingerprint
	tokens := auth.NewTokenProvider(auth.ProviderOptions{
		AnonURL:          cfg.AnonTokenURL(),
		Origin:           cfg.Origin,
		StaticToken:      cfg.StaticToken,
		AnonymousEnabled: cfg.AnonTokenEnabled,
		Fingerprint:      fp,
		Logger:           logger,
	})
	uc := upstream.NewClient(upstream.Options{
		URL:         cfg.UpstreamURL,
		Origin:      cfg.Origin,
		Fingerprint: fp,
		Logger:      logger,
		Debug:       cfg.Debug,
	})

	s := &Server{
		Config:   cfg,
		Registry: models.NewRegistry(cfg.DebugModel, logger),
		upstream: uc,
		tokens:   tokens,
		metrics:  metrics.Nop{},
		logger:   logger,
		now:      time.Now,
	}
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		s.metrics = metrics.NewPrometheus(reg)
		s.gatherer = reg
	}

	s.httpServer = &http.Server{
		Addr:    cfg.Addr(),
		Handler: s.Handler(),
		// ReadTimeout covers only reading the request body; 30s is plenty for any JSON payload.
		ReadTimeout: 30 * time.Second,
		// WriteTimeout must outlast the upstream SSE timeout (5 min).
		WriteTimeout: 600 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)

	// OpenAI-compatible routes
	mux.HandleFunc("GET /v1/models", s.handleListModels)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)

	if s.gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(s.gatherer))
	}

	return s.corsMiddleware(s.requestIDMiddleware(s.authMiddleware(s.verboseMiddleware(mux))))
}

// ListenAndServe starts the proxy server.
func (s *Server) ListenAndServe() error {
	s.logger.Info("server.listen",
		"addr", s.httpServer.Addr,
		"upstream", s.Config.UpstreamURL,
		"anonymous_tokens", s.Config.AnonTokenEnabled,
		"think_mode", s.Config.ThinkMode(),
		"default_stream", s.Config.DefaultStream,
		"metrics", s.gatherer != nil,
	)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	codec.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	codec.WriteJSON(w, http.StatusOK, s.Registry.List(s.now().Unix()))
}
