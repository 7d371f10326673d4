package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/n0madic/go-zai2api/internal/auth"
	"github.com/n0madic/go-zai2api/internal/config"
	"github.com/n0madic/go-zai2api/internal/logging"
	"github.com/n0madic/go-zai2api/internal/models"
	"github.com/n0madic/go-zai2api/internal/proxy"
)

const usage = "Usage: go-zai2api <command> [flags]\nCommands: serve, models, token"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		os.Exit(cmdServe(os.Args[2:]))
	case "models":
		os.Exit(cmdModels(os.Args[2:]))
	case "token":
		os.Exit(cmdToken(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
}

// loadConfig resolves configuration in order: .env file, environment,
// optional YAML file, then flags. bind registers command-specific flags.
func loadConfig(name string, args []string, bind func(*flag.FlagSet, *config.ServerConfig)) (*config.ServerConfig, error) {
	envFile := os.Getenv("ZAI2API_ENV_FILE")
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg := config.DefaultFromEnv()

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	fs.StringVar(&cfg.Origin, "origin", cfg.Origin, "Z.ai frontend origin")
	fs.StringVar(&cfg.StaticToken, "zai-token", cfg.StaticToken, "Static upstream token used when anonymous tokens fail")
	fs.BoolVar(&cfg.AnonTokenEnabled, "anon-token", cfg.AnonTokenEnabled, "Fetch a fresh anonymous token per request")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Write logs to a rotated file instead of stderr")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text|json)")
	if bind != nil {
		bind(fs, cfg)
	}
	fs.Parse(args)

	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			return nil, err
		}
		// Flags given on the command line win over the file.
		fs.Parse(args)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.ServerConfig) (*slog.Logger, func()) {
	logger, closer := logging.New(logging.Options{
		Debug:  cfg.Debug,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	slog.SetDefault(logger)
	return logger, func() { closer.Close() }
}

func cmdServe(args []string) int {
	cfg, err := loadConfig("serve", args, func(fs *flag.FlagSet, cfg *config.ServerConfig) {
		fs.StringVar(&cfg.Host, "host", cfg.Host, "Bind host")
		fs.IntVar(&cfg.Port, "port", cfg.Port, "Listen port")
		fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Log every request")
		fs.StringVar(&cfg.UpstreamURL, "upstream-url", cfg.UpstreamURL, "Z.ai chat completions endpoint")
		fs.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "Bearer key required from clients")
		fs.BoolVar(&cfg.DefaultStream, "default-stream", cfg.DefaultStream, "Stream when the request does not mention \"stream\"")
		fs.StringVar(&cfg.ThinkTagsMode, "think-tags-mode", cfg.ThinkTagsMode, "Reasoning markup mode (raw|think|strip)")
		fs.BoolVar(&cfg.IncludeModelItem, "include-model-item", cfg.IncludeModelItem, "Send model_item metadata upstream")
		fs.StringVar(&cfg.DebugModel, "debug-model", cfg.DebugModel, "Force model name override")
		fs.BoolVar(&cfg.MetricsEnabled, "metrics", cfg.MetricsEnabled, "Expose Prometheus metrics on /metrics")
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 1
	}
	logger, closeLog := newLogger(cfg)
	defer closeLog()

	if cfg.APIKey == config.DefaultAPIKey {
		logger.Warn("serve.default_api_key", "hint", "set DEFAULT_KEY to a private value")
	}

	srv := proxy.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("serve.shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		return 1
	}
	return 0
}

func cmdModels(args []string) int {
	var jsonOut bool
	cfg, err := loadConfig("models", args, func(fs *flag.FlagSet, cfg *config.ServerConfig) {
		fs.BoolVar(&jsonOut, "json", false, "Print the /v1/models response body")
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 1
	}
	logger, closeLog := newLogger(cfg)
	defer closeLog()

	if jsonOut {
		list := models.NewRegistry(cfg.DebugModel, logger).List(time.Now().Unix())
		data, _ := json.MarshalIndent(list, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tUPSTREAM ID\tVISION\tTHINKING\tTOP_P\tTEMPERATURE\tMAX_TOKENS")
	for _, m := range models.Catalog() {
		maxTokens := "-"
		if m.DefaultParams.MaxTokens > 0 {
			maxTokens = fmt.Sprint(m.DefaultParams.MaxTokens)
		}
		fmt.Fprintf(tw, "%s\t%s\t%v\t%v\t%g\t%g\t%s\n",
			m.DisplayName, m.UpstreamID,
			m.Capabilities.Vision, m.Capabilities.Thinking,
			m.DefaultParams.TopP, m.DefaultParams.Temperature, maxTokens)
	}
	tw.Flush()
	return 0
}

func cmdToken(args []string) int {
	var timeout time.Duration
	cfg, err := loadConfig("token", args, func(fs *flag.FlagSet, cfg *config.ServerConfig) {
		fs.DurationVar(&timeout, "timeout", 15*time.Second, "Anonymous token request timeout")
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 1
	}
	logger, closeLog := newLogger(cfg)
	defer closeLog()

	provider := auth.NewTokenProvider(auth.ProviderOptions{
		AnonURL:          cfg.AnonTokenURL(),
		Origin:           cfg.Origin,
		StaticToken:      cfg.StaticToken,
		AnonymousEnabled: cfg.AnonTokenEnabled,
		Fingerprint:      cfg.Fingerprint,
		HTTPClient:       &http.Client{Timeout: timeout},
		Logger:           logger,
	})
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	cred := provider.Acquire(ctx)

	fmt.Printf("Source: %s\n", cred.Source)
	if cred.Err != nil {
		fmt.Printf("Anonymous fetch failed: %v\n", cred.Err)
	}
	if cred.Token == "" {
		fmt.Println("Token: <empty>")
		return 1
	}
	fmt.Printf("Token: %s\n", maskToken(cred.Token))

	claims, err := auth.ParseJWTClaims(cred.Token)
	if err != nil {
		fmt.Println("Claims: <opaque token>")
		return 0
	}
	if id := claims.Get("id").String(); id != "" {
		fmt.Printf("Subject: %s\n", id)
	}
	if exp := claims.Get("exp"); exp.Exists() {
		fmt.Printf("Expires: %s\n", time.Unix(exp.Int(), 0).Local().Format(time.RFC1123))
	}
	return 0
}

func maskToken(token string) string {
	if len(token) <= 12 {
		return strings.Repeat("*", len(token))
	}
	return token[:6] + "..." + token[len(token)-4:]
}
