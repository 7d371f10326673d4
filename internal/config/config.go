package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/n0madic/go-zai2api/internal/reasoning"
)

const (
	DefaultUpstreamURL = "https://chat.z.ai/api/chat/completions"
	DefaultOrigin      = "https://chat.z.ai"
	DefaultAPIKey      = "sk-your-key"
	DefaultPort        = 9090
)

// ServerConfig holds all server configuration.
type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Verbose bool   `yaml:"verbose"`
	Debug   bool   `yaml:"debug"`

	UpstreamURL string `yaml:"upstream_url"`
	Origin      string `yaml:"origin"`

	// APIKey is the bearer key clients must present. It is compared verbatim,
	// so an empty key only admits an empty "Bearer " header.
	APIKey string `yaml:"api_key"`
	// StaticToken is the upstream credential used when no anonymous token
	// can be obtained.
	StaticToken      string `yaml:"static_token"`
	AnonTokenEnabled bool   `yaml:"anon_token_enabled"`

	DefaultStream    bool   `yaml:"default_stream"`
	ThinkTagsMode    string `yaml:"think_tags_mode"`
	IncludeModelItem bool   `yaml:"include_model_item"`
	DebugModel       string `yaml:"debug_model"`

	MetricsEnabled bool   `yaml:"metrics_enabled"`
	LogFile        string `yaml:"log_file"`
	LogFormat      string `yaml:"log_format"`

	Fingerprint Fingerprint `yaml:"fingerprint"`
}

// DefaultFromEnv creates a ServerConfig with defaults from environment variables.
func DefaultFromEnv() *ServerConfig {
	return &ServerConfig{
		Host:             envString("HOST", "0.0.0.0"),
		Port:             envInt("PORT", DefaultPort),
		Debug:            envBoolDefault("DEBUG_MODE", true),
		UpstreamURL:      envString("UPSTREAM_URL", DefaultUpstreamURL),
		Origin:           envString("ZAI_ORIGIN", DefaultOrigin),
		APIKey:           envString("DEFAULT_KEY", DefaultAPIKey),
		StaticToken:      strings.TrimSpace(os.Getenv("ZAI_TOKEN")),
		AnonTokenEnabled: envBoolDefault("ANON_TOKEN_ENABLED", true),
		DefaultStream:    envBoolDefault("DEFAULT_STREAM", true),
		ThinkTagsMode:    envOrDefault("THINK_TAGS_MODE", string(reasoning.ModeStrip)),
		IncludeModelItem: envBoolDefault("INCLUDE_MODEL_ITEM", false),
		DebugModel:       strings.TrimSpace(os.Getenv("DEBUG_MODEL")),
		MetricsEnabled:   envBoolDefault("METRICS_ENABLED", true),
		LogFile:          strings.TrimSpace(os.Getenv("LOG_FILE")),
		LogFormat:        envOrDefault("LOG_FORMAT", "text"),
		Fingerprint:      FingerprintFromEnv(),
	}
}

// LoadDotEnv loads variables from an env file into the process environment.
// Variables already set are not overridden. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// LoadFile overlays the YAML file at path onto c. Keys absent from the file
// keep their current values.
func (c *ServerConfig) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := reasoning.ParseMode(c.ThinkTagsMode); err != nil {
		return err
	}
	if err := validateHTTPURL("upstream_url", c.UpstreamURL); err != nil {
		return err
	}
	if err := validateHTTPURL("origin", c.Origin); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (want text|json)", c.LogFormat)
	}
	return nil
}

// ThinkMode returns the configured thinking-tag mode, strip if invalid.
func (c *ServerConfig) ThinkMode() reasoning.Mode {
	mode, err := reasoning.ParseMode(c.ThinkTagsMode)
	if err != nil {
		return reasoning.ModeStrip
	}
	return mode
}

// AnonTokenURL is the endpoint that issues anonymous upstream tokens.
func (c *ServerConfig) AnonTokenURL() string {
	return strings.TrimRight(c.Origin, "/") + "/api/v1/auths/"
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

func validateHTTPURL(name, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s must not be empty", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s %q: want an absolute http(s) URL", name, raw)
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

// envBoolDefault parses common boolean spellings; anything else, including
// an unset variable, yields defaultVal.
func envBoolDefault(key string, defaultVal bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultVal
}
