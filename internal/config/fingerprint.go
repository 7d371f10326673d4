package config

import (
	"net/http"
	"os"
	"strings"
)

// Browser identity presented to the upstream.
const (
	DefaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36 Edg/139.0.0.0"
	DefaultSecChUa         = `"Not;A=Brand";v="99", "Microsoft Edge";v="139", "Chromium";v="139"`
	DefaultSecChUaMobile   = "?0"
	DefaultSecChUaPlatform = `"Windows"`
	DefaultFEVersion       = "prod-fe-1.0.70"
)

// Fingerprint is the set of browser-identifying headers sent upstream.
type Fingerprint struct {
	UserAgent       string `yaml:"user_agent"`
	SecChUa         string `yaml:"sec_ch_ua"`
	SecChUaMobile   string `yaml:"sec_ch_ua_mobile"`
	SecChUaPlatform string `yaml:"sec_ch_ua_platform"`
	FEVersion       string `yaml:"fe_version"`
}

// DefaultFingerprint returns the built-in browser identity.
func DefaultFingerprint() Fingerprint {
	return Fingerprint{
		UserAgent:       DefaultUserAgent,
		SecChUa:         DefaultSecChUa,
		SecChUaMobile:   DefaultSecChUaMobile,
		SecChUaPlatform: DefaultSecChUaPlatform,
		FEVersion:       DefaultFEVersion,
	}
}

// FingerprintFromEnv returns the default identity with ZAI_USER_AGENT and
// ZAI_FE_VERSION overrides applied.
func FingerprintFromEnv() Fingerprint {
	fp := DefaultFingerprint()
	if ua := strings.TrimSpace(os.Getenv("ZAI_USER_AGENT")); ua != "" {
		fp.UserAgent = sanitizeHeaderValue(ua, DefaultUserAgent)
	}
	if v := strings.TrimSpace(os.Getenv("ZAI_FE_VERSION")); v != "" {
		fp.FEVersion = sanitizeHeaderValue(v, DefaultFEVersion)
	}
	return fp
}

// Apply sets the fingerprint headers on headers. Empty fields fall back to
// the defaults.
func (fp Fingerprint) Apply(headers http.Header) {
	if headers == nil {
		return
	}
	def := DefaultFingerprint()
	headers.Set("User-Agent", orDefault(fp.UserAgent, def.UserAgent))
	headers.Set("sec-ch-ua", orDefault(fp.SecChUa, def.SecChUa))
	headers.Set("sec-ch-ua-mobile", orDefault(fp.SecChUaMobile, def.SecChUaMobile))
	headers.Set("sec-ch-ua-platform", orDefault(fp.SecChUaPlatform, def.SecChUaPlatform))
	headers.Set("X-FE-Version", orDefault(fp.FEVersion, def.FEVersion))
}

func orDefault(v, fallback string) string {
	if isValidHeaderValue(v) {
		return v
	}
	return fallback
}

func sanitizeHeaderValue(candidate, fallback string) string {
	if isValidHeaderValue(candidate) {
		return candidate
	}
	sanitized := sanitizePrintableASCII(candidate)
	if sanitized != "" && isValidHeaderValue(sanitized) {
		return sanitized
	}
	return fallback
}

func sanitizePrintableASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= ' ' && r <= '~' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isValidHeaderValue(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	for _, r := range s {
		if r < ' ' || r == 0x7f {
			return false
		}
	}
	return true
}
