package reasoning

import (
	"fmt"
	"regexp"
	"strings"
)

// Mode selects how <details> reasoning markup is rendered for clients.
type Mode string

const (
	// ModeRaw leaves <details> blocks untouched.
	ModeRaw Mode = "raw"
	// ModeThink rewrites <details> blocks into <thinking> tags.
	ModeThink Mode = "think"
	// ModeStrip removes the <details> tags and keeps their content.
	ModeStrip Mode = "strip"
)

var (
	summaryPattern     = regexp.MustCompile(`(?s)<summary>.*?</summary>`)
	detailsOpenPattern = regexp.MustCompile(`<details[^>]*>`)
)

// artifactTags are stray tags the upstream leaks into thinking deltas.
var artifactTags = []string{"</thinking>", "<Full>", "</Full>"}

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeRaw, ModeThink, ModeStrip:
		return m, nil
	case "":
		return ModeStrip, nil
	default:
		return "", fmt.Errorf("unknown think tags mode %q (want raw|think|strip)", s)
	}
}

// Transform cleans a thinking-phase delta. Summaries and artifact tags are
// removed, <details> markup is handled according to mode, and quote-style
// "> " line prefixes are dropped.
//
// Strip mode repeats the pass until the text stops changing, so its output
// is stable under re-application.
func Transform(content string, mode Mode) string {
	result := transformOnce(content, mode)
	if mode != ModeStrip {
		return result
	}
	for {
		next := transformOnce(result, mode)
		if next == result {
			return result
		}
		result = next
	}
}

func transformOnce(content string, mode Mode) string {
	result := summaryPattern.ReplaceAllString(content, "")
	for _, tag := range artifactTags {
		result = strings.ReplaceAll(result, tag, "")
	}
	result = strings.TrimSpace(result)

	switch mode {
	case ModeThink:
		result = detailsOpenPattern.ReplaceAllString(result, "<thinking>")
		result = strings.ReplaceAll(result, "</details>", "</thinking>")
	case ModeStrip:
		result = detailsOpenPattern.ReplaceAllString(result, "")
		result = strings.ReplaceAll(result, "</details>", "")
	}

	result = strings.TrimPrefix(result, "> ")
	result = strings.ReplaceAll(result, "\n> ", "\n")
	return strings.TrimSpace(result)
}
