package transform

import (
	"context"
	"log/slog"
	"strings"

	"github.com/n0madic/go-zai2api/internal/models"
	"github.com/n0madic/go-zai2api/internal/types"
)

// ProcessMessages adapts chat messages to the capabilities of model.
// Scalar content is kept as is. For models without vision, block content is
// collapsed into the newline-joined text of its text blocks; vision models
// receive block content unchanged, unknown block types included.
func ProcessMessages(messages []types.ChatMessage, model models.ModelConfig, logger *slog.Logger) []types.ChatMessage {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]types.ChatMessage, 0, len(messages))
	for i, msg := range messages {
		blocks, ok := types.ContentBlocks(msg.Content)
		if !ok {
			out = append(out, msg)
			continue
		}
		if model.Capabilities.Vision {
			if logger.Enabled(context.Background(), slog.LevelDebug) {
				stats := ClassifyContent(blocks)
				logger.Debug("transform.multimodal",
					"index", i,
					"role", msg.Role,
					"media", stats.Media(),
					"text", stats.Text,
					"image", stats.Image,
					"video", stats.Video,
					"document", stats.Document,
					"audio", stats.Audio,
					"other", stats.Other,
				)
			}
			out = append(out, msg)
			continue
		}
		out = append(out, types.ChatMessage{Role: msg.Role, Content: joinText(blocks)})
	}
	return out
}

func joinText(blocks []types.ContentBlock) string {
	var texts []string
	for _, b := range blocks {
		if b.Type == types.BlockText {
			texts = append(texts, b.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// MediaStats counts content blocks by type.
type MediaStats struct {
	Text     int
	Image    int
	Video    int
	Document int
	Audio    int
	Other    int
}

// Media returns the number of non-text blocks.
func (s MediaStats) Media() int {
	return s.Image + s.Video + s.Document + s.Audio + s.Other
}

// ClassifyContent counts blocks per type.
func ClassifyContent(blocks []types.ContentBlock) MediaStats {
	var s MediaStats
	for _, b := range blocks {
		switch b.Type {
		case types.BlockText:
			s.Text++
		case types.BlockImage:
			s.Image++
		case types.BlockVideo:
			s.Video++
		case types.BlockDocument:
			s.Document++
		case types.BlockAudio:
			s.Audio++
		default:
			s.Other++
		}
	}
	return s
}

var dataURIPrefixes = []string{"data:image/", "data:video/", "data:application/", "data:audio/"}

// DataURIFormat returns the media subtype of a base64 data URI
// ("data:image/png;base64,..." gives "png"), or "" for anything else.
func DataURIFormat(uri string) string {
	for _, prefix := range dataURIPrefixes {
		rest, ok := strings.CutPrefix(uri, prefix)
		if !ok {
			continue
		}
		format, _, found := strings.Cut(rest, ";")
		if !found {
			return ""
		}
		return format
	}
	return ""
}

// DataURISizeKB approximates the decoded size of a base64 data URI payload.
func DataURISizeKB(uri string) float64 {
	_, payload, ok := strings.Cut(uri, ",")
	if !ok {
		return 0
	}
	return float64(len(payload)) * 0.75 / 1024
}
