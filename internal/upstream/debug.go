package upstream

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/n0madic/go-zai2api/internal/transform"
	"github.com/n0madic/go-zai2api/internal/types"
)

// Inline media size thresholds, in KB, that tend to trip upstream limits.
const (
	mediaWarnKB  = 500
	mediaLargeKB = 1000
)

var mediaKinds = []string{types.BlockImage, types.BlockVideo, types.BlockDocument, types.BlockAudio}

func (c *Client) logRequest(upReq *types.UpstreamRequest, body []byte) {
	c.logger.Debug("upstream.request",
		"model", upReq.Model,
		"messages", len(upReq.Messages),
		"chat_id", upReq.ChatID,
		"thinking", upReq.Features.EnableThinking,
		"preview_mode", upReq.Features.PreviewMode,
		"model_item", upReq.ModelItem != nil,
	)
	for _, m := range summarizeMedia(body) {
		attrs := []any{
			"message", m.Message,
			"block", m.Block,
			"type", m.Type,
			"format", m.Format,
			"size_kb", fmt.Sprintf("%.1f", m.SizeKB),
			"inline", m.Inline,
		}
		switch {
		case m.SizeKB > mediaLargeKB:
			c.logger.Warn("upstream.media_too_large", attrs...)
		case m.SizeKB > mediaWarnKB:
			c.logger.Warn("upstream.media_large", attrs...)
		default:
			c.logger.Debug("upstream.media", attrs...)
		}
	}
	c.logger.Debug("upstream.body", "body", redactDataURIs(body))
}

// mediaSummary describes one media block of an outgoing request.
type mediaSummary struct {
	Message int
	Block   int
	Type    string
	Format  string
	SizeKB  float64
	Inline  bool
}

func summarizeMedia(body []byte) []mediaSummary {
	var out []mediaSummary
	gjson.GetBytes(body, "messages").ForEach(func(mi, msg gjson.Result) bool {
		content := msg.Get("content")
		if !content.IsArray() {
			return true
		}
		content.ForEach(func(bi, block gjson.Result) bool {
			kind := block.Get("type").String()
			url := mediaURL(block, kind)
			if url == "" {
				return true
			}
			s := mediaSummary{Message: int(mi.Int()), Block: int(bi.Int()), Type: kind}
			if strings.HasPrefix(url, "data:") {
				s.Inline = true
				s.Format = transform.DataURIFormat(url)
				s.SizeKB = transform.DataURISizeKB(url)
			}
			out = append(out, s)
			return true
		})
		return true
	})
	return out
}

func mediaURL(block gjson.Result, kind string) string {
	for _, k := range mediaKinds {
		if k == kind {
			return block.Get(k + ".url").String()
		}
	}
	return ""
}

// redactDataURIs replaces inline media payloads with a size placeholder so
// debug logs stay readable.
func redactDataURIs(body []byte) string {
	out := string(body)
	gjson.GetBytes(body, "messages").ForEach(func(mi, msg gjson.Result) bool {
		msg.Get("content").ForEach(func(bi, block gjson.Result) bool {
			kind := block.Get("type").String()
			url := mediaURL(block, kind)
			header, payload, ok := strings.Cut(url, ",")
			if !ok || !strings.HasPrefix(header, "data:") {
				return true
			}
			path := fmt.Sprintf("messages.%d.content.%d.%s.url", mi.Int(), bi.Int(), kind)
			redacted := fmt.Sprintf("%s,<%d bytes>", header, len(payload))
			if next, err := sjson.Set(out, path, redacted); err == nil {
				out = next
			}
			return true
		})
		return true
	})
	return out
}
