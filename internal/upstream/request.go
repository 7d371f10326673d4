package upstream

import (
	"strconv"
	"time"

	"github.com/n0madic/go-zai2api/internal/models"
	"github.com/n0madic/go-zai2api/internal/types"
)

// modelItemOwner is what the upstream frontend reports in model_item.
const modelItemOwner = "openai"

// zhCNDateTime mirrors the zh-CN locale rendering the web client sends.
const zhCNDateTime = "2006/1/2 15:04:05"

// RequestIDs are the synthetic identifiers of one upstream conversation.
type RequestIDs struct {
	ChatID    string
	MessageID string
	Now       time.Time
}

// NewRequestIDs derives ids from now: chat id "<ms>-<s>", message id "<ms>".
func NewRequestIDs(now time.Time) RequestIDs {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	return RequestIDs{
		ChatID:    ms + "-" + strconv.FormatInt(now.Unix(), 10),
		MessageID: ms,
		Now:       now,
	}
}

// BuildOptions toggles optional request fields.
type BuildOptions struct {
	IncludeModelItem bool
}

// BuildRequest assembles the upstream body. Upstream streaming is always
// requested; buffering for non-streaming clients happens locally.
func BuildRequest(messages []types.ChatMessage, model models.ModelConfig, ids RequestIDs, opts BuildOptions) *types.UpstreamRequest {
	req := &types.UpstreamRequest{
		Stream:   true,
		Model:    model.UpstreamID,
		Messages: messages,
		Params:   model.DefaultParams,
		Features: types.UpstreamFeatures{
			EnableThinking:  model.Capabilities.Thinking,
			ImageGeneration: false,
			WebSearch:       false,
			AutoWebSearch:   false,
			PreviewMode:     model.Capabilities.Vision,
		},
		BackgroundTasks: map[string]bool{
			"title_generation": false,
			"tags_generation":  false,
		},
		ChatID:      ids.ChatID,
		ID:          ids.MessageID,
		ToolServers: []string{},
		Variables: map[string]string{
			"{{USER_NAME}}":        "Guest-" + ids.MessageID,
			"{{CURRENT_DATETIME}}": ids.Now.Format(zhCNDateTime),
		},
	}
	if opts.IncludeModelItem {
		req.ModelItem = &types.ModelItem{
			ID:      model.UpstreamID,
			Name:    model.DisplayName,
			OwnedBy: modelItemOwner,
		}
	}
	return req
}
