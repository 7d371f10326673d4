package types

// UpstreamRequest is the body POSTed to the Z.ai chat completions endpoint.
type UpstreamRequest struct {
	Stream          bool              `json:"stream"`
	Model           string            `json:"model"`
	Messages        []ChatMessage     `json:"messages"`
	Params          ModelParams       `json:"params"`
	Features        UpstreamFeatures  `json:"features"`
	BackgroundTasks map[string]bool   `json:"background_tasks,omitempty"`
	ChatID          string            `json:"chat_id,omitempty"`
	ID              string            `json:"id,omitempty"`
	ModelItem       *ModelItem        `json:"model_item,omitempty"`
	ToolServers     []string          `json:"tool_servers"`
	Variables       map[string]string `json:"variables,omitempty"`
}

// ModelParams are the sampling parameters sent with every upstream request.
// A zero MaxTokens is omitted.
type ModelParams struct {
	TopP        float64 `json:"top_p"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// UpstreamFeatures toggles upstream-side features per request.
type UpstreamFeatures struct {
	EnableThinking  bool `json:"enable_thinking"`
	ImageGeneration bool `json:"image_generation"`
	WebSearch       bool `json:"web_search"`
	AutoWebSearch   bool `json:"auto_web_search"`
	PreviewMode     bool `json:"preview_mode"`
}

// ModelItem is the optional model metadata block some frontend revisions send.
type ModelItem struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnedBy string `json:"owned_by"`
}

// UpstreamEvent is one decoded `data:` frame of the upstream SSE stream.
type UpstreamEvent struct {
	Type  string         `json:"type"`
	Data  UpstreamData   `json:"data"`
	Error *UpstreamError `json:"error,omitempty"`
}

// UpstreamData carries the incremental payload of an upstream frame.
type UpstreamData struct {
	DeltaContent string         `json:"delta_content"`
	Phase        string         `json:"phase"`
	Done         bool           `json:"done"`
	Usage        *Usage         `json:"usage,omitempty"`
	Error        *UpstreamError `json:"error,omitempty"`
	Inner        *UpstreamInner `json:"inner,omitempty"`
}

// UpstreamInner wraps a nested upstream error.
type UpstreamInner struct {
	Error *UpstreamError `json:"error,omitempty"`
}

// UpstreamError is an error object reported inside the upstream stream.
// Code is left untyped; upstream has sent both numbers and strings.
type UpstreamError struct {
	Detail string `json:"detail"`
	Code   any    `json:"code,omitempty"`
}

// Upstream phase values.
const (
	PhaseThinking = "thinking"
	PhaseAnswer   = "answer"
	PhaseDone     = "done"
)
