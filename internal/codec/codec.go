package codec

import (
	"strconv"
	"time"

	"github.com/n0madic/go-zai2api/internal/types"
)

const (
	objectChunk      = "chat.completion.chunk"
	objectCompletion = "chat.completion"
	finishStop       = "stop"
)

// NewChunkID returns a synthetic completion id derived from t.
func NewChunkID(t time.Time) string {
	return "chatcmpl-" + strconv.FormatInt(t.UnixMilli(), 10)
}

// Assembler builds OpenAI envelopes for one response. Every envelope shares
// the same id and creation time; Model echoes the client-requested name.
type Assembler struct {
	ID      string
	Model   string
	Created int64
}

// NewAssembler creates an assembler stamped with now.
func NewAssembler(model string, now time.Time) *Assembler {
	return &Assembler{ID: NewChunkID(now), Model: model, Created: now.Unix()}
}

func (a *Assembler) chunk(delta types.ChatDelta, finish *string) types.ChatCompletionChunk {
	return types.ChatCompletionChunk{
		ID:      a.ID,
		Object:  objectChunk,
		Created: a.Created,
		Model:   a.Model,
		Choices: []types.ChatChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}

// RoleChunk is the first chunk of every stream.
func (a *Assembler) RoleChunk() types.ChatCompletionChunk {
	return a.chunk(types.ChatDelta{Role: "assistant"}, nil)
}

// ContentChunk carries one piece of content.
func (a *Assembler) ContentChunk(text string) types.ChatCompletionChunk {
	return a.chunk(types.ChatDelta{Content: text}, nil)
}

// FinishChunk terminates a stream with an empty delta and finish_reason
// "stop". usage is attached when non-nil.
func (a *Assembler) FinishChunk(usage *types.Usage) types.ChatCompletionChunk {
	c := a.chunk(types.ChatDelta{}, types.StringPtr(finishStop))
	c.Usage = usage
	return c
}

// Completion wraps buffered content into a non-streaming response. A nil
// usage is reported as zeros.
func (a *Assembler) Completion(content string, usage *types.Usage) types.ChatCompletionResponse {
	if usage == nil {
		usage = &types.Usage{}
	}
	return types.ChatCompletionResponse{
		ID:      a.ID,
		Object:  objectCompletion,
		Created: a.Created,
		Model:   a.Model,
		Choices: []types.ChatChoice{{
			Index:        0,
			Message:      types.ChatResponseMsg{Role: "assistant", Content: content},
			FinishReason: types.StringPtr(finishStop),
		}},
		Usage: usage,
	}
}
