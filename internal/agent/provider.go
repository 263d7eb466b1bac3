package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/courier-ai/courier/pkg/models"
)

// ChatMessage is one entry of the provider-facing conversation. Content is
// plain text; Parts, when set, carries multimodal content and takes
// precedence.
type ChatMessage struct {
	Role       string
	Content    string
	Parts      []ContentPart
	ToolCalls  []models.ToolCall
	ToolCallID string
	Reasoning  string
}

// ContentPart is a single multimodal segment of a user message.
type ContentPart struct {
	Type     string // "text" or "image_url"
	Text     string
	ImageURL string
}

// Text returns the textual content of the message, flattening multimodal
// parts when present.
func (m *ChatMessage) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var out string
	for _, p := range m.Parts {
		if p.Type == "text" {
			if out != "" {
				out += "\n"
			}
			out += p.Text
		}
	}
	return out
}

// Usage reports token accounting for one provider call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LLMResponse is the normalized result of a chat completion. Transport and
// API failures are reported in-band: Content carries the error text and
// FinishReason is "error". The loop treats such a response as a final
// assistant message, never as a Go error.
type LLMResponse struct {
	Content      string
	ToolCalls    []models.ToolCall
	FinishReason string
	Usage        *Usage
	Reasoning    string
}

// HasToolCalls reports whether the model requested tool execution.
func (r *LLMResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// StreamDelta is one increment of a streamed completion. Exactly one of the
// delta fields is meaningful per event: content text, reasoning text, a
// tool-call fragment (identified by ToolCallIndex), or the terminal finish
// reason with usage.
type StreamDelta struct {
	ContentDelta   string
	ReasoningDelta string

	// Tool-call fragments accumulate per index. The first fragment for an
	// index carries ID and Name; later fragments append ArgumentsDelta.
	ToolCallIndex  *int
	ToolCallID     string
	ToolCallName   string
	ArgumentsDelta string

	FinishReason string
	Usage        *Usage
}

// ChatOptions tunes a single provider call.
type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// LLMProvider is the gateway to one model backend. Implementations
// normalize provider-specific wire formats into LLMResponse/StreamDelta.
type LLMProvider interface {
	// Chat performs a blocking completion.
	Chat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, opts ChatOptions) (*LLMResponse, error)

	// StreamChat performs a streaming completion. The returned channel is
	// closed after the final delta.
	StreamChat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, opts ChatOptions) (<-chan StreamDelta, error)

	// DefaultModel returns the model used when ChatOptions.Model is empty.
	DefaultModel() string

	// Name identifies the provider for logging.
	Name() string
}

// OneShotStream adapts a blocking response into a stream, for providers
// without native streaming support.
func OneShotStream(resp *LLMResponse) <-chan StreamDelta {
	ch := make(chan StreamDelta, len(resp.ToolCalls)+3)
	if resp.Reasoning != "" {
		ch <- StreamDelta{ReasoningDelta: resp.Reasoning}
	}
	if resp.Content != "" {
		ch <- StreamDelta{ContentDelta: resp.Content}
	}
	for i, tc := range resp.ToolCalls {
		idx := i
		args := "{}"
		if tc.Arguments != nil {
			if raw, err := marshalArguments(tc.Arguments); err == nil {
				args = raw
			}
		}
		ch <- StreamDelta{
			ToolCallIndex:  &idx,
			ToolCallID:     tc.ID,
			ToolCallName:   tc.Name,
			ArgumentsDelta: args,
		}
	}
	ch <- StreamDelta{FinishReason: resp.FinishReason, Usage: resp.Usage}
	close(ch)
	return ch
}

func marshalArguments(args map[string]any) (string, error) {
	b, err := json.Marshal(args)
	return string(b), err
}

// ParseArguments decodes an accumulated tool-argument buffer. Empty or
// malformed JSON yields an empty map; a streamed call with broken
// arguments still executes rather than aborting the turn.
func ParseArguments(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}
