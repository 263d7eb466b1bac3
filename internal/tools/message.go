package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/courier-ai/courier/internal/bus"
	"github.com/courier-ai/courier/pkg/models"
)

// MessageTool sends a proactive message to the current conversation,
// outside the request/reply flow. The loop injects the target conversation
// before each turn.
type MessageTool struct {
	bus *bus.MessageBus

	mu      sync.Mutex
	channel string
	chatID  string
}

func NewMessageTool(b *bus.MessageBus) *MessageTool {
	return &MessageTool{bus: b}
}

func (t *MessageTool) Name() string { return "message" }

func (t *MessageTool) Description() string {
	return "Send a message to the user immediately, before the final reply. Useful for acknowledgements and interim updates."
}

func (t *MessageTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{
				"type":        "string",
				"description": "Message text to send",
			},
		},
		"required": []string{"content"},
	})
}

// SetChatContext installs the target conversation.
func (t *MessageTool) SetChatContext(channel, chatID string) {
	t.mu.Lock()
	t.channel = channel
	t.chatID = chatID
	t.mu.Unlock()
}

func (t *MessageTool) Execute(_ context.Context, params map[string]any) (string, error) {
	content, err := requireString(params, "content")
	if err != nil {
		return "", err
	}
	t.mu.Lock()
	channel, chatID := t.channel, t.chatID
	t.mu.Unlock()
	if channel == "" || chatID == "" {
		return "", fmt.Errorf("no conversation context set")
	}
	t.bus.PublishOutbound(&models.OutboundMessage{
		Channel: channel,
		ChatID:  chatID,
		Content: content,
	})
	return "Message sent.", nil
}
