package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/courier-ai/courier/internal/agent"
)

// SpawnTool hands a task to a background subagent. The spawned agent
// announces its result back into the parent conversation when done.
type SpawnTool struct {
	manager *agent.SubagentManager

	mu      sync.Mutex
	channel string
	chatID  string
}

func NewSpawnTool(manager *agent.SubagentManager) *SpawnTool {
	return &SpawnTool{manager: manager}
}

func (t *SpawnTool) Name() string { return "spawn" }

func (t *SpawnTool) Description() string {
	return "Spawn a background subagent to work on a task. Returns immediately; the result is announced to this conversation when the task finishes."
}

func (t *SpawnTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task": map[string]any{
				"type":        "string",
				"description": "Task description for the subagent",
			},
		},
		"required": []string{"task"},
	})
}

// SetChatContext records the parent conversation for the announcement.
func (t *SpawnTool) SetChatContext(channel, chatID string) {
	t.mu.Lock()
	t.channel = channel
	t.chatID = chatID
	t.mu.Unlock()
}

func (t *SpawnTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	task, err := requireString(params, "task")
	if err != nil {
		return "", err
	}
	t.mu.Lock()
	channel, chatID := t.channel, t.chatID
	t.mu.Unlock()
	if channel == "" || chatID == "" {
		return "", fmt.Errorf("no conversation context set")
	}

	id, err := t.manager.Spawn(context.WithoutCancel(ctx), channel, chatID, task)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Subagent %s started. Its result will be announced here when done.", id), nil
}
