package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/courier-ai/courier/internal/bus"
	"github.com/courier-ai/courier/internal/session"
	"github.com/courier-ai/courier/pkg/models"
)

// SubagentManager runs background tasks in isolated child loops. A child
// shares the parent's provider and session store but gets its own tool
// registry without a spawn tool, so children cannot spawn grandchildren.
// Completion is announced on the system channel with the parent
// conversation encoded in the chat ID; the main loop folds the result into
// that conversation.
type SubagentManager struct {
	provider LLMProvider
	sessions *session.Store
	context  *ContextBuilder
	bus      *bus.MessageBus
	model    string
	maxIters int
	logger   *slog.Logger

	mu      sync.Mutex
	running map[string]string
	limit   int

	// childTools populates each child's registry. Installed after
	// construction to break the cycle between manager and tool wiring.
	childTools func(*Registry)
}

// NewSubagentManager creates a manager. maxConcurrent bounds simultaneous
// children (0 means 8).
func NewSubagentManager(provider LLMProvider, sessions *session.Store, ctx *ContextBuilder, b *bus.MessageBus, model string, maxIterations, maxConcurrent int, logger *slog.Logger) *SubagentManager {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubagentManager{
		provider: provider,
		sessions: sessions,
		context:  ctx,
		bus:      b,
		model:    model,
		maxIters: maxIterations,
		logger:   logger.With("component", "subagent"),
		running:  make(map[string]string),
		limit:    maxConcurrent,
	}
}

// SetChildTools installs the function that wires tools into child
// registries. The function must not register a spawn tool.
func (m *SubagentManager) SetChildTools(fn func(*Registry)) {
	m.childTools = fn
}

// Spawn starts a background task for the given parent conversation and
// returns the subagent ID immediately.
func (m *SubagentManager) Spawn(ctx context.Context, parentChannel, parentChatID, task string) (string, error) {
	m.mu.Lock()
	if len(m.running) >= m.limit {
		m.mu.Unlock()
		return "", fmt.Errorf("subagent limit reached (%d running)", m.limit)
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	m.running[id] = task
	m.mu.Unlock()

	m.logger.Info("subagent spawned", "id", id, "task", preview(task, 80))

	go m.runChild(ctx, id, parentChannel, parentChatID, task)
	return id, nil
}

// Running returns the IDs and tasks of active subagents.
func (m *SubagentManager) Running() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.running))
	for id, task := range m.running {
		out[id] = task
	}
	return out
}

func (m *SubagentManager) runChild(ctx context.Context, id, parentChannel, parentChatID, task string) {
	defer func() {
		m.mu.Lock()
		delete(m.running, id)
		m.mu.Unlock()
	}()

	registry := NewRegistry()
	if m.childTools != nil {
		m.childTools(registry)
	}

	child, err := New(Config{
		Provider:      m.provider,
		Registry:      registry,
		Sessions:      m.sessions,
		Context:       m.context,
		Model:         m.model,
		MaxIterations: m.maxIters,
		Logger:        m.logger.With("subagent", id),
	})

	var result string
	if err != nil {
		result = fmt.Sprintf("Subagent failed to start: %v", err)
	} else {
		sessionKey := "subagent:" + id
		result, err = child.ProcessDirect(ctx, task, sessionKey, "subagent", id)
		if err != nil {
			result = fmt.Sprintf("Subagent task failed: %v", err)
		} else if result == "" {
			result = backgroundDoneText
		}
	}

	m.logger.Info("subagent finished", "id", id)
	m.bus.PublishInbound(&models.InboundMessage{
		Channel:  models.ChannelSystem,
		SenderID: "subagent:" + id,
		ChatID:   parentChannel + ":" + parentChatID,
		Content:  fmt.Sprintf("Subagent task finished.\n\nTask: %s\n\nResult:\n%s", task, result),
	})
}
