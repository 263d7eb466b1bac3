package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/courier-ai/courier/internal/bus"
	"github.com/courier-ai/courier/internal/session"
	"github.com/courier-ai/courier/pkg/models"
)

func newTestManager(t *testing.T, provider LLMProvider, b *bus.MessageBus, limit int) *SubagentManager {
	t.Helper()
	sessions, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewSubagentManager(provider, sessions, NewContextBuilder("", ""), b, "", 5, limit, nil)
}

func TestSpawnAnnouncesCompletion(t *testing.T) {
	b := bus.New()
	provider := &fakeProvider{responses: []*LLMResponse{textResponse("task output")}}
	m := newTestManager(t, provider, b, 0)

	id, err := m.Spawn(context.Background(), "telegram", "77", "summarize the report")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if len(id) != 8 {
		t.Errorf("subagent id = %q, want 8 hex chars", id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	announce, err := b.ConsumeInbound(ctx)
	if err != nil {
		t.Fatalf("no announcement: %v", err)
	}

	if announce.Channel != models.ChannelSystem {
		t.Errorf("announce channel = %q", announce.Channel)
	}
	if announce.SenderID != "subagent:"+id {
		t.Errorf("announce sender = %q", announce.SenderID)
	}
	if announce.ChatID != "telegram:77" {
		t.Errorf("announce chat = %q, want telegram:77", announce.ChatID)
	}
	if !strings.Contains(announce.Content, "Task: summarize the report") ||
		!strings.Contains(announce.Content, "task output") {
		t.Errorf("announce content = %q", announce.Content)
	}
}

func TestSpawnEnforcesLimit(t *testing.T) {
	b := bus.New()
	// A provider that blocks keeps children running.
	blocked := make(chan struct{})
	provider := &blockingProvider{release: blocked}
	m := newTestManager(t, provider, b, 1)

	if _, err := m.Spawn(context.Background(), "cli", "direct", "first"); err != nil {
		t.Fatalf("first spawn: %v", err)
	}
	if _, err := m.Spawn(context.Background(), "cli", "direct", "second"); err == nil {
		t.Error("second spawn should exceed the limit")
	}
	close(blocked)
}

func TestSpawnChildRegistryHasNoSpawn(t *testing.T) {
	b := bus.New()
	provider := &fakeProvider{responses: []*LLMResponse{textResponse("ok")}}
	m := newTestManager(t, provider, b, 0)

	var childNames []string
	m.SetChildTools(func(reg *Registry) {
		reg.Register(&fakeTool{name: "read_file"})
		childNames = reg.Names()
	})

	if _, err := m.Spawn(context.Background(), "cli", "direct", "task"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := b.ConsumeInbound(ctx); err != nil {
		t.Fatalf("child did not finish: %v", err)
	}
	for _, name := range childNames {
		if name == "spawn" {
			t.Error("child registry contains spawn")
		}
	}
}

// blockingProvider blocks Chat until released.
type blockingProvider struct {
	release chan struct{}
}

func (p *blockingProvider) Chat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, opts ChatOptions) (*LLMResponse, error) {
	select {
	case <-p.release:
	case <-ctx.Done():
	}
	return &LLMResponse{Content: "done", FinishReason: "stop"}, nil
}

func (p *blockingProvider) StreamChat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, opts ChatOptions) (<-chan StreamDelta, error) {
	resp, _ := p.Chat(ctx, messages, tools, opts)
	return OneShotStream(resp), nil
}

func (p *blockingProvider) DefaultModel() string { return "fake" }
func (p *blockingProvider) Name() string         { return "blocking" }
