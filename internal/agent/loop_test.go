package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/courier-ai/courier/internal/bus"
	"github.com/courier-ai/courier/internal/session"
	"github.com/courier-ai/courier/pkg/models"
)

// fakeProvider replays scripted responses in order. When the script runs
// out it repeats the last response.
type fakeProvider struct {
	mu        sync.Mutex
	responses []*LLMResponse
	err       error
	calls     [][]ChatMessage
}

func (p *fakeProvider) Chat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, opts ChatOptions) (*LLMResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	copied := make([]ChatMessage, len(messages))
	copy(copied, messages)
	p.calls = append(p.calls, copied)

	idx := len(p.calls) - 1
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx], nil
}

func (p *fakeProvider) StreamChat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, opts ChatOptions) (<-chan StreamDelta, error) {
	resp, err := p.Chat(ctx, messages, tools, opts)
	if err != nil {
		return nil, err
	}
	return OneShotStream(resp), nil
}

func (p *fakeProvider) DefaultModel() string { return "fake-model" }
func (p *fakeProvider) Name() string         { return "fake" }

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func textResponse(content string) *LLMResponse {
	return &LLMResponse{Content: content, FinishReason: "stop"}
}

func toolResponse(calls ...models.ToolCall) *LLMResponse {
	return &LLMResponse{ToolCalls: calls, FinishReason: "tool_calls"}
}

func newTestLoop(t *testing.T, provider LLMProvider, reg *Registry, b *bus.MessageBus) *Loop {
	t.Helper()
	sessions, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	loop, err := New(Config{
		Provider:      provider,
		Registry:      reg,
		Bus:           b,
		Sessions:      sessions,
		Context:       NewContextBuilder(t.TempDir(), "You are a test agent."),
		MaxIterations: 5,
		PollInterval:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	return loop
}

func TestNewRequiresProviderAndSessions(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoProvider) {
		t.Errorf("err = %v, want ErrNoProvider", err)
	}
	if _, err := New(Config{Provider: &fakeProvider{}}); !errors.Is(err, ErrNoSessionStore) {
		t.Errorf("err = %v, want ErrNoSessionStore", err)
	}
}

func TestProcessDirectSimpleReply(t *testing.T) {
	provider := &fakeProvider{responses: []*LLMResponse{textResponse("hi there")}}
	loop := newTestLoop(t, provider, NewRegistry(), nil)

	got, err := loop.ProcessDirect(context.Background(), "hello", "", "", "")
	if err != nil {
		t.Fatalf("ProcessDirect: %v", err)
	}
	if got != "hi there" {
		t.Errorf("reply = %q, want %q", got, "hi there")
	}

	// The conversation is persisted as a user/assistant pair.
	sess, err := loop.sessions.GetOrCreate("cli:direct")
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Entries) != 2 {
		t.Fatalf("session has %d entries, want 2", len(sess.Entries))
	}
	if sess.Entries[0].Role != "user" || sess.Entries[0].Content != "hello" {
		t.Errorf("user entry = %+v", sess.Entries[0])
	}
	if sess.Entries[1].Role != "assistant" || sess.Entries[1].Content != "hi there" {
		t.Errorf("assistant entry = %+v", sess.Entries[1])
	}
}

func TestProcessToolLoop(t *testing.T) {
	reg := NewRegistry()
	tool := &fakeTool{name: "lookup", result: "42"}
	reg.Register(tool)

	provider := &fakeProvider{responses: []*LLMResponse{
		toolResponse(models.ToolCall{ID: "c1", Name: "lookup", Arguments: map[string]any{"q": "answer"}}),
		textResponse("the answer is 42"),
	}}
	loop := newTestLoop(t, provider, reg, nil)

	got, err := loop.ProcessDirect(context.Background(), "what is the answer?", "", "", "")
	if err != nil {
		t.Fatalf("ProcessDirect: %v", err)
	}
	if got != "the answer is 42" {
		t.Errorf("reply = %q", got)
	}
	if len(tool.calls) != 1 {
		t.Fatalf("tool ran %d times, want 1", len(tool.calls))
	}
	if tool.calls[0]["q"] != "answer" {
		t.Errorf("tool args = %v", tool.calls[0])
	}
	if provider.callCount() != 2 {
		t.Errorf("provider called %d times, want 2", provider.callCount())
	}

	// The second provider call must include the tool result.
	second := provider.calls[1]
	found := false
	for _, m := range second {
		if m.Role == "tool" && m.ToolCallID == "c1" && m.Content == "42" {
			found = true
		}
	}
	if !found {
		t.Error("tool result missing from follow-up messages")
	}
}

func TestProcessPreservesEmptyCompletedReply(t *testing.T) {
	provider := &fakeProvider{responses: []*LLMResponse{textResponse("")}}
	loop := newTestLoop(t, provider, NewRegistry(), nil)

	got, err := loop.ProcessDirect(context.Background(), "hello", "", "", "")
	if err != nil {
		t.Fatalf("ProcessDirect: %v", err)
	}
	if got != "" {
		t.Errorf("reply = %q, want the empty completed reply kept", got)
	}

	sess, err := loop.sessions.GetOrCreate("cli:direct")
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Entries) != 2 || sess.Entries[1].Content != "" {
		t.Errorf("assistant entry = %+v, want empty content", sess.Entries[len(sess.Entries)-1])
	}
}

func TestProcessIterationExhaustion(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeTool{name: "noisy", result: "again"})

	// The provider never stops asking for tools.
	provider := &fakeProvider{responses: []*LLMResponse{
		toolResponse(models.ToolCall{ID: "c1", Name: "noisy", Arguments: map[string]any{}}),
	}}
	loop := newTestLoop(t, provider, reg, nil)

	got, err := loop.ProcessDirect(context.Background(), "go", "", "", "")
	if err != nil {
		t.Fatalf("ProcessDirect: %v", err)
	}
	if got != noResponseText {
		t.Errorf("reply = %q, want sentinel %q", got, noResponseText)
	}
	if provider.callCount() != 5 {
		t.Errorf("provider called %d times, want max iterations 5", provider.callCount())
	}
}

func TestRunRoutesSystemMessageToOrigin(t *testing.T) {
	b := bus.New()
	provider := &fakeProvider{responses: []*LLMResponse{textResponse("noted")}}
	loop := newTestLoop(t, provider, NewRegistry(), b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	b.PublishInbound(&models.InboundMessage{
		Channel:  models.ChannelSystem,
		SenderID: "cron:abc123",
		ChatID:   "telegram:9000",
		Content:  "Daily summary ready.",
	})

	out := waitOutbound(t, b, func(m *models.OutboundMessage) bool { return !m.IsToolNotification() })
	if out.Channel != "telegram" || out.ChatID != "9000" {
		t.Errorf("reply routed to %s/%s, want telegram/9000", out.Channel, out.ChatID)
	}
	if out.Content != "noted" {
		t.Errorf("reply = %q", out.Content)
	}

	// The origin session records the sender-prefixed user turn.
	sess, err := loop.sessions.GetOrCreate("telegram:9000")
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Entries) != 2 {
		t.Fatalf("session has %d entries, want 2", len(sess.Entries))
	}
	if want := "[System: cron:abc123] Daily summary ready."; sess.Entries[0].Content != want {
		t.Errorf("user entry = %q, want %q", sess.Entries[0].Content, want)
	}
}

func TestRunPublishesErrorReply(t *testing.T) {
	b := bus.New()
	provider := &fakeProvider{err: errors.New("connection refused")}
	loop := newTestLoop(t, provider, NewRegistry(), b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	b.PublishInbound(&models.InboundMessage{
		Channel: "websocket", SenderID: "u1", ChatID: "chat1", Content: "hi",
	})

	out := waitOutbound(t, b, func(m *models.OutboundMessage) bool { return true })
	if !strings.HasPrefix(out.Content, "Sorry, I encountered an error:") {
		t.Errorf("error reply = %q", out.Content)
	}
	if out.Channel != "websocket" || out.ChatID != "chat1" {
		t.Errorf("error reply routed to %s/%s", out.Channel, out.ChatID)
	}
}

func TestProcessPublishesToolNotifications(t *testing.T) {
	b := bus.New()
	reg := NewRegistry()
	reg.Register(&fakeTool{name: "lookup", result: "ok"})

	provider := &fakeProvider{responses: []*LLMResponse{
		toolResponse(models.ToolCall{ID: "c1", Name: "lookup", Arguments: map[string]any{}}),
		textResponse("done"),
	}}
	loop := newTestLoop(t, provider, reg, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	b.PublishInbound(&models.InboundMessage{
		Channel: "websocket", SenderID: "u1", ChatID: "c", Content: "go",
	})

	note := waitOutbound(t, b, func(m *models.OutboundMessage) bool { return m.IsToolNotification() })
	if note.Content != "Calling tool: lookup" {
		t.Errorf("notification = %q", note.Content)
	}
	reply := waitOutbound(t, b, func(m *models.OutboundMessage) bool { return !m.IsToolNotification() })
	if reply.Content != "done" {
		t.Errorf("reply = %q", reply.Content)
	}
}

func TestProcessInjectsChatContext(t *testing.T) {
	reg := NewRegistry()
	scoped := &fakeTool{name: "messenger", result: "sent"}
	reg.Register(scoped)

	provider := &fakeProvider{responses: []*LLMResponse{textResponse("ok")}}
	loop := newTestLoop(t, provider, reg, nil)

	if _, err := loop.ProcessDirect(context.Background(), "hi", "telegram:55", "telegram", "55"); err != nil {
		t.Fatal(err)
	}
	if scoped.channel != "telegram" || scoped.chatID != "55" {
		t.Errorf("chat context = %s/%s, want telegram/55", scoped.channel, scoped.chatID)
	}
}

func waitOutbound(t *testing.T, b *bus.MessageBus, match func(*models.OutboundMessage) bool) *models.OutboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		msg, err := b.ConsumeOutbound(ctx)
		if err != nil {
			t.Fatalf("no matching outbound message: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}
