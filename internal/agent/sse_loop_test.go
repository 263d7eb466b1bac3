package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/courier-ai/courier/internal/sse"
	"github.com/courier-ai/courier/pkg/models"
)

func newSSEFixture(t *testing.T, provider LLMProvider, reg *Registry, stream bool) (*Loop, *sse.RequestContext, *sse.Emitter, *bytes.Buffer) {
	t.Helper()
	loop := newTestLoop(t, provider, reg, nil)
	req := &sse.Request{SessionID: "sess1", Stream: &stream}
	req.ApplyDefaults()
	rc := sse.NewRequestContext(req)
	var buf bytes.Buffer
	em := sse.NewEmitter(rc, &buf)
	return loop, rc, em, &buf
}

func decodeFrames(t *testing.T, buf *bytes.Buffer) []sse.Message {
	t.Helper()
	var events []sse.Message
	for _, frame := range strings.Split(buf.String(), "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		if !strings.HasPrefix(frame, "data: ") {
			t.Fatalf("frame missing data prefix: %q", frame)
		}
		var msg sse.Message
		if err := json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &msg); err != nil {
			t.Fatalf("decode frame %q: %v", frame, err)
		}
		events = append(events, msg)
	}
	return events
}

func userRequest(text string) []sse.RequestMessage {
	raw, _ := json.Marshal(text)
	return []sse.RequestMessage{{Role: "user", Content: raw}}
}

func toolCall(id, name string, args map[string]any) models.ToolCall {
	return models.ToolCall{ID: id, Name: name, Arguments: args}
}

func TestProcessSSEStreaming(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeTool{name: "lookup", result: "found it"})

	provider := &fakeProvider{responses: []*LLMResponse{
		toolResponse(toolCall("c1", "lookup", map[string]any{"q": "x"})),
		textResponse("here you go"),
	}}
	loop, rc, em, buf := newSSEFixture(t, provider, reg, true)

	if err := loop.ProcessSSE(context.Background(), rc, em, userRequest("find x")); err != nil {
		t.Fatalf("ProcessSSE: %v", err)
	}

	events := decodeFrames(t, buf)
	if len(events) == 0 {
		t.Fatal("no events emitted")
	}

	// Orders are strictly increasing from 1.
	for i, ev := range events {
		if ev.MessageOrder != i+1 {
			t.Errorf("event %d has order %d", i, ev.MessageOrder)
		}
	}

	// Expect tool call, tool result, text delta, done, in that order.
	kinds := make([]string, len(events))
	for i, ev := range events {
		kinds[i] = ev.MessageType
	}
	want := []string{sse.MessageTypeTool, sse.MessageTypeToolResult, sse.MessageTypeText, sse.MessageTypeDone}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}

	if events[0].Body.ToolName != "lookup" {
		t.Errorf("tool event names %q", events[0].Body.ToolName)
	}
	if events[1].Body.ToolResult != "found it" {
		t.Errorf("tool result = %q", events[1].Body.ToolResult)
	}
	if events[2].Body.Delta != "here you go" {
		t.Errorf("text delta = %q", events[2].Body.Delta)
	}

	// The two cycles use distinct message IDs.
	if events[0].MessageID == events[2].MessageID {
		t.Error("tool cycle and text cycle share a message ID")
	}

	// Final text was persisted.
	sess, err := loop.sessions.GetOrCreate("sse:sess1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Entries) != 2 || sess.Entries[1].Content != "here you go" {
		t.Errorf("session entries = %+v", sess.Entries)
	}
}

func TestProcessSSENonStreamSentinel(t *testing.T) {
	// The provider returns empty text immediately.
	provider := &fakeProvider{responses: []*LLMResponse{textResponse("")}}
	loop, rc, em, buf := newSSEFixture(t, provider, NewRegistry(), false)

	if err := loop.ProcessSSE(context.Background(), rc, em, userRequest("hello")); err != nil {
		t.Fatalf("ProcessSSE: %v", err)
	}

	events := decodeFrames(t, buf)
	var final *sse.Message
	for i := range events {
		if events[i].MessageType == sse.MessageTypeText && events[i].Status == sse.StatusCompleted {
			final = &events[i]
		}
	}
	if final == nil {
		t.Fatal("no completed text event")
	}
	if final.Body.Content != "I've completed processing but have no response to give." {
		t.Errorf("final content = %q", final.Body.Content)
	}
	if events[len(events)-1].MessageType != sse.MessageTypeDone {
		t.Error("missing terminal done event")
	}
}

// progressTool reports a step and a file while executing.
type progressTool struct {
	fakeTool
	sink chan<- ProgressEvent
}

func (p *progressTool) SetProgressSink(sink chan<- ProgressEvent) { p.sink = sink }
func (p *progressTool) ClearProgressSink()                        { p.sink = nil }

func (p *progressTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	if p.sink != nil {
		p.sink <- ProgressEvent{Type: ProgressStep, Message: "working"}
		p.sink <- ProgressEvent{Type: ProgressFile, Files: []string{"https://x/report.html"}}
	}
	return "uploaded", nil
}

func TestProcessSSEForwardsProgress(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&progressTool{fakeTool: fakeTool{name: "builder"}})

	provider := &fakeProvider{responses: []*LLMResponse{
		toolResponse(toolCall("c1", "builder", map[string]any{})),
		textResponse("done"),
	}}
	loop, rc, em, buf := newSSEFixture(t, provider, reg, true)

	if err := loop.ProcessSSE(context.Background(), rc, em, userRequest("build it")); err != nil {
		t.Fatalf("ProcessSSE: %v", err)
	}

	events := decodeFrames(t, buf)
	var sawStep, sawFile, sawResult bool
	for _, ev := range events {
		switch {
		case ev.MessageType == sse.MessageTypeText && ev.Body != nil && strings.HasPrefix(ev.Body.Delta, "💡 working"):
			sawStep = true
		case ev.MessageType == sse.MessageTypeFile:
			sawFile = true
			if len(ev.Body.Files) != 1 || ev.Body.Files[0] != "https://x/report.html" {
				t.Errorf("file event = %+v", ev.Body)
			}
		case ev.MessageType == sse.MessageTypeToolResult && ev.Body.ToolResult == "uploaded":
			sawResult = true
		}
	}
	if !sawStep || !sawFile || !sawResult {
		t.Errorf("progress events missing: step=%v file=%v result=%v", sawStep, sawFile, sawResult)
	}
}

func TestParseMessageContentParts(t *testing.T) {
	raw := json.RawMessage(`[
		{"type": "text", "text": "describe this"},
		{"type": "image_url", "image_url": {"url": "https://img/cat.png"}}
	]`)
	text, media := parseMessageContent(raw)
	if text != "describe this" {
		t.Errorf("text = %q", text)
	}
	if len(media) != 1 || media[0] != "https://img/cat.png" {
		t.Errorf("media = %v", media)
	}
}

func TestParseArgumentsMalformed(t *testing.T) {
	if got := ParseArguments(`{"a": 1}`); got["a"] != float64(1) {
		t.Errorf("valid args = %v", got)
	}
	for _, raw := range []string{"", "not json", "null"} {
		got := ParseArguments(raw)
		if got == nil || len(got) != 0 {
			t.Errorf("ParseArguments(%q) = %v, want empty map", raw, got)
		}
	}
}
