package sse

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newTestEmitter(t *testing.T) (*Emitter, *RequestContext, *bytes.Buffer) {
	t.Helper()
	req := &Request{SessionID: "s1"}
	req.ApplyDefaults()
	rc := NewRequestContext(req)
	var buf bytes.Buffer
	return NewEmitter(rc, &buf), rc, &buf
}

func decodeAll(t *testing.T, buf *bytes.Buffer) []Message {
	t.Helper()
	var out []Message
	for _, frame := range strings.Split(buf.String(), "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		if !strings.HasPrefix(frame, "data: ") {
			t.Fatalf("malformed frame: %q", frame)
		}
		var msg Message
		if err := json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

func TestEmitterFrameShape(t *testing.T) {
	em, rc, buf := newTestEmitter(t)

	if err := em.TextDelta("hel"); err != nil {
		t.Fatal(err)
	}
	if err := em.TextDelta("lo"); err != nil {
		t.Fatal(err)
	}

	raw := buf.String()
	if !strings.HasPrefix(raw, "data: ") || !strings.HasSuffix(raw, "\n\n") {
		t.Errorf("frames not in data: ...\\n\\n form: %q", raw)
	}

	events := decodeAll(t, buf)
	if len(events) != 2 {
		t.Fatalf("got %d events", len(events))
	}
	for i, ev := range events {
		if ev.SessionID != "s1" || ev.RequestID != rc.RequestID {
			t.Errorf("event %d identity = %s/%s", i, ev.SessionID, ev.RequestID)
		}
		if ev.MessageOrder != i+1 {
			t.Errorf("event %d order = %d", i, ev.MessageOrder)
		}
		if ev.Status != StatusProcessing || ev.MessageType != MessageTypeText {
			t.Errorf("event %d = %s/%s", i, ev.Status, ev.MessageType)
		}
	}
	if events[0].Body.Delta != "hel" || events[1].Body.Delta != "lo" {
		t.Errorf("deltas = %q, %q", events[0].Body.Delta, events[1].Body.Delta)
	}
	// Deltas in the same cycle share a message ID.
	if events[0].MessageID != events[1].MessageID {
		t.Error("deltas have different message IDs")
	}
}

func TestTextCompleteMintsFreshID(t *testing.T) {
	em, _, buf := newTestEmitter(t)

	em.TextDelta("partial")
	em.TextComplete("full answer")

	events := decodeAll(t, buf)
	if events[0].MessageID == events[1].MessageID {
		t.Error("TextComplete reused the delta message ID")
	}
	if events[1].Status != StatusCompleted || events[1].Body.Content != "full answer" {
		t.Errorf("complete event = %+v", events[1])
	}
}

func TestToolEvents(t *testing.T) {
	em, _, buf := newTestEmitter(t)

	em.ToolCall("search", map[string]any{"q": "go"})
	em.ToolResult("search", "3 results")

	events := decodeAll(t, buf)
	call, result := events[0], events[1]
	if call.Status != StatusToolCalling || call.MessageType != MessageTypeTool {
		t.Errorf("call event = %s/%s", call.Status, call.MessageType)
	}
	if call.Body.ToolName != "search" || call.Body.ToolArguments["q"] != "go" {
		t.Errorf("call body = %+v", call.Body)
	}
	if result.MessageType != MessageTypeToolResult || result.Body.ToolResult != "3 results" {
		t.Errorf("result event = %+v", result.Body)
	}
}

func TestProgressDecoratesMessage(t *testing.T) {
	em, _, buf := newTestEmitter(t)
	em.Progress("fetching data")

	events := decodeAll(t, buf)
	if got := events[0].Body.Delta; got != "💡 fetching data\n" {
		t.Errorf("progress delta = %q", got)
	}
}

func TestErrorAndDone(t *testing.T) {
	em, _, buf := newTestEmitter(t)
	em.Error("something broke")
	em.Done()

	events := decodeAll(t, buf)
	if events[0].Status != StatusError || events[0].Error != "something broke" {
		t.Errorf("error event = %+v", events[0])
	}
	if events[0].Body != nil {
		t.Error("error event carries a body")
	}
	if events[1].MessageType != MessageTypeDone || events[1].Status != StatusCompleted {
		t.Errorf("done event = %+v", events[1])
	}
}

func TestOmittedFieldsAbsentOnWire(t *testing.T) {
	em, _, buf := newTestEmitter(t)
	em.TextDelta("x")

	raw := strings.TrimPrefix(strings.TrimSpace(buf.String()), "data: ")
	for _, field := range []string{"content", "files", "tool_name", "error"} {
		if strings.Contains(raw, `"`+field+`"`) {
			t.Errorf("wire frame contains empty field %q: %s", field, raw)
		}
	}
}
