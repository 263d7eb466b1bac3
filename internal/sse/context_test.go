package sse

import "testing"

func TestNewRequestContextDefaults(t *testing.T) {
	req := &Request{SessionID: "s1", RequestID: "r-abc"}
	req.ApplyDefaults()
	rc := NewRequestContext(req)

	if rc.SessionID != "s1" {
		t.Errorf("SessionID = %q", rc.SessionID)
	}
	if !rc.Stream {
		t.Error("Stream should default to true")
	}
	if rc.AgentType != AgentTypeAgent {
		t.Errorf("AgentType = %q", rc.AgentType)
	}
	if rc.RequestID != "r-abc" {
		t.Errorf("RequestID = %q, want the client's r-abc", rc.RequestID)
	}
	if rc.SessionKey() != "sse:s1" {
		t.Errorf("SessionKey = %q", rc.SessionKey())
	}
}

func TestNewRequestContextMintsIDWhenAbsent(t *testing.T) {
	req := &Request{SessionID: "s1"}
	req.ApplyDefaults()
	rc := NewRequestContext(req)
	if len(rc.RequestID) != 16 {
		t.Errorf("RequestID = %q, want 16 hex chars", rc.RequestID)
	}
}

func TestStreamFalseHonored(t *testing.T) {
	f := false
	req := &Request{SessionID: "s1", Stream: &f}
	req.ApplyDefaults()
	rc := NewRequestContext(req)
	if rc.Stream {
		t.Error("Stream = true, want false")
	}
}

func TestNextOrderStrictlyIncreasing(t *testing.T) {
	rc := &RequestContext{}
	for want := 1; want <= 5; want++ {
		if got := rc.NextOrder(); got != want {
			t.Fatalf("NextOrder = %d, want %d", got, want)
		}
	}
}

func TestMessageIDLifecycle(t *testing.T) {
	rc := &RequestContext{}

	// Lazy mint, then stable until a new ID is requested.
	first := rc.CurrentMessageID()
	if len(first) != 16 {
		t.Errorf("message ID = %q, want 16 hex chars", first)
	}
	if rc.CurrentMessageID() != first {
		t.Error("CurrentMessageID changed without NewMessageID")
	}

	second := rc.NewMessageID()
	if second == first {
		t.Error("NewMessageID returned the previous ID")
	}
	if rc.CurrentMessageID() != second {
		t.Error("CurrentMessageID does not reflect the new ID")
	}
}
