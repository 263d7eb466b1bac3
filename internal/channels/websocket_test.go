package channels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/courier-ai/courier/internal/bus"
	"github.com/courier-ai/courier/pkg/models"
)

func dialTestChannel(t *testing.T, ch *WebSocketChannel, chatID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ch.handleConn(context.Background(), w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if chatID != "" {
		url += "?chat_id=" + chatID
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketInboundFrame(t *testing.T) {
	b := bus.New()
	ch := NewWebSocketChannel(":0", b, nil)
	conn := dialTestChannel(t, ch, "room1")

	if err := conn.WriteJSON(wsFrame{Content: "hello agent"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := b.ConsumeInbound(ctx)
	if err != nil {
		t.Fatalf("no inbound message: %v", err)
	}
	if msg.Channel != "websocket" || msg.ChatID != "room1" || msg.Content != "hello agent" {
		t.Errorf("inbound = %+v", msg)
	}
}

func TestWebSocketOutboundDelivery(t *testing.T) {
	b := bus.New()
	ch := NewWebSocketChannel(":0", b, nil)
	conn := dialTestChannel(t, ch, "room2")

	// Give the server side a moment to record the connection.
	waitFor(t, func() bool {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		_, ok := ch.conns["room2"]
		return ok
	})

	err := ch.Send(context.Background(), &models.OutboundMessage{
		Channel: "websocket", ChatID: "room2", Content: "reply text",
		Media: []string{"https://x/img.png"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	var frame wsFrame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Content != "reply text" || len(frame.Media) != 1 {
		t.Errorf("frame = %+v", frame)
	}
}

func TestWebSocketSendUnknownChat(t *testing.T) {
	ch := NewWebSocketChannel(":0", bus.New(), nil)
	err := ch.Send(context.Background(), &models.OutboundMessage{
		Channel: "websocket", ChatID: "ghost", Content: "hi",
	})
	if err == nil {
		t.Error("send to unknown chat should fail")
	}
}

func TestWebSocketSkipsToolNotifications(t *testing.T) {
	ch := NewWebSocketChannel(":0", bus.New(), nil)
	note := models.NewToolNotification("websocket", "ghost", "exec", nil)
	if err := ch.Send(context.Background(), note); err != nil {
		t.Errorf("tool notification should be dropped silently, got %v", err)
	}
}

func TestWebSocketEmptyFramesIgnored(t *testing.T) {
	b := bus.New()
	ch := NewWebSocketChannel(":0", b, nil)
	conn := dialTestChannel(t, ch, "room3")

	conn.WriteJSON(wsFrame{Content: ""})
	conn.WriteJSON(wsFrame{Content: "real"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := b.ConsumeInbound(ctx)
	if err != nil {
		t.Fatalf("no inbound message: %v", err)
	}
	if msg.Content != "real" {
		t.Errorf("empty frame not skipped, got %q", msg.Content)
	}
}
