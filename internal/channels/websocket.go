package channels

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/courier-ai/courier/internal/bus"
	"github.com/courier-ai/courier/pkg/models"
)

// wsFrame is the JSON frame exchanged with websocket clients. Inbound
// frames carry content; outbound frames add media URLs when present.
type wsFrame struct {
	ChatID  string   `json:"chat_id,omitempty"`
	Content string   `json:"content"`
	Media   []string `json:"media,omitempty"`
}

// WebSocketChannel serves a websocket endpoint at /ws. Each connection is
// a conversation: the first frame may name a chat_id to resume one, and
// connections without one get a generated ID.
type WebSocketChannel struct {
	addr   string
	bus    *bus.MessageBus
	logger *slog.Logger

	upgrader websocket.Upgrader
	server   *http.Server

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

func NewWebSocketChannel(addr string, b *bus.MessageBus, logger *slog.Logger) *WebSocketChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketChannel{
		addr:   addr,
		bus:    b,
		logger: logger.With("component", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[string]*websocket.Conn),
	}
}

func (c *WebSocketChannel) Name() string { return "websocket" }

// Start opens the listener and serves connections in the background.
func (c *WebSocketChannel) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		c.handleConn(ctx, w, r)
	})

	ln, err := net.Listen("tcp", c.addr)
	if err != nil {
		return fmt.Errorf("websocket listen on %s: %w", c.addr, err)
	}
	c.server = &http.Server{Handler: mux}

	go func() {
		if err := c.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			c.logger.Error("websocket server stopped", "error", err)
		}
	}()
	c.logger.Info("websocket channel listening", "addr", ln.Addr().String())
	return nil
}

func (c *WebSocketChannel) Stop(ctx context.Context) error {
	c.mu.Lock()
	for id, conn := range c.conns {
		conn.Close()
		delete(c.conns, id)
	}
	c.mu.Unlock()
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

// Send delivers an outbound message to the connection owning its chat ID.
func (c *WebSocketChannel) Send(ctx context.Context, msg *models.OutboundMessage) error {
	if msg.IsToolNotification() {
		// Clients see tool activity via content frames only when they
		// ask for it; skip the notifications here.
		return nil
	}
	c.mu.Lock()
	conn, ok := c.conns[msg.ChatID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no websocket connection for chat %s", msg.ChatID)
	}

	frame := wsFrame{ChatID: msg.ChatID, Content: msg.Content, Media: msg.Media}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(frame); err != nil {
		c.dropConn(msg.ChatID)
		return fmt.Errorf("write to chat %s: %w", msg.ChatID, err)
	}
	return nil
}

func (c *WebSocketChannel) handleConn(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		chatID = uuid.NewString()[:8]
	}
	c.mu.Lock()
	if old, ok := c.conns[chatID]; ok {
		old.Close()
	}
	c.conns[chatID] = conn
	c.mu.Unlock()
	c.logger.Info("websocket client connected", "chat_id", chatID)

	defer func() {
		c.dropConn(chatID)
		c.logger.Info("websocket client disconnected", "chat_id", chatID)
	}()

	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", "chat_id", chatID, "error", err)
			}
			return
		}
		if frame.Content == "" {
			continue
		}
		c.bus.PublishInbound(&models.InboundMessage{
			Channel:   c.Name(),
			SenderID:  chatID,
			ChatID:    chatID,
			Content:   frame.Content,
			Media:     frame.Media,
			Timestamp: time.Now(),
		})
	}
}

func (c *WebSocketChannel) dropConn(chatID string) {
	c.mu.Lock()
	if conn, ok := c.conns[chatID]; ok {
		conn.Close()
		delete(c.conns, chatID)
	}
	c.mu.Unlock()
}
