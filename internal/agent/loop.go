// Package agent implements the reason-act loop at the heart of the
// gateway: it consumes inbound messages, drives the LLM provider, executes
// requested tools, and produces replies.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/courier-ai/courier/internal/bus"
	"github.com/courier-ai/courier/internal/session"
	"github.com/courier-ai/courier/pkg/models"
)

const (
	// DefaultMaxIterations bounds reason-act cycles per message.
	DefaultMaxIterations = 20

	defaultPollInterval = time.Second
)

// Sentinel replies used when the loop ends without model text.
const (
	noResponseText     = "I've completed processing but have no response to give."
	backgroundDoneText = "Background task completed."
)

// Config assembles a Loop's collaborators.
type Config struct {
	Provider LLMProvider
	Registry *Registry
	Bus      *bus.MessageBus
	Sessions *session.Store
	Context  *ContextBuilder

	// Model overrides the provider default when set.
	Model string

	// MaxIterations bounds reason-act cycles per message (default 20).
	MaxIterations int

	// PollInterval is the bus polling timeout of Run (default 1s).
	PollInterval time.Duration

	Logger *slog.Logger
}

// Loop is the agent's reason-act engine. One Loop serves all conversations;
// tool context is re-injected per message.
type Loop struct {
	provider LLMProvider
	registry *Registry
	bus      *bus.MessageBus
	sessions *session.Store
	context  *ContextBuilder

	model         string
	maxIterations int
	pollInterval  time.Duration
	logger        *slog.Logger
}

// New validates the config and builds a Loop.
func New(cfg Config) (*Loop, error) {
	if cfg.Provider == nil {
		return nil, ErrNoProvider
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Sessions == nil {
		return nil, ErrNoSessionStore
	}
	if cfg.Context == nil {
		cfg.Context = NewContextBuilder("", "")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		provider:      cfg.Provider,
		registry:      cfg.Registry,
		bus:           cfg.Bus,
		sessions:      cfg.Sessions,
		context:       cfg.Context,
		model:         cfg.Model,
		maxIterations: cfg.MaxIterations,
		pollInterval:  cfg.PollInterval,
		logger:        cfg.Logger.With("component", "agent"),
	}, nil
}

// Registry exposes the loop's tool registry for wiring.
func (l *Loop) Registry() *Registry { return l.registry }

// Run consumes the inbound bus until ctx is cancelled. Processing failures
// never kill the loop; the sender receives an apology with the error text.
func (l *Loop) Run(ctx context.Context) error {
	if l.bus == nil {
		return ErrNoBus
	}
	l.logger.Info("agent loop started")
	defer l.logger.Info("agent loop stopped")

	for {
		pollCtx, cancel := context.WithTimeout(ctx, l.pollInterval)
		msg, err := l.bus.ConsumeInbound(pollCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		reply, err := l.processMessage(ctx, msg)
		if err != nil {
			l.logger.Error("message processing failed",
				"channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
			l.bus.PublishOutbound(&models.OutboundMessage{
				Channel: msg.Channel,
				ChatID:  msg.ChatID,
				Content: fmt.Sprintf("Sorry, I encountered an error: %v", err),
			})
			continue
		}
		if reply != nil {
			l.bus.PublishOutbound(reply)
		}
	}
}

// ProcessDirect handles a message synchronously, for CLI and cron usage.
func (l *Loop) ProcessDirect(ctx context.Context, content, sessionKey, channel, chatID string) (string, error) {
	if sessionKey == "" {
		sessionKey = "cli:direct"
	}
	if channel == "" {
		channel = "cli"
	}
	if chatID == "" {
		chatID = "direct"
	}
	msg := &models.InboundMessage{
		Channel:  channel,
		SenderID: "user",
		ChatID:   chatID,
		Content:  content,
	}
	reply, err := l.process(ctx, msg, sessionKey, channel, chatID, "", true)
	if err != nil {
		return "", err
	}
	if reply == nil {
		return "", nil
	}
	return reply.Content, nil
}

func (l *Loop) processMessage(ctx context.Context, msg *models.InboundMessage) (*models.OutboundMessage, error) {
	if msg.Channel == models.ChannelSystem {
		return l.processSystemMessage(ctx, msg)
	}
	l.logger.Info("processing message",
		"channel", msg.Channel, "sender", msg.SenderID, "preview", preview(msg.Content, 80))
	return l.process(ctx, msg, msg.SessionKey(), msg.Channel, msg.ChatID, "", true)
}

// processSystemMessage handles internally generated messages (subagent
// announces, cron fires). The chat ID encodes the origin conversation; the
// reply is routed there and the origin session provides the context.
func (l *Loop) processSystemMessage(ctx context.Context, msg *models.InboundMessage) (*models.OutboundMessage, error) {
	originChannel, originChatID := models.SystemOrigin(msg.ChatID)
	l.logger.Info("processing system message",
		"sender", msg.SenderID, "origin_channel", originChannel, "origin_chat_id", originChatID)

	sessionKey := originChannel + ":" + originChatID
	historyPrefix := fmt.Sprintf("[System: %s] ", msg.SenderID)

	routed := &models.InboundMessage{
		Channel:  originChannel,
		SenderID: msg.SenderID,
		ChatID:   originChatID,
		Content:  msg.Content,
		Media:    msg.Media,
	}
	return l.process(ctx, routed, sessionKey, originChannel, originChatID, historyPrefix, true)
}

// process runs the reason-act loop for one message and returns the reply.
// historyPrefix decorates the persisted user entry; notify controls tool
// notification events on the outbound bus.
func (l *Loop) process(ctx context.Context, msg *models.InboundMessage, sessionKey, replyChannel, replyChatID, historyPrefix string, notify bool) (*models.OutboundMessage, error) {
	sess, err := l.sessions.GetOrCreate(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionKey, err)
	}

	l.registry.EachChatScoped(func(t ChatScoped) {
		t.SetChatContext(replyChannel, replyChatID)
	})

	messages := l.context.Build(sess.Entries, msg, nil)
	tools := l.registry.Definitions()

	var finalContent string
	done := false
	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		resp, err := l.provider.Chat(ctx, messages, tools, ChatOptions{Model: l.model})
		if err != nil {
			return nil, fmt.Errorf("provider chat: %w", err)
		}

		if !resp.HasToolCalls() {
			finalContent = resp.Content
			done = true
			break
		}

		messages = AddAssistantMessage(messages, resp)
		for _, tc := range resp.ToolCalls {
			l.logger.Info("tool call", "tool", tc.Name, "iteration", iteration)
			if notify && l.bus != nil {
				l.bus.PublishOutbound(models.NewToolNotification(replyChannel, replyChatID, tc.Name, tc.Arguments))
			}
			result := l.registry.Execute(ctx, tc.Name, tc.Arguments)
			messages = AddToolResult(messages, tc.ID, result)
		}
	}

	// A completed turn keeps its content even when empty; only an
	// exhausted loop falls back to the sentinel.
	if !done {
		if historyPrefix != "" {
			finalContent = backgroundDoneText
		} else {
			finalContent = noResponseText
		}
	}

	sess.AddUser(historyPrefix + msg.Content)
	sess.AddAssistant(finalContent)
	if err := l.sessions.Save(sess); err != nil {
		l.logger.Error("session save failed", "key", sessionKey, "error", err)
	}

	return &models.OutboundMessage{
		Channel:  replyChannel,
		ChatID:   replyChatID,
		Content:  finalContent,
		Metadata: msg.Metadata,
	}, nil
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
