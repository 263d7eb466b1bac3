// Package models defines the message types shared by the bus, the agent
// loop, channel adapters, and the cron service.
package models

import (
	"fmt"
	"strings"
	"time"
)

// ChannelSystem is the reserved channel name for internally generated
// messages (cron fires, subagent completions). The chat ID of a system
// message encodes the origin conversation as "channel:chat_id".
const ChannelSystem = "system"

// MetadataTypeTool marks an outbound message as a tool-call notification
// rather than conversational content. Channel adapters may render or drop
// these as they see fit.
const MetadataTypeTool = "tool"

// InboundMessage is a message entering the system from a channel adapter.
type InboundMessage struct {
	// Channel names the adapter that produced the message (telegram,
	// websocket, system, ...).
	Channel string `json:"channel"`

	// SenderID identifies the author within the channel.
	SenderID string `json:"sender_id"`

	// ChatID identifies the conversation within the channel.
	ChatID string `json:"chat_id"`

	// Content is the message text.
	Content string `json:"content"`

	// Media holds local paths or URLs of attachments.
	Media []string `json:"media,omitempty"`

	// Metadata carries adapter-specific extras.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Timestamp records when the message was received.
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// SessionKey returns the conversation identity for this message,
// "channel:chat_id".
func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage is a reply or notification leaving the system toward a
// channel adapter.
type OutboundMessage struct {
	Channel  string         `json:"channel"`
	ChatID   string         `json:"chat_id"`
	Content  string         `json:"content"`
	Media    []string       `json:"media,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IsToolNotification reports whether this message announces a tool call
// rather than carrying assistant text.
func (m *OutboundMessage) IsToolNotification() bool {
	if m.Metadata == nil {
		return false
	}
	t, _ := m.Metadata["type"].(string)
	return t == MetadataTypeTool
}

// NewToolNotification builds the outbound notification published before a
// tool executes.
func NewToolNotification(channel, chatID, toolName string, arguments map[string]any) *OutboundMessage {
	return &OutboundMessage{
		Channel: channel,
		ChatID:  chatID,
		Content: fmt.Sprintf("Calling tool: %s", toolName),
		Metadata: map[string]any{
			"type":      MetadataTypeTool,
			"tool_name": toolName,
			"arguments": arguments,
		},
	}
}

// SystemOrigin splits a system-channel chat ID of the form
// "origin_channel:origin_chat_id" into its parts. Malformed IDs fall back
// to the CLI conversation so the reply still has somewhere to go.
func SystemOrigin(chatID string) (channel, originChatID string) {
	parts := strings.SplitN(chatID, ":", 2)
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return parts[0], parts[1]
	}
	return "cli", "direct"
}

// ToolCall is a normalized tool invocation extracted from a provider
// response. Arguments are fully parsed; providers that stream argument
// fragments assemble them before constructing a ToolCall.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// SessionEntry is one persisted history record. Only user and assistant
// turns are persisted; wire-level tool messages are reconstructed fresh
// each request and never stored.
type SessionEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
