package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/courier-ai/courier/pkg/models"
)

// Workspace bootstrap files folded into the system prompt when present.
var bootstrapFiles = []string{"AGENTS.md", "SOUL.md", "USER.md"}

const memoryFile = "memory/MEMORY.md"

// ContextBuilder assembles the provider message list for one request:
// system prompt (identity, workspace context, skills, date), persisted
// history, then the current user message.
type ContextBuilder struct {
	workspace string
	identity  string
	now       func() time.Time
}

// NewContextBuilder creates a builder rooted at the given workspace
// directory. identity is the base persona text; empty selects a default.
func NewContextBuilder(workspace, identity string) *ContextBuilder {
	if identity == "" {
		identity = "You are a helpful assistant."
	}
	return &ContextBuilder{workspace: workspace, identity: identity, now: time.Now}
}

// Build assembles the full message list for a turn. skillPatterns selects
// which workspace skills are folded into the system prompt.
func (b *ContextBuilder) Build(history []models.SessionEntry, current *models.InboundMessage, skillPatterns []string) []ChatMessage {
	messages := []ChatMessage{{
		Role:    "system",
		Content: b.systemPrompt(current.Channel, skillPatterns),
	}}

	for _, entry := range history {
		messages = append(messages, ChatMessage{Role: entry.Role, Content: entry.Content})
	}

	messages = append(messages, b.userMessage(current))
	return messages
}

// AddAssistantMessage appends the assistant turn, carrying tool calls and
// optional reasoning so the provider sees the full exchange on the next
// iteration.
func AddAssistantMessage(messages []ChatMessage, resp *LLMResponse) []ChatMessage {
	return append(messages, ChatMessage{
		Role:      "assistant",
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
		Reasoning: resp.Reasoning,
	})
}

// AddToolResult appends a tool result correlated to its originating call.
func AddToolResult(messages []ChatMessage, toolCallID, result string) []ChatMessage {
	return append(messages, ChatMessage{
		Role:       "tool",
		Content:    result,
		ToolCallID: toolCallID,
	})
}

func (b *ContextBuilder) systemPrompt(channel string, skillPatterns []string) string {
	var sb strings.Builder
	sb.WriteString(b.identity)

	for _, name := range bootstrapFiles {
		if content := b.readWorkspaceFile(name); content != "" {
			fmt.Fprintf(&sb, "\n\n## %s\n\n%s", strings.TrimSuffix(name, ".md"), content)
		}
	}
	if content := b.readWorkspaceFile(memoryFile); content != "" {
		fmt.Fprintf(&sb, "\n\n## Memory\n\n%s", content)
	}

	if skills := b.loadSkills(skillPatterns); skills != "" {
		sb.WriteString(skills)
	}

	fmt.Fprintf(&sb, "\n\nCurrent date: %s", b.now().Format("2006-01-02"))
	if channel != "" {
		fmt.Fprintf(&sb, "\nCurrent channel: %s", channel)
	}
	return sb.String()
}

func (b *ContextBuilder) userMessage(msg *models.InboundMessage) ChatMessage {
	if len(msg.Media) == 0 {
		return ChatMessage{Role: "user", Content: msg.Content}
	}

	parts := []ContentPart{}
	if msg.Content != "" {
		parts = append(parts, ContentPart{Type: "text", Text: msg.Content})
	}
	for _, m := range msg.Media {
		if isImage(m) {
			parts = append(parts, ContentPart{Type: "image_url", ImageURL: m})
		} else {
			parts = append(parts, ContentPart{Type: "text", Text: fmt.Sprintf("[attachment: %s]", m)})
		}
	}
	return ChatMessage{Role: "user", Parts: parts}
}

// loadSkills reads markdown files under workspace/skills, filtered by glob
// patterns against the file stem.
func (b *ContextBuilder) loadSkills(patterns []string) string {
	if b.workspace == "" {
		return ""
	}
	dir := filepath.Join(b.workspace, "skills")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var names []string
	byName := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".md")
		names = append(names, stem)
		byName[stem] = filepath.Join(dir, e.Name())
	}
	sort.Strings(names)

	selected := MatchPatterns(names, patterns)
	if len(selected) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, stem := range selected {
		data, err := os.ReadFile(byName[stem])
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "\n\n## Skill: %s\n\n%s", stem, strings.TrimSpace(string(data)))
	}
	return sb.String()
}

func (b *ContextBuilder) readWorkspaceFile(name string) string {
	if b.workspace == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(b.workspace, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func isImage(path string) bool {
	switch strings.ToLower(filepath.Ext(strings.Split(path, "?")[0])) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp":
		return true
	}
	return strings.HasPrefix(path, "data:image/")
}
