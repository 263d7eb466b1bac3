package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/courier-ai/courier/internal/agent"
	"github.com/courier-ai/courier/internal/storage"
)

const documentSystemPrompt = `You are a document writer. Produce a complete, self-contained HTML document for the given topic.
Use inline CSS only. Start your answer with <!DOCTYPE html> and output nothing but the document.`

// DocumentTool generates an HTML document with the LLM, streams progress
// while writing, and uploads the result to the object store.
type DocumentTool struct {
	requestScope
	provider agent.LLMProvider
	store    *storage.ObjectStore

	mu   sync.Mutex
	sink chan<- agent.ProgressEvent
}

func NewDocumentTool(provider agent.LLMProvider, store *storage.ObjectStore) *DocumentTool {
	return &DocumentTool{provider: provider, store: store}
}

func (t *DocumentTool) Name() string { return "generate_document" }

func (t *DocumentTool) Description() string {
	return "Generate a standalone HTML document on a topic and upload it for sharing. Returns the document URL."
}

func (t *DocumentTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"topic": map[string]any{
				"type":        "string",
				"description": "What the document should cover",
			},
			"instructions": map[string]any{
				"type":        "string",
				"description": "Extra requirements for style or structure (optional)",
			},
			"filename": map[string]any{
				"type":        "string",
				"description": "Target filename (defaults to document.html)",
			},
		},
		"required": []string{"topic"},
	})
}

// SetProgressSink installs the channel progress events are sent to.
func (t *DocumentTool) SetProgressSink(sink chan<- agent.ProgressEvent) {
	t.mu.Lock()
	t.sink = sink
	t.mu.Unlock()
}

// ClearProgressSink removes the progress channel.
func (t *DocumentTool) ClearProgressSink() {
	t.mu.Lock()
	t.sink = nil
	t.mu.Unlock()
}

func (t *DocumentTool) emit(ev agent.ProgressEvent) {
	t.mu.Lock()
	sink := t.sink
	t.mu.Unlock()
	if sink == nil {
		return
	}
	select {
	case sink <- ev:
	default:
	}
}

func (t *DocumentTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	topic, err := requireString(params, "topic")
	if err != nil {
		return "", err
	}
	filename := stringParam(params, "filename")
	if filename == "" {
		filename = "document.html"
	}
	if !strings.HasSuffix(filename, ".html") {
		filename += ".html"
	}

	t.emit(agent.ProgressEvent{Type: agent.ProgressStep, Message: "Writing document: " + topic})

	prompt := "Topic: " + topic
	if extra := stringParam(params, "instructions"); extra != "" {
		prompt += "\n\nRequirements: " + extra
	}
	messages := []agent.ChatMessage{
		{Role: "system", Content: documentSystemPrompt},
		{Role: "user", Content: prompt},
	}

	deltas, err := t.provider.StreamChat(ctx, messages, nil, agent.ChatOptions{})
	if err != nil {
		return "", fmt.Errorf("generate document: %w", err)
	}

	var doc strings.Builder
	for delta := range deltas {
		if delta.ContentDelta != "" {
			doc.WriteString(delta.ContentDelta)
			t.emit(agent.ProgressEvent{Type: agent.ProgressHTMLDelta, Content: delta.ContentDelta})
		}
		if delta.FinishReason == "error" {
			return "", fmt.Errorf("generate document: stream ended with error")
		}
	}

	html := strings.TrimSpace(doc.String())
	if html == "" {
		return "", fmt.Errorf("model produced no document content")
	}
	// Strip a markdown fence if the model wrapped the document anyway.
	html = strings.TrimPrefix(html, "```html\n")
	html = strings.TrimPrefix(html, "```\n")
	html = strings.TrimSuffix(html, "```")

	if t.store == nil {
		return fmt.Sprintf("Document generated (%d bytes). Object storage is not configured, so it was not uploaded.\n\n%s",
			len(html), html), nil
	}

	t.emit(agent.ProgressEvent{Type: agent.ProgressStep, Message: "Uploading " + filename})
	key := t.objectKey(filename)
	url, err := t.store.UploadBytes(ctx, key, []byte(html), "text/html; charset=utf-8")
	if err != nil {
		return "", err
	}

	t.emit(agent.ProgressEvent{Type: agent.ProgressFile, Files: []string{url}})
	return fmt.Sprintf("Document ready: %s", url), nil
}

func init() {
	agent.RegisterFactory("generate_document", agent.ToolFactory{
		Requires: []string{"provider"},
		Build: func(deps map[string]any) agent.Tool {
			provider, ok := deps["provider"].(agent.LLMProvider)
			if !ok {
				return nil
			}
			store, _ := deps["object_store"].(*storage.ObjectStore)
			return NewDocumentTool(provider, store)
		},
	})
}
