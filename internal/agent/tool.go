package agent

import (
	"context"
	"encoding/json"
)

// Tool is the contract every agent tool implements. Execute returns its
// result as a string for the model to read; an error return is converted to
// an error string by the registry and never propagates to the loop.
type Tool interface {
	// Name returns the unique tool identifier used in function calls.
	Name() string

	// Description returns the human-readable summary shown to the model.
	Description() string

	// Schema returns the JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with validated parameters.
	Execute(ctx context.Context, params map[string]any) (string, error)
}

// ProgressEventType classifies intermediate events a long-running tool can
// surface while executing.
type ProgressEventType string

const (
	// ProgressStep is a short status line ("Downloading page 2/5").
	ProgressStep ProgressEventType = "step"

	// ProgressHTMLDelta is a fragment of rendered HTML output.
	ProgressHTMLDelta ProgressEventType = "html_delta"

	// ProgressImage announces generated image files.
	ProgressImage ProgressEventType = "image"

	// ProgressFile announces generated files.
	ProgressFile ProgressEventType = "file"

	// ProgressVideo announces generated video files.
	ProgressVideo ProgressEventType = "video"
)

// ProgressEvent is an intermediate event emitted by a tool during
// execution. Only meaningful on streaming surfaces; elsewhere the sink is
// nil and tools skip reporting.
type ProgressEvent struct {
	Type    ProgressEventType `json:"type"`
	Message string            `json:"message,omitempty"`
	Content string            `json:"content,omitempty"`
	Files   []string          `json:"files,omitempty"`
}

// ProgressReporter is implemented by tools that emit intermediate progress.
// The loop installs a sink before execution and clears it afterwards; a
// tool must tolerate a nil sink.
type ProgressReporter interface {
	SetProgressSink(sink chan<- ProgressEvent)
	ClearProgressSink()
}

// ChatScoped is implemented by tools that need to know which conversation
// they are acting for (message delivery, subagent spawning, cron job
// targets). The loop injects the pair before every processing turn.
type ChatScoped interface {
	SetChatContext(channel, chatID string)
}

// RequestScoped is implemented by tools that key their work on the current
// SSE request (object-store prefixes, request-scoped artifacts).
type RequestScoped interface {
	SetRequestScope(sessionID, requestID string)
}

// ToolDefinition is the provider-facing descriptor for a registered tool,
// shaped for OpenAI-style function calling.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}
