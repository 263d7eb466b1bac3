// Package sse implements the Server-Sent Events surface: the request and
// event schema, per-request identity, the event emitter, and the HTTP
// server exposing POST /v1/chat/completions.
package sse

import "encoding/json"

// Agent types accepted by the SSE surface.
const (
	AgentTypeAgent    = "agent"
	AgentTypeWorkflow = "workflow"
)

// Event types carried on the event_type field.
const (
	EventTypeAgent    = "agent"
	EventTypeWorkflow = "workflow"
)

// Statuses carried on the status field.
const (
	StatusProcessing  = "processing"
	StatusCompleted   = "completed"
	StatusError       = "error"
	StatusToolCalling = "tool_calling"
)

// Message types carried on the message_type field.
const (
	MessageTypeText       = "text"
	MessageTypeHTML       = "html"
	MessageTypeThought    = "thought"
	MessageTypeTool       = "tool"
	MessageTypeToolResult = "tool_result"
	MessageTypeImage      = "image"
	MessageTypeFile       = "file"
	MessageTypeVideo      = "video"
	MessageTypeDone       = "done"
	MessageTypeError      = "error"
)

// RequestMessage is one entry of the OpenAI-format conversation submitted
// by the client. Content is either a JSON string or an array of multimodal
// content parts; it is kept raw and interpreted by the agent.
type RequestMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Request is the body of POST /v1/chat/completions. RequestID is chosen
// by the client and echoed on every event of the response.
type Request struct {
	SessionID      string           `json:"session_id"`
	RequestID      string           `json:"request_id"`
	Messages       []RequestMessage `json:"message"`
	AgentType      string           `json:"agent_type"`
	SkillList      []string         `json:"skill_list"`
	ToolList       []string         `json:"tool_list"`
	WorkflowList   []string         `json:"workflow_list"`
	Stream         *bool            `json:"stream"`
	EnableThinking bool             `json:"enable_thinking"`
}

// ApplyDefaults fills unset fields with their documented defaults.
func (r *Request) ApplyDefaults() {
	if r.AgentType == "" {
		r.AgentType = AgentTypeAgent
	}
	if r.SkillList == nil {
		r.SkillList = []string{"*"}
	}
	if r.ToolList == nil {
		r.ToolList = []string{"*"}
	}
	if r.WorkflowList == nil {
		r.WorkflowList = []string{}
	}
	if r.Stream == nil {
		t := true
		r.Stream = &t
	}
}

// MessageBody is the payload portion of an SSE event. All fields are
// optional; absent fields are omitted from the wire form.
type MessageBody struct {
	Content       string         `json:"content,omitempty"`
	Delta         string         `json:"delta,omitempty"`
	Files         []string       `json:"files,omitempty"`
	ToolName      string         `json:"tool_name,omitempty"`
	ToolArguments map[string]any `json:"tool_arguments,omitempty"`
	ToolResult    string         `json:"tool_result,omitempty"`
}

// Message is one SSE event as serialized to the client.
type Message struct {
	Stream       bool         `json:"stream"`
	SessionID    string       `json:"session_id"`
	RequestID    string       `json:"request_id"`
	MessageID    string       `json:"message_id"`
	MessageOrder int          `json:"message_order"`
	EventType    string       `json:"event_type"`
	Status       string       `json:"status"`
	MessageType  string       `json:"message_type"`
	Error        string       `json:"error,omitempty"`
	Body         *MessageBody `json:"message,omitempty"`
}
