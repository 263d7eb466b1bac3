package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Emitter serializes SSE events for one request and writes them as
// "data: <json>\n\n" frames. It stamps every event with the request
// identity, the current message ID, and the next message order. Not safe
// for concurrent use; the loop emits from a single goroutine.
type Emitter struct {
	rc      *RequestContext
	w       io.Writer
	flusher http.Flusher
}

// NewEmitter binds an emitter to a request context and an output writer.
// If w implements http.Flusher, every frame is flushed immediately.
func NewEmitter(rc *RequestContext, w io.Writer) *Emitter {
	e := &Emitter{rc: rc, w: w}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// TextDelta emits an incremental chunk of assistant text.
func (e *Emitter) TextDelta(delta string) error {
	return e.send(StatusProcessing, MessageTypeText, "", &MessageBody{Delta: delta})
}

// TextComplete emits a complete assistant text under a fresh message ID.
func (e *Emitter) TextComplete(content string) error {
	e.rc.NewMessageID()
	return e.send(StatusCompleted, MessageTypeText, "", &MessageBody{Content: content})
}

// ThinkingDelta emits an incremental chunk of model reasoning.
func (e *Emitter) ThinkingDelta(delta string) error {
	return e.send(StatusProcessing, MessageTypeThought, "", &MessageBody{Delta: delta})
}

// ThinkingComplete emits a complete reasoning block.
func (e *Emitter) ThinkingComplete(content string) error {
	return e.send(StatusCompleted, MessageTypeThought, "", &MessageBody{Content: content})
}

// HTMLDelta emits an incremental fragment of rendered HTML.
func (e *Emitter) HTMLDelta(delta string) error {
	return e.send(StatusProcessing, MessageTypeHTML, "", &MessageBody{Delta: delta})
}

// Files emits generated artifacts of the given kind (image, file, video).
func (e *Emitter) Files(messageType string, files []string) error {
	return e.send(StatusProcessing, messageType, "", &MessageBody{Files: files})
}

// Progress emits a tool progress step as a decorated text delta.
func (e *Emitter) Progress(message string) error {
	return e.TextDelta(fmt.Sprintf("💡 %s\n", message))
}

// ToolCall announces a tool invocation.
func (e *Emitter) ToolCall(name string, arguments map[string]any) error {
	return e.send(StatusToolCalling, MessageTypeTool, "", &MessageBody{
		ToolName:      name,
		ToolArguments: arguments,
	})
}

// ToolResult reports the outcome of a tool invocation.
func (e *Emitter) ToolResult(name, result string) error {
	return e.send(StatusCompleted, MessageTypeToolResult, "", &MessageBody{
		ToolName:   name,
		ToolResult: result,
	})
}

// Done emits the terminal event of the response.
func (e *Emitter) Done() error {
	return e.send(StatusCompleted, MessageTypeDone, "", nil)
}

// Error emits a fatal error event. The caller follows it with Done.
func (e *Emitter) Error(message string) error {
	return e.send(StatusError, MessageTypeError, message, nil)
}

func (e *Emitter) send(status, messageType, errMsg string, body *MessageBody) error {
	msg := Message{
		Stream:       e.rc.Stream,
		SessionID:    e.rc.SessionID,
		RequestID:    e.rc.RequestID,
		MessageID:    e.rc.CurrentMessageID(),
		MessageOrder: e.rc.NextOrder(),
		EventType:    EventTypeAgent,
		Status:       status,
		MessageType:  messageType,
		Error:        errMsg,
		Body:         body,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal sse event: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}
