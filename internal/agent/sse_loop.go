package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/courier-ai/courier/internal/session"
	"github.com/courier-ai/courier/internal/sse"
	"github.com/courier-ai/courier/pkg/models"
)

// ProcessSSE handles one SSE request end to end: it builds the context from
// the submitted OpenAI-format conversation, runs the reason-act loop in
// streaming or non-streaming mode, emits events through em, and persists
// the exchange. Fatal failures become an error event followed by done; the
// method itself only returns transport-level write errors.
func (l *Loop) ProcessSSE(ctx context.Context, rc *sse.RequestContext, em *sse.Emitter, reqMessages []sse.RequestMessage) error {
	sess, err := l.sessions.GetOrCreate(rc.SessionKey())
	if err != nil {
		em.Error(fmt.Sprintf("load session: %v", err))
		return em.Done()
	}

	tools := l.registry.DefinitionsFor(rc.ToolList)
	l.registry.EachRequestScoped(func(t RequestScoped) {
		t.SetRequestScope(rc.SessionID, rc.RequestID)
	})
	l.registry.EachChatScoped(func(t ChatScoped) {
		t.SetChatContext("sse", rc.SessionID)
	})

	userText, userMedia := extractLastUserMessage(reqMessages)
	current := &models.InboundMessage{
		Channel: "sse",
		ChatID:  rc.SessionID,
		Content: userText,
		Media:   userMedia,
	}
	messages := l.context.Build(sess.Entries, current, rc.SkillList)

	if rc.Stream {
		err = l.sseStreamLoop(ctx, rc, em, messages, tools, sess, userText)
	} else {
		err = l.sseNonStreamLoop(ctx, rc, em, messages, tools, sess, userText)
	}
	if err != nil {
		l.logger.Error("sse processing failed", "request_id", rc.RequestID, "error", err)
		em.Error(err.Error())
	}
	return em.Done()
}

// pendingToolCall accumulates streamed tool-call fragments for one index.
type pendingToolCall struct {
	id   string
	name string
	args strings.Builder
}

func (l *Loop) sseStreamLoop(ctx context.Context, rc *sse.RequestContext, em *sse.Emitter, messages []ChatMessage, tools []ToolDefinition, sess *session.Session, userText string) error {
	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		rc.NewMessageID()

		deltas, err := l.provider.StreamChat(ctx, messages, tools, ChatOptions{Model: l.model})
		if err != nil {
			return fmt.Errorf("provider stream: %w", err)
		}

		pending := make(map[int]*pendingToolCall)
		var content strings.Builder
		for delta := range deltas {
			if delta.ReasoningDelta != "" && rc.EnableThinking {
				if err := em.ThinkingDelta(delta.ReasoningDelta); err != nil {
					return err
				}
			}
			if delta.ContentDelta != "" {
				content.WriteString(delta.ContentDelta)
				if err := em.TextDelta(delta.ContentDelta); err != nil {
					return err
				}
			}
			if delta.ToolCallIndex != nil {
				idx := *delta.ToolCallIndex
				tc, ok := pending[idx]
				if !ok {
					tc = &pendingToolCall{}
					pending[idx] = tc
				}
				if delta.ToolCallID != "" {
					tc.id = delta.ToolCallID
				}
				if delta.ToolCallName != "" {
					tc.name = delta.ToolCallName
				}
				tc.args.WriteString(delta.ArgumentsDelta)
			}
		}

		if len(pending) == 0 {
			// Final text turn.
			if text := content.String(); text != "" {
				sess.AddUser(userText)
				sess.AddAssistant(text)
				if err := l.sessions.Save(sess); err != nil {
					l.logger.Error("session save failed", "key", sess.Key, "error", err)
				}
			}
			return nil
		}

		indexes := make([]int, 0, len(pending))
		for idx := range pending {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)

		calls := make([]models.ToolCall, 0, len(pending))
		for _, idx := range indexes {
			tc := pending[idx]
			calls = append(calls, models.ToolCall{
				ID:        tc.id,
				Name:      tc.name,
				Arguments: ParseArguments(tc.args.String()),
			})
		}

		messages = AddAssistantMessage(messages, &LLMResponse{
			Content:   content.String(),
			ToolCalls: calls,
		})

		for _, call := range calls {
			if err := em.ToolCall(call.Name, call.Arguments); err != nil {
				return err
			}
			result := l.executeForSSE(ctx, em, call)
			if err := em.ToolResult(call.Name, result); err != nil {
				return err
			}
			messages = AddToolResult(messages, call.ID, result)
		}
	}
	return nil
}

func (l *Loop) sseNonStreamLoop(ctx context.Context, rc *sse.RequestContext, em *sse.Emitter, messages []ChatMessage, tools []ToolDefinition, sess *session.Session, userText string) error {
	var finalContent string
	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		resp, err := l.provider.Chat(ctx, messages, tools, ChatOptions{Model: l.model})
		if err != nil {
			return fmt.Errorf("provider chat: %w", err)
		}

		rc.NewMessageID()
		if resp.Reasoning != "" && rc.EnableThinking {
			if err := em.ThinkingComplete(resp.Reasoning); err != nil {
				return err
			}
		}

		if !resp.HasToolCalls() {
			finalContent = resp.Content
			break
		}

		messages = AddAssistantMessage(messages, resp)
		for _, call := range resp.ToolCalls {
			if err := em.ToolCall(call.Name, call.Arguments); err != nil {
				return err
			}
			result := l.executeForSSE(ctx, em, call)
			if err := em.ToolResult(call.Name, result); err != nil {
				return err
			}
			messages = AddToolResult(messages, call.ID, result)
		}
	}

	if finalContent == "" {
		finalContent = noResponseText
	}
	if err := em.TextComplete(finalContent); err != nil {
		return err
	}

	sess.AddUser(userText)
	sess.AddAssistant(finalContent)
	if err := l.sessions.Save(sess); err != nil {
		l.logger.Error("session save failed", "key", sess.Key, "error", err)
	}
	return nil
}

// executeForSSE dispatches one tool call, streaming progress events for
// tools that report them.
func (l *Loop) executeForSSE(ctx context.Context, em *sse.Emitter, call models.ToolCall) string {
	tool, ok := l.registry.Get(call.Name)
	if !ok {
		return l.registry.Execute(ctx, call.Name, call.Arguments)
	}
	reporter, ok := tool.(ProgressReporter)
	if !ok {
		return l.registry.Execute(ctx, call.Name, call.Arguments)
	}
	return l.executeWithProgress(ctx, em, reporter, call)
}

// executeWithProgress runs a progress-reporting tool in the background
// while forwarding its events to the emitter. Remaining events are drained
// after completion so none are lost.
func (l *Loop) executeWithProgress(ctx context.Context, em *sse.Emitter, reporter ProgressReporter, call models.ToolCall) string {
	progress := make(chan ProgressEvent, 64)
	reporter.SetProgressSink(progress)
	defer reporter.ClearProgressSink()

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan string, 1)
	go func() {
		done <- l.registry.Execute(execCtx, call.Name, call.Arguments)
	}()

	for {
		select {
		case event := <-progress:
			l.forwardProgress(em, event)
		case result := <-done:
			for {
				select {
				case event := <-progress:
					l.forwardProgress(em, event)
				default:
					return result
				}
			}
		case <-ctx.Done():
			cancel()
			return fmt.Sprintf("Error executing %s: %v", call.Name, ctx.Err())
		}
	}
}

func (l *Loop) forwardProgress(em *sse.Emitter, event ProgressEvent) {
	switch event.Type {
	case ProgressStep:
		em.Progress(event.Message)
	case ProgressHTMLDelta:
		if event.Content != "" {
			em.HTMLDelta(event.Content)
		}
	case ProgressImage, ProgressFile, ProgressVideo:
		if len(event.Files) > 0 {
			em.Files(string(event.Type), event.Files)
		}
	}
}

// extractLastUserMessage pulls the text and media of the newest user entry
// in an OpenAI-format message list. Content may be a plain string or an
// array of multimodal parts.
func extractLastUserMessage(messages []sse.RequestMessage) (string, []string) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" {
			continue
		}
		return parseMessageContent(messages[i].Content)
	}
	return "", nil
}

func parseMessageContent(raw json.RawMessage) (string, []string) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var parts []struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		ImageURL struct {
			URL string `json:"url"`
		} `json:"image_url"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", nil
	}

	var texts []string
	var media []string
	for _, p := range parts {
		switch p.Type {
		case "text":
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
		case "image_url":
			if p.ImageURL.URL != "" {
				media = append(media, p.ImageURL.URL)
			}
		}
	}
	return strings.Join(texts, "\n"), media
}
