// Package providers contains LLM provider implementations. The OpenAI
// provider speaks the OpenAI chat-completions protocol and, via a custom
// base URL, any compatible backend (OpenRouter, DeepSeek, vLLM, ...).
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/courier-ai/courier/internal/agent"
	"github.com/courier-ai/courier/pkg/models"
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultRetries = 3
)

// OpenAIProvider implements agent.LLMProvider on the OpenAI protocol.
// Transport and API failures are reported in-band as responses with
// FinishReason "error"; retryable failures (rate limits, 5xx) are retried
// with linear backoff first.
type OpenAIProvider struct {
	client     *openai.Client
	model      string
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// OpenAIConfig configures the provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *slog.Logger
}

// NewOpenAI creates a provider from config.
func NewOpenAI(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      model,
		maxRetries: defaultRetries,
		retryDelay: time.Second,
		logger:     logger.With("component", "provider", "provider", "openai"),
	}
}

// Name identifies the provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// DefaultModel returns the configured model.
func (p *OpenAIProvider) DefaultModel() string { return p.model }

// Chat performs a blocking completion.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []agent.ChatMessage, tools []agent.ToolDefinition, opts agent.ChatOptions) (*agent.LLMResponse, error) {
	req := p.buildRequest(messages, tools, opts, false)

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errorResponse(ctx.Err()), nil
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}
		resp, err = p.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
		if !isRetryable(err) {
			break
		}
		p.logger.Warn("chat completion retry", "attempt", attempt+1, "error", err)
	}
	if err != nil {
		p.logger.Error("chat completion failed", "error", err)
		return errorResponse(err), nil
	}
	if len(resp.Choices) == 0 {
		return errorResponse(errors.New("empty response from model")), nil
	}

	choice := resp.Choices[0]
	out := &agent.LLMResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Reasoning:    choice.Message.ReasoningContent,
		Usage: &agent.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: agent.ParseArguments(tc.Function.Arguments),
		})
	}
	return out, nil
}

// StreamChat performs a streaming completion, emitting normalized deltas.
func (p *OpenAIProvider) StreamChat(ctx context.Context, messages []agent.ChatMessage, tools []agent.ToolDefinition, opts agent.ChatOptions) (<-chan agent.StreamDelta, error) {
	req := p.buildRequest(messages, tools, opts, true)

	var stream *openai.ChatCompletionStream
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return agent.OneShotStream(errorResponse(ctx.Err())), nil
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}
		stream, err = p.client.CreateChatCompletionStream(ctx, req)
		if err == nil {
			break
		}
		if !isRetryable(err) {
			break
		}
		p.logger.Warn("stream open retry", "attempt", attempt+1, "error", err)
	}
	if err != nil {
		p.logger.Error("stream open failed", "error", err)
		return agent.OneShotStream(errorResponse(err)), nil
	}

	out := make(chan agent.StreamDelta, 16)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				out <- agent.StreamDelta{FinishReason: "error", ContentDelta: fmt.Sprintf("LLM stream failed: %v", err)}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			if choice.Delta.ReasoningContent != "" {
				out <- agent.StreamDelta{ReasoningDelta: choice.Delta.ReasoningContent}
			}
			if choice.Delta.Content != "" {
				out <- agent.StreamDelta{ContentDelta: choice.Delta.Content}
			}
			for i, tc := range choice.Delta.ToolCalls {
				index := i
				if tc.Index != nil {
					index = *tc.Index
				}
				out <- agent.StreamDelta{
					ToolCallIndex:  &index,
					ToolCallID:     tc.ID,
					ToolCallName:   tc.Function.Name,
					ArgumentsDelta: tc.Function.Arguments,
				}
			}
			if choice.FinishReason != "" {
				delta := agent.StreamDelta{FinishReason: string(choice.FinishReason)}
				if chunk.Usage != nil {
					delta.Usage = &agent.Usage{
						PromptTokens:     chunk.Usage.PromptTokens,
						CompletionTokens: chunk.Usage.CompletionTokens,
						TotalTokens:      chunk.Usage.TotalTokens,
					}
				}
				out <- delta
			}
		}
	}()
	return out, nil
}

func (p *OpenAIProvider) buildRequest(messages []agent.ChatMessage, tools []agent.ToolDefinition, opts agent.ChatOptions, stream bool) openai.ChatCompletionRequest {
	model := opts.Model
	if model == "" {
		model = p.model
	}
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    convertMessages(messages),
		Stream:      stream,
		Temperature: opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	for _, def := range tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return req
}

func convertMessages(messages []agent.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
		if len(m.Parts) > 0 {
			msg.Content = ""
			for _, part := range m.Parts {
				switch part.Type {
				case "image_url":
					msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: part.ImageURL},
					})
				default:
					msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeText,
						Text: part.Text,
					})
				}
			}
		}
		for _, tc := range m.ToolCalls {
			args := "{}"
			if tc.Arguments != nil {
				if raw, err := marshalJSON(tc.Arguments); err == nil {
					args = raw
				}
			}
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: args,
				},
			})
		}
		if m.Role == "tool" {
			msg.ToolCallID = m.ToolCallID
		}
		out = append(out, msg)
	}
	return out
}

func errorResponse(err error) *agent.LLMResponse {
	return &agent.LLMResponse{
		Content:      fmt.Sprintf("LLM request failed: %v", err),
		FinishReason: "error",
	}
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

// isRetryable reports whether an error is transient (rate limit, server
// error, network hiccup).
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection") ||
		strings.Contains(msg, "temporarily")
}
