package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/courier-ai/courier/internal/agent"
	"github.com/courier-ai/courier/internal/agent/providers"
	"github.com/courier-ai/courier/internal/bus"
	"github.com/courier-ai/courier/internal/channels"
	"github.com/courier-ai/courier/internal/config"
	"github.com/courier-ai/courier/internal/cron"
	"github.com/courier-ai/courier/internal/session"
	"github.com/courier-ai/courier/internal/sse"
	"github.com/courier-ai/courier/internal/storage"
	"github.com/courier-ai/courier/internal/tools"
	"github.com/courier-ai/courier/pkg/models"
)

// app wires together every component a command can run: the bus, the
// session store, the tool registry, the agent loop, cron, channels, and
// the SSE server. Commands start only the pieces they need.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	bus       *bus.MessageBus
	sessions  *session.Store
	provider  agent.LLMProvider
	registry  *agent.Registry
	loop      *agent.Loop
	subagents *agent.SubagentManager
	cron      *cron.Service
	channels  *channels.Registry
	sseServer *sse.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	a.bus = bus.New()

	sessions, err := session.NewStore(cfg.SessionDir())
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	a.sessions = sessions

	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("no provider API key configured (set provider.api_key or OPENAI_API_KEY)")
	}
	a.provider = providers.NewOpenAI(providers.OpenAIConfig{
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
		Model:   cfg.Provider.Model,
		Logger:  logger,
	})

	objectStore, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init object store: %w", err)
	}

	cronStore, err := cron.NewStore(cfg.Cron.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open cron store: %w", err)
	}
	// The runner and sender close over the app so the cron service can be
	// built before the loop it calls into.
	a.cron, err = cron.NewService(cronStore,
		cron.WithLogger(logger),
		cron.WithAgentRunner(cron.AgentRunnerFunc(func(ctx context.Context, job *cron.Job) (string, error) {
			return a.loop.ProcessDirect(ctx, job.Message, "cron:"+job.ID, job.Channel, job.ChatID)
		})),
		cron.WithReplySender(cron.ReplySenderFunc(func(ctx context.Context, channel, chatID, content string) error {
			a.bus.PublishOutbound(&models.OutboundMessage{Channel: channel, ChatID: chatID, Content: content})
			return nil
		})),
	)
	if err != nil {
		return nil, fmt.Errorf("init cron service: %w", err)
	}

	contextBuilder := agent.NewContextBuilder(cfg.Workspace, "")

	a.subagents = agent.NewSubagentManager(a.provider, sessions, contextBuilder, a.bus,
		cfg.Provider.Model, cfg.Agent.MaxIterations, cfg.Agent.MaxSubagents, logger)
	a.subagents.SetChildTools(func(reg *agent.Registry) {
		a.registerCoreTools(reg, false)
	})

	a.registry = agent.NewRegistry()
	a.registerCoreTools(a.registry, true)
	deps := map[string]any{"provider": a.provider}
	if objectStore != nil {
		deps["object_store"] = objectStore
	}
	registered := agent.AutoRegisterAll(a.registry, deps, logger)
	if len(registered) > 0 {
		logger.Info("auto-registered tools", "tools", registered)
	}

	a.loop, err = agent.New(agent.Config{
		Provider:      a.provider,
		Registry:      a.registry,
		Bus:           a.bus,
		Sessions:      sessions,
		Context:       contextBuilder,
		Model:         cfg.Provider.Model,
		MaxIterations: cfg.Agent.MaxIterations,
		PollInterval:  cfg.Agent.PollInterval,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init agent loop: %w", err)
	}

	a.channels = channels.NewRegistry()
	a.sseServer = sse.NewServer(a.loop, cfg.SSE.Addr, logger)
	return a, nil
}

// registerCoreTools adds the always-available tools. Subagent registries
// get everything except spawn and cron so children cannot recurse or
// reschedule.
func (a *app) registerCoreTools(reg *agent.Registry, parent bool) {
	dir := a.cfg.Tools.AllowedDir
	register := func(t agent.Tool) {
		if err := reg.Register(t); err != nil {
			a.logger.Warn("tool registration failed", "tool", t.Name(), "error", err)
		}
	}

	register(tools.NewReadFileTool(dir))
	register(tools.NewWriteFileTool(dir))
	register(tools.NewEditFileTool(dir))
	register(tools.NewListDirTool(dir))
	register(tools.NewExecTool(dir, a.cfg.Tools.ExecTimeout))
	register(tools.NewWebFetchTool())
	if a.cfg.Tools.BraveAPIKey != "" {
		register(tools.NewWebSearchTool(a.cfg.Tools.BraveAPIKey))
	}
	register(tools.NewMessageTool(a.bus))
	if parent {
		register(tools.NewCronTool(a.cron))
		register(tools.NewSpawnTool(a.subagents))
	}
}
