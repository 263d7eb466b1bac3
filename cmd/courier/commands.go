package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/courier-ai/courier/internal/channels"
	"github.com/courier-ai/courier/internal/config"
	"github.com/courier-ai/courier/internal/cron"
)

func buildAgentCmd() *cobra.Command {
	var (
		configPath string
		message    string
		sessionID  string
	)
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Chat with the agent in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}

			cli := channels.NewCLIChannel(a.bus, os.Stdin, os.Stdout, logger)
			if err := a.channels.Register(cli); err != nil {
				return err
			}

			dispatcher := channels.NewDispatcher(a.bus, a.channels, logger)
			go dispatcher.Run(ctx)

			// One-shot mode: process a single message and print the reply.
			if message != "" {
				result, err := a.loop.ProcessDirect(ctx, message, "cli:"+sessionID, "cli", sessionID)
				if err != nil {
					return err
				}
				fmt.Fprintln(os.Stdout, result)
				return nil
			}

			if err := a.channels.StartAll(ctx); err != nil {
				return err
			}
			defer a.channels.StopAll(context.Background())

			if err := a.cron.Start(ctx); err != nil {
				return err
			}
			defer a.cron.Stop(context.Background())

			fmt.Fprintln(os.Stdout, "courier agent ready. Type a message and press enter.")
			return a.loop.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default ~/.courier/config.yaml)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Send one message, print the reply, and exit")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "direct", "Session ID for the conversation")
	return cmd
}

func buildGatewayCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the full gateway: channels, SSE API, cron, and the agent loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}

			if cfg.Channels.WebSocket.Enabled {
				ws := channels.NewWebSocketChannel(cfg.Channels.WebSocket.Addr, a.bus, logger)
				if err := a.channels.Register(ws); err != nil {
					return err
				}
			}
			if err := a.channels.StartAll(ctx); err != nil {
				return err
			}
			defer a.channels.StopAll(context.Background())

			if err := a.cron.Start(ctx); err != nil {
				return err
			}
			defer a.cron.Stop(context.Background())

			dispatcher := channels.NewDispatcher(a.bus, a.channels, logger)
			go dispatcher.Run(ctx)

			go func() {
				if err := a.sseServer.Start(); err != nil {
					logger.Error("sse server stopped", "error", err)
					stop()
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				a.sseServer.Shutdown(shutdownCtx)
			}()

			logger.Info("gateway running",
				"sse_addr", cfg.SSE.Addr, "channels", a.channels.Names())
			return a.loop.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default ~/.courier/config.yaml)")
	return cmd
}

// listenAddr resolves the SSE listen address: a --port flag wins over the
// configured address.
func listenAddr(addr string, port int) string {
	if port > 0 {
		return fmt.Sprintf(":%d", port)
	}
	return addr
}

func buildSSECmd() *cobra.Command {
	var (
		configPath string
		port       int
	)
	cmd := &cobra.Command{
		Use:   "sse",
		Short: "Run the SSE API server only",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg.SSE.Addr = listenAddr(cfg.SSE.Addr, port)
			logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}

			// Tool-published outbound messages have no channel adapters
			// here; the dispatcher drains and logs them.
			dispatcher := channels.NewDispatcher(a.bus, a.channels, logger)
			go dispatcher.Run(ctx)

			errCh := make(chan error, 1)
			go func() { errCh <- a.sseServer.Start() }()
			logger.Info("sse server listening", "addr", cfg.SSE.Addr)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.sseServer.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default ~/.courier/config.yaml)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port, overriding the configured address")
	return cmd
}

func buildCronCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled jobs",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default ~/.courier/config.yaml)")

	openService := func() (*cron.Service, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		store, err := cron.NewStore(cfg.Cron.StorePath)
		if err != nil {
			return nil, err
		}
		return cron.NewService(store)
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			jobs := svc.List()
			if len(jobs) == 0 {
				fmt.Println("No scheduled jobs.")
				return nil
			}
			for _, job := range jobs {
				state := "enabled"
				if !job.Enabled {
					state = "disabled"
				}
				next := "-"
				if !job.NextRun.IsZero() {
					next = job.NextRun.Format(time.RFC3339)
				}
				fmt.Printf("%s  %-20s  %-24s  %-8s  next=%s\n",
					job.ID, job.Name, job.Schedule.Describe(), state, next)
			}
			return nil
		},
	}

	var (
		addName    string
		addMessage string
		addEvery   int
		addCron    string
		addAt      string
		addTZ      string
		addChannel string
		addChat    string
		addDeliver bool
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a scheduled job",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			var schedule cron.Schedule
			switch {
			case addEvery > 0:
				schedule, err = cron.EverySchedule(time.Duration(addEvery) * time.Second)
			case addCron != "":
				schedule, err = cron.CronSchedule(addCron, addTZ)
			case addAt != "":
				schedule, err = cron.AtSchedule(addAt, addTZ)
			default:
				return fmt.Errorf("one of --every, --cron, or --at is required")
			}
			if err != nil {
				return err
			}
			job, err := svc.Add(addName, schedule, addMessage, addChannel, addChat, addDeliver)
			if err != nil {
				return err
			}
			fmt.Printf("Added job %s (%s), next run %s\n",
				job.ID, job.Schedule.Describe(), job.NextRun.Format(time.RFC3339))
			return nil
		},
	}
	add.Flags().StringVar(&addName, "name", "", "Job name")
	add.Flags().StringVar(&addMessage, "message", "", "Prompt the agent runs when the job fires")
	add.Flags().IntVar(&addEvery, "every", 0, "Interval in seconds")
	add.Flags().StringVar(&addCron, "cron", "", "Five-field cron expression")
	add.Flags().StringVar(&addAt, "at", "", "One-shot fire time (RFC3339 or 'YYYY-MM-DD HH:MM')")
	add.Flags().StringVar(&addTZ, "tz", "", "IANA timezone for cron/at schedules")
	add.Flags().StringVar(&addChannel, "channel", "cli", "Delivery channel")
	add.Flags().StringVar(&addChat, "chat", "direct", "Delivery chat ID")
	add.Flags().BoolVar(&addDeliver, "deliver", true, "Deliver the result to the channel")
	add.MarkFlagRequired("message")

	remove := &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Remove a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			removed, err := svc.Remove(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no job with ID %s", args[0])
			}
			fmt.Printf("Removed job %s\n", args[0])
			return nil
		},
	}

	setEnabled := func(use string, enabled bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <job-id>",
			Short: use + " a scheduled job",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := openService()
				if err != nil {
					return err
				}
				if err := svc.Enable(args[0], enabled); err != nil {
					return err
				}
				fmt.Printf("Job %s %sd\n", args[0], use)
				return nil
			},
		}
	}

	run := &cobra.Command{
		Use:   "run <job-id>",
		Short: "Run a job immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			result, err := a.cron.RunNow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(result)
			return nil
		},
		Args: cobra.ExactArgs(1),
	}

	cmd.AddCommand(list, add, remove, setEnabled("enable", true), setEnabled("disable", false), run)
	return cmd
}

func buildOnboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Write a starter config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath()
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(starterConfig), 0o600); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\nEdit it, set your API key, then run: courier agent\n", path)
			return nil
		},
	}
	return cmd
}

const starterConfig = `# courier configuration
workspace: ~/.courier/workspace

provider:
  api_key: ${OPENAI_API_KEY}
  # base_url: https://api.openai.com/v1
  model: gpt-4o-mini

agent:
  max_iterations: 20

tools:
  # brave_api_key: ${BRAVE_API_KEY}

sse:
  addr: ":8080"

channels:
  websocket:
    enabled: false
    addr: ":8765"

logging:
  level: info
  format: text
`
