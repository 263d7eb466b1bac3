// Package main provides the CLI entry point for the courier agent gateway.
//
// Courier connects messaging surfaces (terminal, WebSocket, SSE API) to an
// OpenAI-compatible LLM provider with tool execution, persistent sessions,
// scheduled jobs, and background subagents.
//
// Basic usage:
//
//	courier agent                 # interactive terminal chat
//	courier gateway               # all surfaces: channels, SSE API, cron
//	courier sse                   # SSE API server only
//	courier cron list             # inspect scheduled jobs
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "courier",
		Short:        "Courier - multi-channel AI agent gateway",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		buildAgentCmd(),
		buildGatewayCmd(),
		buildSSECmd(),
		buildCronCmd(),
		buildOnboardCmd(),
	)
	return rootCmd
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
