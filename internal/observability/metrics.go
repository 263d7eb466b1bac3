// Package observability exposes the process-wide Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesProcessed counts messages handled by the agent loop,
	// labeled by source channel and outcome (ok, error).
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courier",
		Name:      "messages_processed_total",
		Help:      "Messages processed by the agent loop.",
	}, []string{"channel", "outcome"})

	// ToolExecutions counts tool dispatches, labeled by tool name and
	// outcome (ok, error).
	ToolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courier",
		Name:      "tool_executions_total",
		Help:      "Tool executions dispatched by the registry.",
	}, []string{"tool", "outcome"})

	// SSERequests counts SSE requests, labeled by agent type.
	SSERequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courier",
		Name:      "sse_requests_total",
		Help:      "SSE chat completion requests.",
	}, []string{"agent_type"})

	// CronJobRuns counts cron job firings, labeled by outcome.
	CronJobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courier",
		Name:      "cron_job_runs_total",
		Help:      "Cron job executions.",
	}, []string{"outcome"})
)
