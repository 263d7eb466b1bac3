// Package cron schedules recurring and one-shot agent jobs. Jobs persist
// across restarts in a single JSON document; firing a job hands its
// message to the agent and optionally delivers the reply to a channel.
package cron

import (
	"context"
	"time"
)

// Schedule describes when a job runs. Exactly one of the kind-specific
// fields is meaningful.
type Schedule struct {
	// Kind is "every", "cron", or "at".
	Kind string `json:"kind"`

	// CronExpr is a five-field cron expression (kind "cron").
	CronExpr string `json:"cron_expr,omitempty"`

	// Every is the fixed interval (kind "every").
	Every time.Duration `json:"every,omitempty"`

	// At is the single fire time (kind "at").
	At time.Time `json:"at,omitempty"`

	// Timezone names the IANA location for cron evaluation; empty means
	// the process location.
	Timezone string `json:"timezone,omitempty"`
}

// Job is one scheduled task.
type Job struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Enabled  bool     `json:"enabled"`
	Schedule Schedule `json:"schedule"`

	// Message is the prompt handed to the agent when the job fires.
	Message string `json:"message"`

	// Channel and ChatID name the conversation the job acts for. The
	// agent reply is delivered there when Deliver is set.
	Channel string `json:"channel,omitempty"`
	ChatID  string `json:"chat_id,omitempty"`
	Deliver bool   `json:"deliver,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// NextRun is the next due time; zero means the job will not fire.
	NextRun time.Time `json:"next_run,omitempty"`

	LastRun    time.Time `json:"last_run,omitempty"`
	LastStatus string    `json:"last_status,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// AgentRunner executes a job's message through the agent and returns the
// reply text.
type AgentRunner interface {
	Run(ctx context.Context, job *Job) (string, error)
}

// AgentRunnerFunc adapts a function to an AgentRunner.
type AgentRunnerFunc func(ctx context.Context, job *Job) (string, error)

// Run executes the agent runner function.
func (f AgentRunnerFunc) Run(ctx context.Context, job *Job) (string, error) {
	return f(ctx, job)
}

// ReplySender delivers a job's reply to its target conversation.
type ReplySender interface {
	Send(ctx context.Context, channel, chatID, content string) error
}

// ReplySenderFunc adapts a function to a ReplySender.
type ReplySenderFunc func(ctx context.Context, channel, chatID, content string) error

// Send executes the reply sender function.
func (f ReplySenderFunc) Send(ctx context.Context, channel, chatID, content string) error {
	return f(ctx, channel, chatID, content)
}
