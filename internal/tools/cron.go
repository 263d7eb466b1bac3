package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/courier-ai/courier/internal/cron"
)

// CronTool manages scheduled jobs from inside conversations. New jobs
// default to delivering into the conversation that created them.
type CronTool struct {
	service *cron.Service

	mu      sync.Mutex
	channel string
	chatID  string
}

func NewCronTool(service *cron.Service) *CronTool {
	return &CronTool{service: service}
}

func (t *CronTool) Name() string { return "cron" }

func (t *CronTool) Description() string {
	return "Manage scheduled jobs: add, list, remove, enable, disable, or run one now. " +
		"Schedules: every (interval in seconds), cron (five-field expression), at (RFC3339 timestamp, fires once)."
}

func (t *CronTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"add", "list", "remove", "enable", "disable", "run"},
				"description": "Operation to perform",
			},
			"name": map[string]any{
				"type":        "string",
				"description": "Job name (for add)",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Prompt the agent runs when the job fires (for add)",
			},
			"every": map[string]any{
				"type":        "integer",
				"description": "Interval in seconds (for add with a fixed interval)",
			},
			"cron": map[string]any{
				"type":        "string",
				"description": "Five-field cron expression (for add)",
			},
			"at": map[string]any{
				"type":        "string",
				"description": "One-shot fire time, RFC3339 or 'YYYY-MM-DD HH:MM' (for add)",
			},
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA timezone for cron/at schedules (optional)",
			},
			"job_id": map[string]any{
				"type":        "string",
				"description": "Job ID (for remove, enable, disable, run)",
			},
		},
		"required": []string{"action"},
	})
}

// SetChatContext records the default delivery conversation for new jobs.
func (t *CronTool) SetChatContext(channel, chatID string) {
	t.mu.Lock()
	t.channel = channel
	t.chatID = chatID
	t.mu.Unlock()
}

func (t *CronTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	action, err := requireString(params, "action")
	if err != nil {
		return "", err
	}

	switch action {
	case "add":
		return t.add(params)
	case "list":
		return t.list(), nil
	case "remove":
		id, err := requireString(params, "job_id")
		if err != nil {
			return "", err
		}
		removed, err := t.service.Remove(id)
		if err != nil {
			return "", err
		}
		if !removed {
			return fmt.Sprintf("No job with ID %s.", id), nil
		}
		return fmt.Sprintf("Removed job %s.", id), nil
	case "enable", "disable":
		id, err := requireString(params, "job_id")
		if err != nil {
			return "", err
		}
		if err := t.service.Enable(id, action == "enable"); err != nil {
			return "", err
		}
		return fmt.Sprintf("Job %s %sd.", id, action), nil
	case "run":
		id, err := requireString(params, "job_id")
		if err != nil {
			return "", err
		}
		result, err := t.service.RunNow(ctx, id)
		if err != nil {
			return "", err
		}
		if result == "" {
			return fmt.Sprintf("Job %s ran with no output.", id), nil
		}
		return fmt.Sprintf("Job %s ran:\n%s", id, result), nil
	default:
		return "", fmt.Errorf("unknown action: %s", action)
	}
}

func (t *CronTool) add(params map[string]any) (string, error) {
	message, err := requireString(params, "message")
	if err != nil {
		return "", err
	}
	name := stringParam(params, "name")
	if name == "" {
		name = message
		if len(name) > 40 {
			name = name[:40]
		}
	}

	tz := stringParam(params, "timezone")
	var schedule cron.Schedule
	switch {
	case intParam(params, "every", 0) > 0:
		schedule, err = cron.EverySchedule(time.Duration(intParam(params, "every", 0)) * time.Second)
	case stringParam(params, "cron") != "":
		schedule, err = cron.CronSchedule(stringParam(params, "cron"), tz)
	case stringParam(params, "at") != "":
		schedule, err = cron.AtSchedule(stringParam(params, "at"), tz)
	default:
		return "", fmt.Errorf("one of every, cron, or at is required")
	}
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	channel, chatID := t.channel, t.chatID
	t.mu.Unlock()

	job, err := t.service.Add(name, schedule, message, channel, chatID, true)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Scheduled job %s (%s), next run %s.",
		job.ID, job.Schedule.Describe(), job.NextRun.Format(time.RFC3339)), nil
}

func (t *CronTool) list() string {
	jobs := t.service.List()
	if len(jobs) == 0 {
		return "No scheduled jobs."
	}
	var sb strings.Builder
	for _, job := range jobs {
		state := "enabled"
		if !job.Enabled {
			state = "disabled"
		}
		next := "-"
		if !job.NextRun.IsZero() {
			next = job.NextRun.Format(time.RFC3339)
		}
		fmt.Fprintf(&sb, "%s  %s  %s  %s  next=%s\n",
			job.ID, job.Name, job.Schedule.Describe(), state, next)
	}
	return sb.String()
}
