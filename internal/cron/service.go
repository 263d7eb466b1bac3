package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/courier-ai/courier/internal/observability"
)

// Service owns the job list: it loads persisted jobs at startup, ticks
// them against the clock, fires due jobs through the agent runner, and
// persists every mutation.
type Service struct {
	store  *Store
	runner AgentRunner
	sender ReplySender
	logger *slog.Logger

	now          func() time.Time
	tickInterval time.Duration

	mu       sync.Mutex
	jobs     []*Job
	inFlight map[string]bool
	started  bool
	wg       sync.WaitGroup
}

// Option configures the service.
type Option func(*Service)

// WithLogger configures the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger.With("component", "cron")
		}
	}
}

// WithAgentRunner configures the runner fired for due jobs.
func WithAgentRunner(runner AgentRunner) Option {
	return func(s *Service) {
		if runner != nil {
			s.runner = runner
		}
	}
}

// WithReplySender configures delivery of job replies.
func WithReplySender(sender ReplySender) Option {
	return func(s *Service) {
		if sender != nil {
			s.sender = sender
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides the tick interval.
func WithTickInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

// NewService loads persisted jobs and prepares the service. Recurring jobs
// get fresh next-run times; one-shot jobs whose time passed while the
// process was down are disabled without firing.
func NewService(store *Store, opts ...Option) (*Service, error) {
	s := &Service{
		store:        store,
		logger:       slog.Default().With("component", "cron"),
		now:          time.Now,
		tickInterval: time.Second,
		inFlight:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	jobs, err := store.Load()
	if err != nil {
		return nil, err
	}

	now := s.now()
	changed := false
	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		switch job.Schedule.Kind {
		case "at":
			if !job.Schedule.At.After(now) {
				job.Enabled = false
				job.NextRun = time.Time{}
				job.LastStatus = "skipped"
				job.UpdatedAt = now
				changed = true
				s.logger.Info("missed one-shot job skipped", "id", job.ID, "name", job.Name)
			}
		default:
			// Recurring jobs get a fresh next run; downtime fires are
			// not replayed.
			next, ok, err := job.Schedule.Next(now)
			if err != nil || !ok {
				job.Enabled = false
				job.NextRun = time.Time{}
			} else {
				job.NextRun = next
			}
			job.UpdatedAt = now
			changed = true
		}
	}
	s.jobs = jobs
	if changed {
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start ticks jobs until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info("cron service started", "jobs", len(s.List()))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runDue(ctx)
			}
		}
	}()
	return nil
}

// Stop waits for the tick loop to exit.
func (s *Service) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Add creates, schedules, and persists a job.
func (s *Service) Add(name string, schedule Schedule, message, channel, chatID string, deliver bool) (*Job, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("job message required")
	}
	now := s.now()
	next, ok, err := schedule.Next(now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("schedule will never fire")
	}

	job := &Job{
		ID:        strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Name:      name,
		Enabled:   true,
		Schedule:  schedule,
		Message:   message,
		Channel:   channel,
		ChatID:    chatID,
		Deliver:   deliver,
		CreatedAt: now,
		UpdatedAt: now,
		NextRun:   next,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	if err := s.persistLocked(); err != nil {
		s.jobs = s.jobs[:len(s.jobs)-1]
		return nil, err
	}
	s.logger.Info("cron job added", "id", job.ID, "name", name, "schedule", schedule.Describe())
	return cloneJob(job), nil
}

// Remove deletes a job by ID.
func (s *Service) Remove(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, job := range s.jobs {
		if job.ID == id {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			if err := s.persistLocked(); err != nil {
				return false, err
			}
			s.logger.Info("cron job removed", "id", id)
			return true, nil
		}
	}
	return false, nil
}

// Enable turns a job on or off. Enabling recomputes the next run; a
// one-shot whose time has passed cannot be re-enabled.
func (s *Service) Enable(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.findLocked(id)
	if job == nil {
		return fmt.Errorf("job not found: %s", id)
	}
	now := s.now()
	if enabled {
		next, ok, err := job.Schedule.Next(now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("schedule will never fire")
		}
		job.NextRun = next
	} else {
		job.NextRun = time.Time{}
	}
	job.Enabled = enabled
	job.UpdatedAt = now
	return s.persistLocked()
}

// List returns copies of all jobs sorted by next run (unscheduled last).
func (s *Service) List() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, cloneJob(job))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].NextRun, out[j].NextRun
		if a.IsZero() {
			return false
		}
		if b.IsZero() {
			return true
		}
		return a.Before(b)
	})
	return out
}

// Get returns a copy of one job.
func (s *Service) Get(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job := s.findLocked(id); job != nil {
		return cloneJob(job), true
	}
	return nil, false
}

// RunNow fires a job immediately, regardless of its schedule, and advances
// it like a regular fire.
func (s *Service) RunNow(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	job := s.findLocked(id)
	if job == nil {
		s.mu.Unlock()
		return "", fmt.Errorf("job not found: %s", id)
	}
	if s.inFlight[id] {
		s.mu.Unlock()
		return "", fmt.Errorf("job already running: %s", id)
	}
	s.inFlight[id] = true
	s.mu.Unlock()

	return s.fire(ctx, id)
}

// RunDue fires all due jobs once (exposed for tests and the CLI).
func (s *Service) RunDue(ctx context.Context) int {
	return s.runDue(ctx)
}

func (s *Service) runDue(ctx context.Context) int {
	now := s.now()
	var due []string
	s.mu.Lock()
	for _, job := range s.jobs {
		if !job.Enabled || job.NextRun.IsZero() || now.Before(job.NextRun) {
			continue
		}
		if s.inFlight[job.ID] {
			continue
		}
		s.inFlight[job.ID] = true
		due = append(due, job.ID)
	}
	s.mu.Unlock()

	for _, id := range due {
		if _, err := s.fire(ctx, id); err != nil {
			s.logger.Warn("cron job failed", "id", id, "error", err)
		}
	}
	return len(due)
}

// fire executes one job and updates its scheduling metadata. The caller
// must have marked the job in flight.
func (s *Service) fire(ctx context.Context, id string) (string, error) {
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, id)
		s.mu.Unlock()
	}()

	s.mu.Lock()
	job := s.findLocked(id)
	if job == nil {
		s.mu.Unlock()
		return "", fmt.Errorf("job not found: %s", id)
	}
	jobCopy := cloneJob(job)
	s.mu.Unlock()

	now := s.now()
	s.logger.Info("cron job firing", "id", id, "name", jobCopy.Name)

	var result string
	var runErr error
	if s.runner == nil {
		runErr = fmt.Errorf("agent runner not configured")
	} else {
		result, runErr = s.runner.Run(ctx, jobCopy)
	}

	if runErr == nil && jobCopy.Deliver && s.sender != nil && result != "" {
		if err := s.sender.Send(ctx, jobCopy.Channel, jobCopy.ChatID, result); err != nil {
			s.logger.Warn("cron reply delivery failed", "id", id, "error", err)
		}
	}

	next, ok, nextErr := jobCopy.Schedule.Next(now)

	s.mu.Lock()
	job = s.findLocked(id)
	if job != nil {
		job.LastRun = now
		job.UpdatedAt = now
		if runErr != nil {
			job.LastStatus = "error"
			job.LastError = runErr.Error()
			observability.CronJobRuns.WithLabelValues("error").Inc()
		} else {
			job.LastStatus = "ok"
			job.LastError = ""
			observability.CronJobRuns.WithLabelValues("ok").Inc()
		}
		// One-shot jobs disable after firing; recurring jobs advance
		// even when the run failed.
		if nextErr != nil || !ok || job.Schedule.Kind == "at" {
			job.NextRun = time.Time{}
			job.Enabled = false
		} else {
			job.NextRun = next
		}
		if err := s.persistLocked(); err != nil {
			s.logger.Error("cron store save failed", "error", err)
		}
	}
	s.mu.Unlock()

	return result, runErr
}

func (s *Service) findLocked(id string) *Job {
	for _, job := range s.jobs {
		if job.ID == id {
			return job
		}
	}
	return nil
}

func (s *Service) persistLocked() error {
	return s.store.Save(s.jobs)
}

func cloneJob(job *Job) *Job {
	copy := *job
	return &copy
}
