// Package daemon runs execution plans on recurring cron schedules.
// Cron expressions use the standard five-field form and are evaluated in
// UTC only.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/petal-labs/toolflow"
)

const defaultPollInterval = 5 * time.Second

// Schedule pairs a cron expression with a plan to run.
type Schedule struct {
	// Name identifies the schedule in logs.
	Name string

	// Cron is a five-field UTC cron expression.
	Cron string

	// Entries is the plan to run when due.
	Entries []toolflow.PlanEntry

	// Options apply to each run.
	Options toolflow.PlanOptions
}

type scheduleState struct {
	schedule Schedule
	parsed   cron.Schedule
	next     time.Time
}

// SchedulerConfig configures the background plan scheduler.
type SchedulerConfig struct {
	Runner       *toolflow.PlanRunner
	PollInterval time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
}

// Scheduler periodically executes due plan schedules.
type Scheduler struct {
	runner       *toolflow.PlanRunner
	pollInterval time.Duration
	now          func() time.Time
	logger       *slog.Logger

	mu        sync.Mutex
	schedules []*scheduleState
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewScheduler creates a plan scheduler instance.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Runner == nil {
		return nil, errors.New("scheduler runner is nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		runner:       cfg.Runner,
		pollInterval: cfg.PollInterval,
		now:          cfg.Now,
		logger:       cfg.Logger,
	}, nil
}

// Add registers a schedule. Returns an error for invalid cron expressions
// or empty plans.
func (s *Scheduler) Add(sched Schedule) error {
	if len(sched.Entries) == 0 {
		return fmt.Errorf("schedule %q has no plan entries", sched.Name)
	}
	parsed, err := parseCronExpressionUTC(sched.Cron)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", sched.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules = append(s.schedules, &scheduleState{
		schedule: sched,
		parsed:   parsed,
		next:     parsed.Next(s.now()),
	})
	return nil
}

// ScheduleStatus describes a registered schedule and its next run time.
type ScheduleStatus struct {
	Name string    `json:"name"`
	Cron string    `json:"cron"`
	Next time.Time `json:"next"`
}

// Schedules returns the registered schedules in registration order.
func (s *Scheduler) Schedules() []ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleStatus, 0, len(s.schedules))
	for _, st := range s.schedules {
		out = append(out, ScheduleStatus{
			Name: st.schedule.Name,
			Cron: st.schedule.Cron,
			Next: st.next,
		})
	}
	return out
}

// Start begins background polling. It is a no-op when already started.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.loop(loopCtx, done)
}

// Stop halts polling and waits for the loop to exit. In-flight plan runs
// are allowed to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// runDue executes every schedule whose next run time has passed and
// advances its next run time. Runs happen inline on the polling
// goroutine; schedules are expected to be coarse-grained.
func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*scheduleState
	for _, st := range s.schedules {
		if !st.next.After(now) {
			due = append(due, st)
			st.next = st.parsed.Next(now)
		}
	}
	s.mu.Unlock()

	for _, st := range due {
		report, err := s.runner.RunPlan(ctx, st.schedule.Entries, st.schedule.Options)
		if err != nil {
			s.logger.Error("scheduled plan failed to start",
				"schedule", st.schedule.Name,
				"error", err,
			)
			continue
		}
		s.logger.Info("scheduled plan finished",
			"schedule", st.schedule.Name,
			"plan_id", report.PlanID,
			"failed", report.Failed,
			"total", report.Stats.Total,
		)
	}
}
