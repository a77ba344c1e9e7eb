// Package scheduler runs periodic in-process tasks such as the daily grace
// period reminder.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// TaskFunc is the work executed on each tick of a schedule.
type TaskFunc func(ctx context.Context) error

// Scheduler checks registered tasks every interval and runs the ones that
// are due. A task never overlaps with its own previous run.
type Scheduler struct {
	tasks    map[string]*scheduledTask
	mu       sync.Mutex
	wg       sync.WaitGroup
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

type scheduledTask struct {
	name     string
	schedule Schedule
	fn       TaskFunc
	nextRun  time.Time
	running  bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCheckInterval sets how often due tasks are looked up.
func WithCheckInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithTaskTimeout bounds a single task run.
func WithTaskTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks:    make(map[string]*scheduledTask),
		interval: 30 * time.Second,
		timeout:  10 * time.Minute,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddTask registers fn under a unique name. The first run is the schedule's
// next occurrence after registration.
func (s *Scheduler) AddTask(name string, schedule Schedule, fn TaskFunc) error {
	if fn == nil {
		return ErrNilHandler
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("%w: %s", ErrTaskAlreadyRegistered, name)
	}

	next := schedule.Next(s.now())
	s.tasks[name] = &scheduledTask{name: name, schedule: schedule, fn: fn, nextRun: next}

	s.logger.Info("registered periodic task",
		slog.String("task_name", name),
		slog.String("schedule", schedule.String()),
		slog.Time("next_run", next))
	return nil
}

// Tasks returns registered task names in lexical order.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Start blocks until ctx is done, then waits for running tasks to return.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	taskCount := len(s.tasks)
	s.mu.Unlock()

	if taskCount == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.checkTasks(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.checkTasks(ctx)
		}
	}
}

func (s *Scheduler) checkTasks(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range s.tasks {
		if task.running || task.nextRun.After(now) {
			continue
		}
		task.running = true
		task.nextRun = task.schedule.Next(now)

		s.wg.Add(1)
		go s.run(ctx, task)
	}
}

func (s *Scheduler) run(ctx context.Context, task *scheduledTask) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		task.running = false
		s.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("periodic task panicked",
				slog.String("task_name", task.name),
				slog.Any("panic", r))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := task.fn(runCtx)
	attrs := []any{
		slog.String("task_name", task.name),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		s.logger.Error("periodic task failed", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	s.logger.Info("periodic task completed", attrs...)
}
