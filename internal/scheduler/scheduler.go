// Package scheduler runs periodic background tasks with exponential backoff
// and jitter on failure, and coordinated graceful shutdown.
package scheduler

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	defaultMaxBackoff   = 5 * time.Minute
	defaultJitterFactor = 0.2
)

// entry tracks one scheduled task's runtime state.
type entry struct {
	name            string
	taskType        string
	task            Task
	interval        time.Duration
	maxBackoff      time.Duration
	jitterFactor    float64
	enabled         bool
	consecutiveFail int

	cancel context.CancelFunc
	done   chan struct{}
}

// calculateNextDelay implements interval * 2^failures, clamped to
// maxBackoff, with uniform jitter in [-(d*jitterFactor/2), +(d*jitterFactor/2)].
func (e *entry) calculateNextDelay() time.Duration {
	d := e.interval
	if e.consecutiveFail > 0 {
		multiplier := math.Pow(2, float64(e.consecutiveFail))
		scaled := time.Duration(float64(e.interval) * multiplier)
		if scaled > e.maxBackoff {
			scaled = e.maxBackoff
		}
		d = scaled
	}
	if e.jitterFactor <= 0 {
		return d
	}
	jitterRange := float64(d) * e.jitterFactor
	jitter := (rand.Float64() - 0.5) * jitterRange
	d = time.Duration(float64(d) + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// Scheduler runs registered Task instances on their own interval loop,
// limiting total concurrent task executions and applying per-task
// exponential backoff on failure.
type Scheduler struct {
	registry             *TaskRegistry
	maxConcurrentTasks   int
	gracefulShutdownTime time.Duration
	logger               *slog.Logger

	mu      sync.Mutex
	running bool
	entries map[string]*entry
	sem     chan struct{}
	wg      sync.WaitGroup
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New constructs a Scheduler. maxConcurrentTasks bounds the number of task
// Run invocations in flight at once across all registered tasks;
// gracefulShutdownTimeout bounds how long Stop waits for the task loops to
// exit after cancelling them.
func New(registry *TaskRegistry, maxConcurrentTasks int, gracefulShutdownTimeout time.Duration, opts ...Option) *Scheduler {
	if maxConcurrentTasks <= 0 {
		maxConcurrentTasks = 10
	}
	s := &Scheduler{
		registry:             registry,
		maxConcurrentTasks:   maxConcurrentTasks,
		gracefulShutdownTime: gracefulShutdownTimeout,
		logger:               slog.Default(),
		entries:              make(map[string]*entry),
		sem:                  make(chan struct{}, maxConcurrentTasks),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start marks the scheduler running. Tasks added afterward begin their loop
// immediately; tasks added before Start begin once Start is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	for name, e := range s.entries {
		if e.enabled {
			s.launch(ctx, name, e)
		}
	}
	return nil
}

// Stop cancels every task loop's context (the same context an in-flight Run
// receives), waits up to gracefulShutdownTimeout for the loops to exit, then
// calls Cleanup on every task. Loops still running when the timeout expires
// are not waited for further and receive no additional cancellation.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		if e.cancel != nil {
			e.cancel()
		}
	}

	waitCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitCh)
	}()

	timeout := s.gracefulShutdownTime
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-waitCh:
	case <-time.After(timeout):
		s.logger.WarnContext(ctx, "scheduler graceful shutdown timed out; not waiting for remaining task loops")
	}

	for _, e := range entries {
		if err := e.task.Cleanup(ctx); err != nil {
			s.logger.ErrorContext(ctx, "task cleanup failed", "task", e.name, "error", err)
		}
	}
	return nil
}

// AddTask instantiates taskType from the registry and begins running it
// every intervalSeconds. Returns a *TaskRegistrationError if taskType is
// unknown or name is already in use.
func (s *Scheduler) AddTask(ctx context.Context, name, taskType string, intervalSeconds float64, enabled bool) error {
	factory, err := s.registry.Get(taskType)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, exists := s.entries[name]; exists {
		s.mu.Unlock()
		return newRegistrationError("task %q already added", name)
	}

	task := factory()
	e := &entry{
		name:         name,
		taskType:     taskType,
		task:         task,
		interval:     time.Duration(intervalSeconds * float64(time.Second)),
		maxBackoff:   defaultMaxBackoff,
		jitterFactor: defaultJitterFactor,
		enabled:      enabled,
	}
	s.entries[name] = e
	running := s.running
	if running && enabled {
		s.launch(ctx, name, e)
	}
	s.mu.Unlock()

	return nil
}

// RemoveTask stops and removes a task. Returns a *TaskNotFoundError if name
// isn't registered.
func (s *Scheduler) RemoveTask(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return newNotFoundError("task %q does not exist", name)
	}
	delete(s.entries, name)
	s.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}
	if e.done != nil {
		<-e.done
	}
	return e.task.Cleanup(ctx)
}

// GetTask returns the task entry info for name, or nil if it isn't
// registered.
func (s *Scheduler) GetTask(name string) *TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return nil
	}
	return e.info()
}

type TaskInfo struct {
	Name            string
	TaskType        string
	IntervalSeconds float64
	Enabled         bool
	ConsecutiveFail int
}

func (e *entry) info() *TaskInfo {
	return &TaskInfo{
		Name:            e.name,
		TaskType:        e.taskType,
		IntervalSeconds: e.interval.Seconds(),
		Enabled:         e.enabled,
		ConsecutiveFail: e.consecutiveFail,
	}
}

func (s *Scheduler) ListTasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	return out
}

func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Status reports a snapshot of scheduler state, suitable for exposing via a
// health/debug endpoint.
func (s *Scheduler) Status() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return map[string]any{
		"running":     s.running,
		"total_tasks": len(s.entries),
		"task_names":  names,
	}
}

// launch starts the background loop for e. Caller must hold s.mu.
func (s *Scheduler) launch(ctx context.Context, name string, e *entry) {
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	s.wg.Add(1)
	go s.runLoop(loopCtx, name, e)
}

func (s *Scheduler) runLoop(ctx context.Context, name string, e *entry) {
	defer s.wg.Done()
	defer close(e.done)

	if err := e.task.Setup(ctx); err != nil {
		s.logger.ErrorContext(ctx, "task setup failed", "task", name, "error", err)
		return
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		ok, err := e.task.Run(ctx)
		<-s.sem

		if err != nil || !ok {
			e.consecutiveFail++
			if err != nil {
				s.logger.ErrorContext(ctx, "scheduled task failed", "task", name, "error", err, "consecutive_failures", e.consecutiveFail)
			} else {
				s.logger.WarnContext(ctx, "scheduled task reported failure", "task", name, "consecutive_failures", e.consecutiveFail)
			}
		} else {
			e.consecutiveFail = 0
		}

		if ctx.Err() != nil {
			return
		}
		timer.Reset(e.calculateNextDelay())
	}
}
