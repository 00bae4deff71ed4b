package scheduler

import "context"

// Task is one periodically-run unit of work. Setup runs once before the
// first Run; Cleanup runs once after the task is removed or the scheduler
// stops. Run reports whether the iteration succeeded; a false return (or a
// non-nil error) counts as a failure for backoff purposes.
type Task interface {
	Setup(ctx context.Context) error
	Run(ctx context.Context) (bool, error)
	Cleanup(ctx context.Context) error
}

// TaskFactory constructs a fresh Task instance for a registered task type.
type TaskFactory func() Task

// BaseTask is embeddable by task implementations that don't need Setup or
// Cleanup behavior, mirroring the teacher's pattern of small composable
// helper types.
type BaseTask struct{}

func (BaseTask) Setup(ctx context.Context) error   { return nil }
func (BaseTask) Cleanup(ctx context.Context) error { return nil }
