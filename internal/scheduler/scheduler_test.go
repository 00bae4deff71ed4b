package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTask struct {
	BaseTask
	runCount atomic.Int32
	succeed  bool
}

func (m *mockTask) Run(ctx context.Context) (bool, error) {
	m.runCount.Add(1)
	return m.succeed, nil
}

func newRegistryWithMock(succeed bool) (*TaskRegistry, *mockTask) {
	task := &mockTask{succeed: succeed}
	registry := NewTaskRegistry()
	_ = registry.Register("mock_task", func() Task { return task })
	return registry, task
}

func TestScheduler_Lifecycle(t *testing.T) {
	registry, _ := newRegistryWithMock(true)
	s := New(registry, 5, time.Second)

	assert.False(t, s.IsRunning())
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.IsRunning())
}

func TestScheduler_AddTaskSuccess(t *testing.T) {
	registry, _ := newRegistryWithMock(true)
	s := New(registry, 5, time.Second)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	require.NoError(t, s.AddTask(context.Background(), "test_custom", "mock_task", 60, true))
	assert.Equal(t, 1, s.TaskCount())
	assert.Contains(t, s.ListTasks(), "test_custom")
}

func TestScheduler_AddTaskInvalidType(t *testing.T) {
	registry, _ := newRegistryWithMock(true)
	s := New(registry, 5, time.Second)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	err := s.AddTask(context.Background(), "invalid_task", "invalid_type", 60, true)
	require.Error(t, err)
	var regErr *TaskRegistrationError
	require.ErrorAs(t, err, &regErr)
}

func TestScheduler_RemoveTaskSuccess(t *testing.T) {
	registry, _ := newRegistryWithMock(true)
	s := New(registry, 5, time.Second)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	require.NoError(t, s.AddTask(context.Background(), "test_task", "mock_task", 60, true))
	assert.Equal(t, 1, s.TaskCount())

	require.NoError(t, s.RemoveTask(context.Background(), "test_task"))
	assert.Equal(t, 0, s.TaskCount())
	assert.NotContains(t, s.ListTasks(), "test_task")
}

func TestScheduler_RemoveNonexistentTask(t *testing.T) {
	registry, _ := newRegistryWithMock(true)
	s := New(registry, 5, time.Second)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	err := s.RemoveTask(context.Background(), "nonexistent_task")
	require.Error(t, err)
	var notFoundErr *TaskNotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

func TestScheduler_GetTaskInfo(t *testing.T) {
	registry, _ := newRegistryWithMock(true)
	s := New(registry, 5, time.Second)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	require.NoError(t, s.AddTask(context.Background(), "info_test", "mock_task", 30, true))

	info := s.GetTask("info_test")
	require.NotNil(t, info)
	assert.Equal(t, "info_test", info.Name)
	assert.Equal(t, 30.0, info.IntervalSeconds)
	assert.True(t, info.Enabled)
}

func TestScheduler_Status(t *testing.T) {
	registry, _ := newRegistryWithMock(true)
	s := New(registry, 5, time.Second)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	require.NoError(t, s.AddTask(context.Background(), "status_test", "mock_task", 60, true))

	status := s.Status()
	assert.Equal(t, true, status["running"])
	assert.Equal(t, 1, status["total_tasks"])
	assert.Contains(t, status["task_names"], "status_test")
}

func TestScheduler_RunsTaskRepeatedlyAtShortInterval(t *testing.T) {
	registry, task := newRegistryWithMock(true)
	s := New(registry, 5, time.Second)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.AddTask(context.Background(), "fast_task", "mock_task", 0.01, true))

	require.Eventually(t, func() bool {
		return task.runCount.Load() >= 3
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
}

func TestEntry_CalculateNextDelay_ExponentialBackoffAndCap(t *testing.T) {
	e := &entry{interval: 10 * time.Second, maxBackoff: 100 * time.Second, jitterFactor: 0}

	e.consecutiveFail = 0
	assert.Equal(t, 10*time.Second, e.calculateNextDelay())

	e.consecutiveFail = 1
	assert.Equal(t, 20*time.Second, e.calculateNextDelay())

	e.consecutiveFail = 2
	assert.Equal(t, 40*time.Second, e.calculateNextDelay())

	e.consecutiveFail = 10 // would be 10*2^10 = 10240s, clamped to maxBackoff
	assert.Equal(t, 100*time.Second, e.calculateNextDelay())
}

func TestEntry_CalculateNextDelay_JitterStaysInBounds(t *testing.T) {
	e := &entry{interval: 10 * time.Second, maxBackoff: time.Minute, jitterFactor: 0.2}
	for i := 0; i < 50; i++ {
		d := e.calculateNextDelay()
		assert.GreaterOrEqual(t, d, 9*time.Second)
		assert.LessOrEqual(t, d, 11*time.Second)
	}
}

func TestTaskRegistry(t *testing.T) {
	registry := NewTaskRegistry()

	require.NoError(t, registry.Register("test_task", func() Task { return &mockTask{} }))
	assert.True(t, registry.Has("test_task"))
	assert.Contains(t, registry.List(), "test_task")

	err := registry.Register("test_task", func() Task { return &mockTask{} })
	require.Error(t, err)
	var regErr *TaskRegistrationError
	require.ErrorAs(t, err, &regErr)

	require.NoError(t, registry.Unregister("test_task"))
	assert.False(t, registry.Has("test_task"))

	err = registry.Unregister("test_task")
	require.Error(t, err)
	require.ErrorAs(t, err, &regErr)

	_, err = registry.Get("test_task")
	require.Error(t, err)
	require.ErrorAs(t, err, &regErr)
}

func TestTaskRegistry_Info(t *testing.T) {
	registry := NewTaskRegistry()
	require.NoError(t, registry.Register("task1", func() Task { return &mockTask{} }))
	require.NoError(t, registry.Register("task2", func() Task { return &mockTask{} }))

	info := registry.Info()
	assert.Equal(t, 2, info["total_tasks"])

	registry.Clear()
	assert.Equal(t, 0, len(registry.List()))
}
