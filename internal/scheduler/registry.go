package scheduler

import (
	"reflect"
	"sort"
	"sync"
)

// TaskRegistry maps task type names to factories, so the scheduler can
// instantiate a named task without its caller importing the concrete type.
type TaskRegistry struct {
	mu    sync.RWMutex
	types map[string]TaskFactory
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{types: make(map[string]TaskFactory)}
}

// Register adds a task type. Returns a *TaskRegistrationError if the name is
// already registered.
func (r *TaskRegistry) Register(taskType string, factory TaskFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[taskType]; ok {
		return newRegistrationError("task type %q already registered", taskType)
	}
	r.types[taskType] = factory
	return nil
}

// Unregister removes a task type. Returns a *TaskRegistrationError if it
// isn't registered.
func (r *TaskRegistry) Unregister(taskType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[taskType]; !ok {
		return newRegistrationError("task type %q not registered", taskType)
	}
	delete(r.types, taskType)
	return nil
}

func (r *TaskRegistry) Has(taskType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[taskType]
	return ok
}

// Get returns the factory for taskType, or a *TaskRegistrationError if it
// isn't registered.
func (r *TaskRegistry) Get(taskType string) (TaskFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.types[taskType]
	if !ok {
		return nil, newRegistrationError("task type %q not registered", taskType)
	}
	return f, nil
}

func (r *TaskRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for k := range r.types {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Info reports the registry's contents, keyed by task type, with each
// concrete factory's produced type name for diagnostics.
func (r *TaskRegistry) Info() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	classes := make(map[string]string, len(r.types))
	for k, f := range r.types {
		classes[k] = reflect.TypeOf(f()).Elem().Name()
	}
	return map[string]any{
		"total_tasks":      len(r.types),
		"registered_tasks": r.List(),
		"task_classes":     classes,
	}
}

func (r *TaskRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = make(map[string]TaskFactory)
}
