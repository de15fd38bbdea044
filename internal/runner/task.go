package runner

import (
	"context"
	"fmt"
	"time"
)

// Task is a named recurring background job. Each task runs on its own
// cadence; one task failing or overrunning must not block the others.
type Task interface {
	// Name returns the unique name of the task
	Name() string

	// Schedule returns the cron schedule expression for this task
	Schedule() string

	// Run executes the task
	Run(ctx context.Context) error

	// Timeout returns the maximum time one execution may take
	Timeout() time.Duration
}

// Every renders a fixed-rate cron schedule for the given interval.
func Every(interval time.Duration) string {
	return fmt.Sprintf("@every %s", interval)
}

// TaskRegistry holds tasks in registration order.
type TaskRegistry struct {
	order  []Task
	byName map[string]Task
}

// NewTaskRegistry creates an empty registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{byName: make(map[string]Task)}
}

// Register adds a task; a task with a duplicate name replaces the earlier
// registration.
func (r *TaskRegistry) Register(task Task) {
	if task == nil {
		return
	}
	if _, exists := r.byName[task.Name()]; !exists {
		r.order = append(r.order, task)
	} else {
		for i, t := range r.order {
			if t.Name() == task.Name() {
				r.order[i] = task
				break
			}
		}
	}
	r.byName[task.Name()] = task
}

// Get returns a task by name.
func (r *TaskRegistry) Get(name string) (Task, bool) {
	task, exists := r.byName[name]
	return task, exists
}

// All returns the tasks in registration order.
func (r *TaskRegistry) All() []Task {
	return r.order
}
