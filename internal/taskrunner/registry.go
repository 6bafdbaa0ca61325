package taskrunner

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateTask is returned when a name is registered twice.
	ErrDuplicateTask = errors.New("task already registered")
	// ErrUnknownTask is returned for names with no registered task.
	ErrUnknownTask = errors.New("unknown task")
)

// Task is a named operation exposed to the operator.
type Task struct {
	Name    string
	Summary string
	Params  []ParamSpec
	Action  Action
}

// Usage renders "name key=<key> ..." for the help listing.
func (t *Task) Usage() string {
	u := t.Name
	for _, p := range t.Params {
		if p.Required {
			u += fmt.Sprintf(" %s=<%s>", p.Name, p.Placeholder())
		} else {
			u += fmt.Sprintf(" [%s=<%s>]", p.Name, p.Placeholder())
		}
	}
	return u
}

// Registry maps task names to tasks, preserving registration order.
type Registry struct {
	tasks map[string]*Task
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Register adds t. A second task with the same name is rejected rather than
// shadowing the first.
func (r *Registry) Register(t *Task) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("register task: empty name")
	}
	if t.Action == nil {
		return fmt.Errorf("register task %s: nil action", t.Name)
	}
	if _, exists := r.tasks[t.Name]; exists {
		return fmt.Errorf("register task %s: %w", t.Name, ErrDuplicateTask)
	}
	r.tasks[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Lookup returns the task and whether it exists.
func (r *Registry) Lookup(name string) (*Task, bool) {
	t, ok := r.tasks[name]
	return t, ok
}

// Get is Lookup returning ErrUnknownTask.
func (r *Registry) Get(name string) (*Task, error) {
	t, ok := r.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return t, nil
}

// Tasks returns all tasks in registration order.
func (r *Registry) Tasks() []*Task {
	out := make([]*Task, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tasks[name])
	}
	return out
}

// Len returns the number of registered tasks
func (r *Registry) Len() int {
	return len(r.order)
}
