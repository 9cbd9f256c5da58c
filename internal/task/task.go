// Package task defines named units of work and the registry that validates
// and orders them.
package task

import (
	"context"
	"fmt"
	"sort"
)

// Action is what a task does. Completion is Run returning; a non-nil error
// fails the task.
type Action interface {
	Run(ctx context.Context) error
}

type ActionFunc func(ctx context.Context) error

func (f ActionFunc) Run(ctx context.Context) error { return f(ctx) }

type Task struct {
	Name        string
	Description string
	Deps        []string // run order follows declaration order when sequential
	Action      Action   // nil for pure aggregation tasks
	Kind        string   // pipeline, exec or group; informational

	Skip        bool
	Incremental bool
	Inputs      []string
}

// Registry holds every task of a run. It is filled once and read-only after
// Validate succeeds.
type Registry struct {
	tasks map[string]*Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: map[string]*Task{}}
}

// Add registers t. Names are made of letters, digits, '_', ':' and '-'.
func (r *Registry) Add(t *Task) error {
	if !validName(t.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, t.Name)
	}
	if _, dup := r.tasks[t.Name]; dup {
		return fmt.Errorf("task %q already registered", t.Name)
	}
	r.tasks[t.Name] = t
	return nil
}

func (r *Registry) Get(name string) (*Task, bool) {
	t, ok := r.tasks[name]
	return t, ok
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tasks))
	for n := range r.tasks {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int { return len(r.tasks) }

// Validate reports the first unknown dependency, then the first cycle, both
// in sorted name order so the result is stable.
func (r *Registry) Validate() error {
	names := r.Names()
	for _, n := range names {
		for _, d := range r.tasks[n].Deps {
			if _, ok := r.tasks[d]; !ok {
				return &UnknownTaskError{Name: d, From: n}
			}
		}
	}
	w := newWalker(r)
	for _, n := range names {
		if err := w.visit(n); err != nil {
			return err
		}
	}
	return nil
}

// Plan returns the transitive closure of names in dependency order: every
// task appears after all of its dependencies, dependencies in declared
// order, each name once.
func (r *Registry) Plan(names ...string) ([]string, error) {
	for _, n := range names {
		if _, ok := r.tasks[n]; !ok {
			return nil, &UnknownTaskError{Name: n}
		}
	}
	w := newWalker(r)
	for _, n := range names {
		if err := w.visit(n); err != nil {
			return nil, err
		}
	}
	return w.order, nil
}

const (
	white = iota
	gray
	black
)

type walker struct {
	r     *Registry
	color map[string]int
	stack []string
	order []string
}

func newWalker(r *Registry) *walker {
	return &walker{r: r, color: make(map[string]int, len(r.tasks))}
}

// visit is a post-order DFS; a gray node on the stack closes a cycle.
func (w *walker) visit(n string) error {
	switch w.color[n] {
	case black:
		return nil
	case gray:
		start := 0
		for i, s := range w.stack {
			if s == n {
				start = i
				break
			}
		}
		cycle := append(append([]string{}, w.stack[start:]...), n)
		return &CyclicDependencyError{Cycle: cycle}
	}
	t, ok := w.r.tasks[n]
	if !ok {
		from := ""
		if len(w.stack) > 0 {
			from = w.stack[len(w.stack)-1]
		}
		return &UnknownTaskError{Name: n, From: from}
	}

	w.color[n] = gray
	w.stack = append(w.stack, n)
	for _, d := range t.Deps {
		if err := w.visit(d); err != nil {
			return err
		}
	}
	w.stack = w.stack[:len(w.stack)-1]
	w.color[n] = black
	w.order = append(w.order, n)
	return nil
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_', c == ':', c == '-':
		default:
			return false
		}
	}
	return true
}
