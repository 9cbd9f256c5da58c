package scheduler

import (
	"fmt"
	"time"
)

// State is where a task is within one run.
type State int

const (
	Pending State = iota
	Ready
	Running
	Succeeded
	Failed
	Cached   // incremental and up to date; counts as satisfied
	Skipped  // skip: true; counts as satisfied
	Canceled // never started because the run failed or was interrupted
)

var stateNames = [...]string{"pending", "ready", "running", "succeeded", "failed", "cached", "skipped", "canceled"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether the task will not change state again in this run.
func (s State) Terminal() bool { return s >= Succeeded }

func (s State) satisfied() bool { return s == Succeeded || s == Cached || s == Skipped }

type Result struct {
	Task  string
	State State
	Start time.Time
	End   time.Time
	Err   error
}

func (r *Result) Duration() time.Duration {
	if r.Start.IsZero() || r.End.IsZero() {
		return 0
	}
	return r.End.Sub(r.Start)
}

// Report is the outcome of one Run.
type Report struct {
	Plan    []string
	Results map[string]*Result
	order   []string
}

// Order lists tasks in the order they reached a terminal state.
func (r *Report) Order() []string { return append([]string(nil), r.order...) }

func (r *Report) Get(name string) *Result { return r.Results[name] }

// Count returns how many tasks ended in st.
func (r *Report) Count(st State) int {
	n := 0
	for _, res := range r.Results {
		if res.State == st {
			n++
		}
	}
	return n
}

// TaskError is the first task failure of a run.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string { return fmt.Sprintf("task %q failed: %v", e.Task, e.Err) }

func (e *TaskError) Unwrap() error { return e.Err }
