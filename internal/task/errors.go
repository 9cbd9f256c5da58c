package task

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidName = errors.New("invalid task name")

// UnknownTaskError names a task that is requested or depended on but was
// never registered. From is empty for top-level requests.
type UnknownTaskError struct {
	Name string
	From string
}

func (e *UnknownTaskError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("unknown task %q", e.Name)
	}
	return fmt.Sprintf("unknown task %q (dependency of %q)", e.Name, e.From)
}

// CyclicDependencyError carries one cycle witness, first name repeated last.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Cycle, " -> ")
}
