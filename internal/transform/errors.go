package transform

import "fmt"

// TransformError carries the stage and record a plugin failed on.
type TransformError struct {
	Stage string
	Path  string
	Err   error
}

func (e *TransformError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("transform %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("transform %s: %s: %v", e.Stage, e.Path, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }
