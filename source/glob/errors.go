package glob

import (
	"errors"
	"fmt"
)

// ErrInvalidPattern marks syntactically invalid glob patterns.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// ResolutionError reports a bad pattern or an unreadable path.
type ResolutionError struct {
	Pattern string
	Path    string // empty when the pattern itself is at fault
	Err     error
}

func (e *ResolutionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("resolve %q: %s: %v", e.Pattern, e.Path, e.Err)
	}
	return fmt.Sprintf("resolve %q: %v", e.Pattern, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
