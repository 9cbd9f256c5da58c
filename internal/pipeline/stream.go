package pipeline

import (
	"context"

	"taskflow/internal/record"
)

// Stream is the channel between two pipeline steps. Streams are unbuffered:
// a step hands a record over only when the next one is ready for it.
type Stream = chan *record.File

// Emit sends f downstream unless ctx is cancelled first.
func Emit(ctx context.Context, ch chan<- *record.File, f *record.File) error {
	select {
	case ch <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
