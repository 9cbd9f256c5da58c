package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-git/go-billy/v5"

	"taskflow/internal/record"
	"taskflow/internal/task"
	"taskflow/source/glob"
)

// Tracker fingerprints a task as its definition plus the path and contents
// of every input file. It satisfies scheduler.Cache.
type Tracker struct {
	Store *Store
	FS    billy.Filesystem
	// Defs holds a serialized definition per task, so editing the taskfile
	// invalidates the task as well.
	Defs map[string][]byte
	Now  func() time.Time
}

// Fingerprint hashes t's current inputs. Tasks without inputs have no
// fingerprint and always run.
func (c *Tracker) Fingerprint(ctx context.Context, t *task.Task) (string, bool, error) {
	if len(t.Inputs) == 0 {
		return "", false, nil
	}
	h := xxhash.New()
	_, _ = h.Write(c.Defs[t.Name])
	_, _ = h.Write([]byte{0})

	src := &glob.Source{FS: c.FS, Patterns: t.Inputs, Read: true, Sort: true}
	err := src.Run(ctx, func(f *record.File) error {
		_, _ = h.WriteString(f.Path)
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(f.Contents)
		_, _ = h.Write([]byte{0})
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return strconv.FormatUint(h.Sum64(), 16), true, nil
}

func (c *Tracker) UpToDate(ctx context.Context, t *task.Task) (bool, error) {
	fp, ok, err := c.Fingerprint(ctx, t)
	if err != nil || !ok {
		return false, err
	}
	stored, found, err := c.Store.Get(ctx, t.Name)
	if err != nil {
		return false, err
	}
	return found && stored == fp, nil
}

func (c *Tracker) Record(ctx context.Context, t *task.Task) error {
	fp, ok, err := c.Fingerprint(ctx, t)
	if err != nil || !ok {
		return err
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return c.Store.Put(ctx, t.Name, fp, now())
}
