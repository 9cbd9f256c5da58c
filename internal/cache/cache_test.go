package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/internal/task"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, found, err := s.Get(ctx, "scripts")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Put(ctx, "scripts", "abc", time.Unix(1, 0)))
	require.NoError(t, s.Put(ctx, "scripts", "def", time.Unix(2, 0)))
	got, found, err := s.Get(ctx, "scripts")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "def", got)
}

func TestTrackerDetectsChanges(t *testing.T) {
	ctx := context.Background()
	mfs := memfs.New()
	require.NoError(t, util.WriteFile(mfs, "src/app/app.js", []byte("v1"), 0o644))

	tr := &Tracker{Store: openStore(t), FS: mfs, Defs: map[string][]byte{"scripts": []byte("def-1")}}
	tk := &task.Task{Name: "scripts", Incremental: true, Inputs: []string{"src/app/**/*.js"}}

	fresh, err := tr.UpToDate(ctx, tk)
	require.NoError(t, err)
	assert.False(t, fresh, "never recorded")

	require.NoError(t, tr.Record(ctx, tk))
	fresh, err = tr.UpToDate(ctx, tk)
	require.NoError(t, err)
	assert.True(t, fresh)

	require.NoError(t, util.WriteFile(mfs, "src/app/app.js", []byte("v2"), 0o644))
	fresh, err = tr.UpToDate(ctx, tk)
	require.NoError(t, err)
	assert.False(t, fresh, "contents changed")

	require.NoError(t, tr.Record(ctx, tk))
	tr.Defs["scripts"] = []byte("def-2")
	fresh, err = tr.UpToDate(ctx, tk)
	require.NoError(t, err)
	assert.False(t, fresh, "definition changed")
}

func TestTrackerWithoutInputsAlwaysRuns(t *testing.T) {
	tr := &Tracker{Store: openStore(t), FS: memfs.New()}
	tk := &task.Task{Name: "test", Incremental: true}
	require.NoError(t, tr.Record(context.Background(), tk))
	fresh, err := tr.UpToDate(context.Background(), tk)
	require.NoError(t, err)
	assert.False(t, fresh)
}
