package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/internal/task"
)

// recorder stamps every action start and end with a global sequence number.
type recorder struct {
	seq   atomic.Int64
	mu    sync.Mutex
	start map[string]int64
	end   map[string]int64
	runs  map[string]int
}

func newRecorder() *recorder {
	return &recorder{start: map[string]int64{}, end: map[string]int64{}, runs: map[string]int{}}
}

func (r *recorder) action(name string, body func(ctx context.Context) error) task.Action {
	return task.ActionFunc(func(ctx context.Context) error {
		r.mu.Lock()
		r.start[name] = r.seq.Add(1)
		r.runs[name]++
		r.mu.Unlock()
		var err error
		if body != nil {
			err = body(ctx)
		}
		r.mu.Lock()
		r.end[name] = r.seq.Add(1)
		r.mu.Unlock()
		return err
	})
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.runs {
		n += c
	}
	return n
}

type def struct {
	name string
	deps []string
	body func(ctx context.Context) error
	skip bool
	inc  bool
}

func registry(t *testing.T, rec *recorder, defs ...def) *task.Registry {
	t.Helper()
	reg := task.NewRegistry()
	for _, d := range defs {
		require.NoError(t, reg.Add(&task.Task{
			Name:        d.name,
			Deps:        d.deps,
			Action:      rec.action(d.name, d.body),
			Skip:        d.skip,
			Incremental: d.inc,
		}))
	}
	return reg
}

func gulpfile() []def {
	return []def{
		{name: "clean"},
		{name: "vendors"},
		{name: "scripts", deps: []string{"clean"}},
		{name: "html", deps: []string{"clean"}},
		{name: "build", deps: []string{"vendors", "scripts", "html"}},
	}
}

func TestRun_DependenciesHappenBefore(t *testing.T) {
	rec := newRecorder()
	reg := registry(t, rec, gulpfile()...)

	rep, err := New(reg, Options{Concurrency: 4}).Run(context.Background(), "build")
	require.NoError(t, err)

	for _, name := range rep.Plan {
		tk, _ := reg.Get(name)
		for _, d := range tk.Deps {
			assert.Greater(t, rec.start[name], rec.end[d], "%s started before %s finished", name, d)
		}
		assert.Equal(t, Succeeded, rep.Get(name).State)
	}
	assert.Equal(t, 5, rec.total())
}

func TestRun_SequentialFollowsPlanOrder(t *testing.T) {
	rec := newRecorder()
	reg := registry(t, rec, gulpfile()...)

	rep, err := New(reg, Options{Concurrency: 1}).Run(context.Background(), "build")
	require.NoError(t, err)
	want := []string{"vendors", "clean", "scripts", "html", "build"}
	assert.Equal(t, want, rep.Plan)
	assert.Equal(t, want, rep.Order())
}

func TestRun_CycleRunsNothing(t *testing.T) {
	rec := newRecorder()
	reg := registry(t, rec, def{name: "a", deps: []string{"b"}}, def{name: "b", deps: []string{"a"}}, def{name: "c"})

	rep, err := New(reg, Options{}).Run(context.Background(), "c")
	var ce *task.CyclicDependencyError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"a", "b", "a"}, ce.Cycle)
	assert.Nil(t, rep)
	assert.Zero(t, rec.total())
}

func TestRun_UnknownTaskRunsNothing(t *testing.T) {
	rec := newRecorder()
	reg := registry(t, rec, gulpfile()...)

	_, err := New(reg, Options{}).Run(context.Background(), "clean", "deploy")
	var ue *task.UnknownTaskError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "deploy", ue.Name)
	assert.Zero(t, rec.total())
}

func TestRun_IndependentDepsOverlap(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	both := make(chan struct{})
	go func() { started.Wait(); close(both) }()

	wait := func(ctx context.Context) error {
		started.Done()
		select {
		case <-both:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("sibling never started")
		}
	}
	rec := newRecorder()
	reg := registry(t, rec,
		def{name: "lint", body: wait},
		def{name: "test", body: wait},
		def{name: "ci", deps: []string{"lint", "test"}},
	)

	_, err := New(reg, Options{Concurrency: 2}).Run(context.Background(), "ci")
	require.NoError(t, err)
}

func TestRun_FailureCancelsRest(t *testing.T) {
	boom := errors.New("exit status 1")
	blocked := make(chan struct{})
	rec := newRecorder()
	reg := registry(t, rec,
		def{name: "slow", body: func(ctx context.Context) error {
			close(blocked)
			<-ctx.Done()
			return ctx.Err()
		}},
		def{name: "lint", body: func(context.Context) error {
			<-blocked
			return boom
		}},
		def{name: "scripts", deps: []string{"lint"}},
		def{name: "build", deps: []string{"slow", "scripts"}},
	)

	rep, err := New(reg, Options{Concurrency: 4}).Run(context.Background(), "build")
	var te *TaskError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "lint", te.Task)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, Failed, rep.Get("lint").State)
	assert.Equal(t, Canceled, rep.Get("slow").State)
	assert.Equal(t, Canceled, rep.Get("scripts").State)
	assert.Equal(t, Canceled, rep.Get("build").State)
	assert.Zero(t, rec.runs["scripts"])
	assert.Zero(t, rec.runs["build"])
}

func TestRun_SequentialFailureStopsLaterTasks(t *testing.T) {
	rec := newRecorder()
	reg := registry(t, rec,
		def{name: "a", body: func(context.Context) error { return errors.New("no") }},
		def{name: "b"},
		def{name: "all", deps: []string{"a", "b"}},
	)

	rep, err := New(reg, Options{Concurrency: 1}).Run(context.Background(), "all")
	require.Error(t, err)
	assert.Equal(t, Canceled, rep.Get("b").State)
	assert.Equal(t, 2, rep.Count(Canceled))
	assert.Equal(t, 1, rep.Count(Failed))
	assert.Equal(t, 1, rec.total())
}

type fakeCache struct {
	fresh    map[string]bool
	recorded []string
}

func (c *fakeCache) UpToDate(_ context.Context, t *task.Task) (bool, error) {
	return c.fresh[t.Name], nil
}

func (c *fakeCache) Record(_ context.Context, t *task.Task) error {
	c.recorded = append(c.recorded, t.Name)
	return nil
}

func TestRun_SkipAndCached(t *testing.T) {
	rec := newRecorder()
	reg := registry(t, rec,
		def{name: "bower", skip: true},
		def{name: "lint", inc: true},
		def{name: "clean"},
		def{name: "scripts", deps: []string{"clean"}, inc: true},
		def{name: "build", deps: []string{"bower", "lint", "scripts"}},
	)
	cache := &fakeCache{fresh: map[string]bool{"lint": true, "scripts": true}}

	rep, err := New(reg, Options{Concurrency: 1, Cache: cache}).Run(context.Background(), "build")
	require.NoError(t, err)

	assert.Equal(t, Skipped, rep.Get("bower").State)
	assert.Equal(t, Cached, rep.Get("lint").State)
	// clean ran, so scripts must run even though its inputs look fresh.
	assert.Equal(t, Succeeded, rep.Get("scripts").State)
	assert.Equal(t, Succeeded, rep.Get("build").State)
	assert.Equal(t, []string{"scripts"}, cache.recorded)
	assert.Zero(t, rec.runs["bower"])
	assert.Zero(t, rec.runs["lint"])
}

func TestRun_EachTaskOnceAndPanics(t *testing.T) {
	rec := newRecorder()
	reg := registry(t, rec, gulpfile()...)
	_, err := New(reg, Options{}).Run(context.Background(), "scripts", "html", "scripts")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.runs["clean"])
	assert.Equal(t, 1, rec.runs["scripts"])

	reg = registry(t, rec, def{name: "oops", body: func(context.Context) error { panic("nil map") }})
	rep, err := New(reg, Options{}).Run(context.Background(), "oops")
	require.Error(t, err)
	assert.Equal(t, Failed, rep.Get("oops").State)
}

func TestRun_GroupTaskWithoutAction(t *testing.T) {
	reg := task.NewRegistry()
	require.NoError(t, reg.Add(&task.Task{Name: "build"}))
	rep, err := New(reg, Options{}).Run(context.Background(), "build")
	require.NoError(t, err)
	assert.Equal(t, Succeeded, rep.Get("build").State)
}
