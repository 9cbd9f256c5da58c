package engine

import (
	"context"
	"log/slog"
	"time"

	"taskflow/internal/cache"
	"taskflow/internal/scheduler"
	"taskflow/internal/spec"
	"taskflow/internal/task"
	"taskflow/internal/telemetry"
)

type Engine struct {
	file        *spec.File
	root        string
	runID       string
	reg         *task.Registry
	concurrency int

	store   *cache.Store
	tracker *cache.Tracker
	metrics *telemetry.Server
	log     *slog.Logger
}

// TaskInfo describes a registered task for listings.
type TaskInfo struct {
	Name        string
	Kind        string
	Deps        []string
	Description string
	Skip        bool
	Incremental bool
}

func (e *Engine) RunID() string { return e.runID }
func (e *Engine) Root() string  { return e.root }

// Run executes names and their dependencies.
func (e *Engine) Run(ctx context.Context, names ...string) (*scheduler.Report, error) {
	opts := scheduler.Options{Concurrency: e.concurrency}
	if e.tracker != nil {
		opts.Cache = e.tracker
	}
	e.log.Info("run started", "tasks", names, "concurrency", e.concurrency)
	rep, err := scheduler.New(e.reg, opts).Run(ctx, names...)
	if rep != nil {
		e.log.Info("run finished",
			"succeeded", rep.Count(scheduler.Succeeded),
			"failed", rep.Count(scheduler.Failed),
			"cached", rep.Count(scheduler.Cached),
			"skipped", rep.Count(scheduler.Skipped),
			"canceled", rep.Count(scheduler.Canceled))
	}
	return rep, err
}

// Tasks lists every task, sorted by name.
func (e *Engine) Tasks() []TaskInfo {
	var out []TaskInfo
	for _, n := range e.reg.Names() {
		t, _ := e.reg.Get(n)
		out = append(out, TaskInfo{
			Name:        t.Name,
			Kind:        t.Kind,
			Deps:        t.Deps,
			Description: t.Description,
			Skip:        t.Skip,
			Incremental: t.Incremental,
		})
	}
	return out
}

// Plan returns the order Run would start names in when sequential.
func (e *Engine) Plan(names ...string) ([]string, error) {
	return e.reg.Plan(names...)
}

func (e *Engine) Close() error {
	var firstErr error
	if e.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.metrics.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
