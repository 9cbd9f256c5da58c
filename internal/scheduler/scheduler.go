// Package scheduler runs a validated task registry in dependency order.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"taskflow/internal/logging"
	"taskflow/internal/task"
	"taskflow/internal/telemetry"
)

// Cache decides whether an incremental task can be skipped. Record is called
// after the task succeeded.
type Cache interface {
	UpToDate(ctx context.Context, t *task.Task) (bool, error)
	Record(ctx context.Context, t *task.Task) error
}

type Options struct {
	// Concurrency bounds running tasks; 0 means GOMAXPROCS, 1 runs tasks
	// one at a time in plan order.
	Concurrency int
	Cache       Cache
	Now         func() time.Time
}

type Scheduler struct {
	reg  *task.Registry
	opts Options
}

func New(reg *task.Registry, opts Options) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{reg: reg, opts: opts}
}

type outcome struct {
	idx int
	err error
}

// Run executes names and everything they depend on. Nothing runs when the
// registry is invalid or a name is unknown. The first failure cancels the
// run: tasks not yet started end Canceled and running ones are awaited.
func (s *Scheduler) Run(ctx context.Context, names ...string) (*Report, error) {
	if err := s.reg.Validate(); err != nil {
		return nil, err
	}
	plan, err := s.reg.Plan(names...)
	if err != nil {
		return nil, err
	}

	n := len(plan)
	tasks := make([]*task.Task, n)
	index := make(map[string]int, n)
	for i, name := range plan {
		tasks[i], _ = s.reg.Get(name)
		index[name] = i
	}
	pending := make([]int, n)
	dependents := make([][]int, n)
	for i, t := range tasks {
		seen := map[int]bool{}
		for _, d := range t.Deps {
			j := index[d]
			if seen[j] {
				continue
			}
			seen[j] = true
			pending[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	rep := &Report{Plan: plan, Results: make(map[string]*Result, n)}
	for _, name := range plan {
		rep.Results[name] = &Result{Task: name, State: Pending}
	}
	ran := make([]bool, n)

	ready := &intMinHeap{}
	push := func(i int) {
		rep.Results[plan[i]].State = Ready
		heap.Push(ready, i)
	}
	for i := range tasks {
		if pending[i] == 0 {
			push(i)
		}
	}

	finish := func(i int, st State, err error) {
		res := rep.Results[plan[i]]
		res.State, res.Err, res.End = st, err, s.opts.Now()
		if res.Start.IsZero() {
			res.Start = res.End
		}
		rep.order = append(rep.order, plan[i])
		telemetry.TaskRuns.WithLabelValues(plan[i], st.String()).Inc()
		if !st.satisfied() {
			return
		}
		for _, d := range dependents[i] {
			pending[d]--
			if pending[d] == 0 {
				push(d)
			}
		}
	}

	log := logging.L()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan outcome)
	running := 0
	var first *TaskError

	for {
		for first == nil && runCtx.Err() == nil && running < s.opts.Concurrency && ready.Len() > 0 {
			i := heap.Pop(ready).(int)
			t := tasks[i]

			if t.Skip {
				log.Info("task skipped", "task", t.Name)
				finish(i, Skipped, nil)
				continue
			}
			depRan := false
			for _, d := range t.Deps {
				depRan = depRan || ran[index[d]]
			}
			if !depRan && s.upToDate(runCtx, t) {
				log.Info("task up to date", "task", t.Name)
				finish(i, Cached, nil)
				continue
			}

			res := rep.Results[t.Name]
			res.State, res.Start = Running, s.opts.Now()
			ran[i] = true
			running++
			log.Info("task started", "task", t.Name)
			go func(i int, t *task.Task) {
				done <- outcome{idx: i, err: runAction(runCtx, t)}
			}(i, t)
		}
		if running == 0 {
			break
		}

		o := <-done
		running--
		t := tasks[o.idx]
		res := rep.Results[t.Name]
		if o.err != nil && first != nil && errors.Is(o.err, context.Canceled) {
			finish(o.idx, Canceled, o.err)
			continue
		}
		if o.err != nil {
			finish(o.idx, Failed, o.err)
			log.Error("task failed", "task", t.Name, "err", o.err)
			if first == nil {
				first = &TaskError{Task: t.Name, Err: o.err}
				cancel()
			}
			continue
		}
		finish(o.idx, Succeeded, nil)
		telemetry.TaskDuration.WithLabelValues(t.Name).Observe(res.Duration().Seconds())
		log.Info("task finished", "task", t.Name, "took", res.Duration())
		if t.Incremental && s.opts.Cache != nil {
			if err := s.opts.Cache.Record(ctx, t); err != nil {
				log.Warn("recording fingerprint", "task", t.Name, "err", err)
			}
		}
	}

	for _, name := range plan {
		if res := rep.Results[name]; !res.State.Terminal() {
			res.State = Canceled
			telemetry.TaskRuns.WithLabelValues(name, Canceled.String()).Inc()
		}
	}

	if first != nil {
		return rep, first
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	return rep, nil
}

// upToDate consults the cache for incremental tasks. A cache error means
// the task runs.
func (s *Scheduler) upToDate(ctx context.Context, t *task.Task) bool {
	if !t.Incremental || s.opts.Cache == nil {
		return false
	}
	ok, err := s.opts.Cache.UpToDate(ctx, t)
	if err != nil {
		logging.L().Warn("checking fingerprint", "task", t.Name, "err", err)
		return false
	}
	return ok
}

func runAction(ctx context.Context, t *task.Task) (err error) {
	if t.Action == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Action.Run(ctx)
}
