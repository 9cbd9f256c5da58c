package pipeline

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"taskflow/internal/logging"
	"taskflow/internal/record"
	"taskflow/internal/telemetry"
	"taskflow/internal/transform"
	"taskflow/sink"
	"taskflow/source/glob"
)

// Source feeds a pipeline. *glob.Source is the only production implementation.
type Source interface {
	Run(ctx context.Context, emit glob.EmitFunc) error
}

// Stage builds a fresh transformer for each run.
type Stage struct {
	Name string
	New  func() (transform.Transformer, error)
}

// SinkFactory builds and configures a fresh sink for each run.
type SinkFactory struct {
	Kind string
	New  func() (sink.Adapter, error)
}

type Stats struct {
	In  int // records emitted by the source
	Out int // records delivered to the sinks
}

type Runner struct {
	Task   string
	Source Source
	Stages []Stage
	Sinks  []SinkFactory
}

// Run streams every source record through the stages into the sinks. The
// first error from any step cancels the others; records already written
// stay written.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	var st Stats
	if r.Source == nil {
		return st, errors.New("runner: no source configured")
	}

	stages, sinks, err := r.instantiate()
	defer closeAll(r.Task, stages, sinks)
	if err != nil {
		return st, err
	}

	log := logging.L().With("task", r.Task)
	g, gctx := errgroup.WithContext(ctx)

	src := make(Stream)
	g.Go(func() error {
		defer close(src)
		return r.Source.Run(gctx, func(f *record.File) error {
			st.In++
			telemetry.PipelineRecords.WithLabelValues(r.Task, "source").Inc()
			return Emit(gctx, src, f)
		})
	})

	in := src
	for i, t := range stages {
		out := make(Stream)
		g.Go(r.stageLoop(gctx, r.Stages[i].Name, t, in, out))
		in = out
	}

	last := in
	g.Go(func() error {
		for f := range last {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i, s := range sinks {
				if err := s.Push(gctx, f); err != nil {
					return &sink.SinkError{Sink: r.Sinks[i].Kind, Path: f.Path, Err: err}
				}
			}
			st.Out++
			telemetry.PipelineRecords.WithLabelValues(r.Task, "sink").Inc()
		}
		return nil
	})

	err = g.Wait()
	log.Debug("pipeline finished", "in", st.In, "out", st.Out, "err", err)
	return st, err
}

func (r *Runner) stageLoop(ctx context.Context, name string, t transform.Transformer, in <-chan *record.File, out chan<- *record.File) func() error {
	return func() error {
		defer close(out)
		forward := func(fs []*record.File) error {
			for _, f := range fs {
				if err := Emit(ctx, out, f); err != nil {
					return err
				}
				telemetry.PipelineRecords.WithLabelValues(r.Task, name).Inc()
			}
			return nil
		}

		for f := range in {
			res, err := t.Transform(ctx, f)
			if err != nil {
				return &transform.TransformError{Stage: name, Path: f.Path, Err: err}
			}
			if err := forward(res); err != nil {
				return err
			}
		}
		// Upstream closed early because the run failed: nothing to flush.
		if err := ctx.Err(); err != nil {
			return err
		}
		if fl, ok := t.(transform.Flusher); ok {
			res, err := fl.Flush(ctx)
			if err != nil {
				return &transform.TransformError{Stage: name, Err: err}
			}
			return forward(res)
		}
		return nil
	}
}

func (r *Runner) instantiate() ([]transform.Transformer, []sink.Adapter, error) {
	var stages []transform.Transformer
	var sinks []sink.Adapter
	for _, s := range r.Stages {
		t, err := s.New()
		if err != nil {
			return stages, sinks, &transform.TransformError{Stage: s.Name, Err: err}
		}
		stages = append(stages, t)
	}
	for _, s := range r.Sinks {
		a, err := s.New()
		if err != nil {
			return stages, sinks, &sink.SinkError{Sink: s.Kind, Err: err}
		}
		sinks = append(sinks, a)
	}
	return stages, sinks, nil
}

func closeAll(task string, stages []transform.Transformer, sinks []sink.Adapter) {
	for _, t := range stages {
		if c, ok := t.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logging.L().Warn("closing stage", "task", task, "err", err)
			}
		}
	}
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			logging.L().Warn("closing sink", "task", task, "err", err)
		}
	}
}
