package pipeline

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-git/go-billy/v5"

	"taskflow/internal/spec"
	"taskflow/internal/transform"
	"taskflow/sink"
	"taskflow/source/glob"
)

// Env is what compiled pipelines run against.
type Env struct {
	FS  billy.Filesystem
	Out io.Writer
}

// Compile turns a pipeline spec into a Runner. Every stage and sink is built
// once here and thrown away, so unknown types and bad options are reported
// before anything runs.
func Compile(task string, p *spec.PipelineSpec, env Env) (*Runner, error) {
	if p == nil {
		return nil, errors.New("pipeline: no pipeline")
	}
	if len(p.Src) == 0 {
		return nil, errors.New("pipeline: src is empty")
	}
	src := &glob.Source{
		FS:       env.FS,
		Patterns: p.Src,
		Read:     p.ReadContents(),
		Sort:     p.Sort,
		Dot:      p.Dot,
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{Task: task, Source: src}

	for i, t := range p.Transforms {
		name := t.Name
		if name == "" {
			name = fmt.Sprintf("%s#%d", t.Type, i)
		}
		st, err := compileStage(name, t)
		if err != nil {
			return nil, &transform.TransformError{Stage: name, Err: err}
		}
		if err := probe(st.New); err != nil {
			return nil, &transform.TransformError{Stage: name, Err: err}
		}
		r.Stages = append(r.Stages, st)
	}

	for _, s := range p.Sinks {
		sf := compileSink(s, env)
		a, err := sf.New()
		if err != nil {
			return nil, &sink.SinkError{Sink: s.Kind, Err: err}
		}
		_ = a.Close()
		r.Sinks = append(r.Sinks, sf)
	}
	return r, nil
}

func compileStage(name string, t spec.StageSpec) (Stage, error) {
	switch t.Type {
	case "":
		return Stage{}, errors.New("type is required")
	case "grpc":
		if t.Address == "" {
			return Stage{}, errors.New("grpc: address is required")
		}
		ro := transform.RemoteOptions{
			Timeout:  time.Duration(t.TimeoutMS) * time.Millisecond,
			Attempts: t.RetryPolicy.Attempts,
			Backoff:  time.Duration(t.RetryPolicy.BackoffMS) * time.Millisecond,
		}
		addr := t.Address
		return Stage{Name: name, New: func() (transform.Transformer, error) {
			return transform.NewGRPCClient(addr, ro)
		}}, nil
	default:
		f, ok := transform.Lookup(t.Type)
		if !ok {
			return Stage{}, fmt.Errorf("unknown transform type %q", t.Type)
		}
		opts := t.Options
		return Stage{Name: name, New: func() (transform.Transformer, error) {
			return f(opts)
		}}, nil
	}
}

func compileSink(s spec.SinkSpec, env Env) SinkFactory {
	kind, opts := s.Kind, s.Options
	return SinkFactory{Kind: kind, New: func() (sink.Adapter, error) {
		a, err := sink.NewAdapter(kind)
		if err != nil {
			return nil, err
		}
		if err := a.Configure(sink.Env{FS: env.FS, Out: env.Out}, opts); err != nil {
			return nil, err
		}
		return a, nil
	}}
}

func probe(newFn func() (transform.Transformer, error)) error {
	t, err := newFn()
	if err != nil {
		return err
	}
	if c, ok := t.(io.Closer); ok {
		_ = c.Close()
	}
	return nil
}
