package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"taskflow/internal/record"
	"taskflow/internal/transform"
	"taskflow/sink"
	"taskflow/source/glob"
)

type fakeTransform struct {
	calls  int32
	mode   string
	failAt int32
	closed bool
}

func (f *fakeTransform) Transform(ctx context.Context, in *record.File) ([]*record.File, error) {
	c := atomic.AddInt32(&f.calls, 1)
	switch f.mode {
	case "drop":
		return nil, nil
	case "failAt":
		if c == f.failAt {
			return nil, errors.New("boom")
		}
	case "fanout2":
		cp := in.Clone()
		cp.SetRelative(cp.Relative() + ".copy")
		return []*record.File{in, cp}, nil
	case "upper":
		in.Contents = []byte(strings.ToUpper(string(in.Contents)))
	}
	return []*record.File{in}, nil
}

func (f *fakeTransform) Close() error { f.closed = true; return nil }

type captureSink struct {
	mu     sync.Mutex
	pushed []*record.File
	failAt int
	closed bool
}

func (c *captureSink) Configure(sink.Env, map[string]any) error { return nil }
func (c *captureSink) Push(_ context.Context, f *record.File) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAt > 0 && len(c.pushed)+1 == c.failAt {
		return errors.New("disk full")
	}
	c.pushed = append(c.pushed, f)
	return nil
}
func (c *captureSink) Close() error { c.closed = true; return nil }

type sliceSource []*record.File

func (s sliceSource) Run(ctx context.Context, emit glob.EmitFunc) error {
	for _, f := range s {
		if err := emit(f); err != nil {
			return err
		}
	}
	return nil
}

func makeFiles(t *testing.T, n int) sliceSource {
	t.Helper()
	var out sliceSource
	for i := 1; i <= n; i++ {
		f, err := record.New("src", fmt.Sprintf("src/f%02d.txt", i), []byte(fmt.Sprintf("file %d", i)))
		if err != nil {
			t.Fatalf("record.New: %v", err)
		}
		out = append(out, f)
	}
	return out
}

func stage(name string, t transform.Transformer) Stage {
	return Stage{Name: name, New: func() (transform.Transformer, error) { return t, nil }}
}

func sinkOf(c *captureSink) SinkFactory {
	return SinkFactory{Kind: "capture", New: func() (sink.Adapter, error) { return c, nil }}
}

func TestRunner_IdentityIsLossless(t *testing.T) {
	files := makeFiles(t, 10)
	cs := &captureSink{}
	ft := &fakeTransform{mode: "ok"}
	r := &Runner{Task: "copy", Source: files, Stages: []Stage{stage("id", ft)}, Sinks: []SinkFactory{sinkOf(cs)}}

	st, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.In != 10 || st.Out != 10 || len(cs.pushed) != 10 {
		t.Fatalf("expected 10 in/out, got %+v and %d pushed", st, len(cs.pushed))
	}
	for i, f := range cs.pushed {
		if f.Path != files[i].Path || string(f.Contents) != fmt.Sprintf("file %d", i+1) {
			t.Fatalf("record %d changed or reordered: %s %q", i, f.Path, f.Contents)
		}
	}
	if !ft.closed || !cs.closed {
		t.Fatal("stage and sink must be closed after the run")
	}
}

func TestRunner_TransformErrorStopsBeforeRecordK(t *testing.T) {
	const k = 4
	cs := &captureSink{}
	ft := &fakeTransform{mode: "failAt", failAt: k}
	r := &Runner{Task: "t", Source: makeFiles(t, 10), Stages: []Stage{stage("s1", ft)}, Sinks: []SinkFactory{sinkOf(cs)}}

	_, err := r.Run(context.Background())
	var te *transform.TransformError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransformError, got %v", err)
	}
	if te.Stage != "s1" || te.Path != "src/f04.txt" {
		t.Fatalf("unexpected error detail: %+v", te)
	}
	if len(cs.pushed) > k-1 {
		t.Fatalf("sink received %d records, want at most %d", len(cs.pushed), k-1)
	}
	if !ft.closed || !cs.closed {
		t.Fatal("stage and sink must be closed on failure")
	}
}

func TestRunner_DropWritesNothing(t *testing.T) {
	cs := &captureSink{}
	r := &Runner{Source: makeFiles(t, 3), Stages: []Stage{stage("d", &fakeTransform{mode: "drop"})}, Sinks: []SinkFactory{sinkOf(cs)}}

	st, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.In != 3 || len(cs.pushed) != 0 {
		t.Fatalf("expected 3 in, 0 pushed; got %+v, %d", st, len(cs.pushed))
	}
}

func TestRunner_MultiStageFanout(t *testing.T) {
	cs := &captureSink{}
	r := &Runner{
		Source: makeFiles(t, 2),
		Stages: []Stage{stage("s1", &fakeTransform{mode: "fanout2"}), stage("s2", &fakeTransform{mode: "upper"})},
		Sinks:  []SinkFactory{sinkOf(cs)},
	}

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(cs.pushed) != 4 {
		t.Fatalf("expected 4 pushed records after fanout, got %d", len(cs.pushed))
	}
	if cs.pushed[1].Path != "src/f01.txt.copy" || string(cs.pushed[1].Contents) != "FILE 1" {
		t.Fatalf("unexpected second record: %s %q", cs.pushed[1].Path, cs.pushed[1].Contents)
	}
}

func TestRunner_SinkError(t *testing.T) {
	cs := &captureSink{failAt: 2}
	r := &Runner{Source: makeFiles(t, 5), Sinks: []SinkFactory{sinkOf(cs)}}

	_, err := r.Run(context.Background())
	var se *sink.SinkError
	if !errors.As(err, &se) || se.Sink != "capture" || se.Path != "src/f02.txt" {
		t.Fatalf("expected SinkError on second record, got %v", err)
	}
	if len(cs.pushed) != 1 {
		t.Fatalf("earlier write must stay, got %d", len(cs.pushed))
	}
}

type flushCounter struct{ n int }

func (f *flushCounter) Transform(context.Context, *record.File) ([]*record.File, error) {
	f.n++
	return nil, nil
}

func (f *flushCounter) Flush(context.Context) ([]*record.File, error) {
	out, _ := record.New(".", "count.txt", []byte(fmt.Sprint(f.n)))
	return []*record.File{out}, nil
}

func TestRunner_FreshStagePerRunAndFlush(t *testing.T) {
	cs := &captureSink{}
	r := &Runner{
		Source: makeFiles(t, 3),
		Stages: []Stage{{Name: "count", New: func() (transform.Transformer, error) { return &flushCounter{}, nil }}},
		Sinks:  []SinkFactory{sinkOf(cs)},
	}
	for i := 0; i < 2; i++ {
		if _, err := r.Run(context.Background()); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}
	if len(cs.pushed) != 2 || string(cs.pushed[0].Contents) != "3" || string(cs.pushed[1].Contents) != "3" {
		t.Fatalf("state leaked across runs: %v", cs.pushed)
	}
}

func TestRunner_GlobSourceZeroMatches(t *testing.T) {
	cs := &captureSink{}
	mfs := memfs.New()
	if err := util.WriteFile(mfs, "src/app.js", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := &Runner{Source: &glob.Source{FS: mfs, Patterns: []string{"src/**/*.css"}, Read: true}, Sinks: []SinkFactory{sinkOf(cs)}}

	st, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.In != 0 || len(cs.pushed) != 0 {
		t.Fatalf("expected empty run, got %+v", st)
	}
}

func TestRunner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Runner{Source: makeFiles(t, 3), Sinks: []SinkFactory{sinkOf(&captureSink{})}}
	if _, err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
