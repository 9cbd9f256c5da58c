package stdout

import (
	"bytes"
	"context"
	"testing"

	"taskflow/internal/record"
	"taskflow/sink"
)

func newDriver(t *testing.T, opts map[string]any) (sink.Adapter, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	a, err := sink.NewAdapter("stdout")
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	if err := a.Configure(sink.Env{Out: &buf}, opts); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return a, &buf
}

func TestPush_HeaderAndTruncatedContents(t *testing.T) {
	a, buf := newDriver(t, map[string]any{"contents": true, "max_bytes": 5})
	f, _ := record.New("src", "src/app.js", []byte("console.log(1)\n"))

	if err := a.Push(context.Background(), f); err != nil {
		t.Fatalf("Push: %v", err)
	}
	want := "src/app.js (15 B)\nconso\n… 10 B more\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestPush_UnreadRecord(t *testing.T) {
	a, buf := newDriver(t, map[string]any{"contents": true})
	f, _ := record.New("target", "target/webapp", nil)

	if err := a.Push(context.Background(), f); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if buf.String() != "target/webapp (-)\n" {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestConfigure_RejectsUnknownOption(t *testing.T) {
	a, _ := sink.NewAdapter("stdout")
	if err := a.Configure(sink.Env{}, map[string]any{"colour": true}); err == nil {
		t.Fatal("expected error for unknown option")
	}
}
