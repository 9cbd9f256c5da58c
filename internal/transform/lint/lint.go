// Package lint checks records for syntax and whitespace problems and
// reports the findings once the stream ends.
package lint

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
	"mvdan.cc/gofumpt/format"

	"taskflow/internal/logging"
	"taskflow/internal/record"
	"taskflow/internal/transform"
)

type Config struct {
	// FailOnError turns findings into a task failure at the end of the run.
	FailOnError bool `opt:"fail_on_error"`
	// Whitespace enables trailing-whitespace and final-newline checks.
	Whitespace *bool `opt:"whitespace"`
}

// Finding is one problem in one file. Line is 0 when unknown.
type Finding struct {
	Path    string
	Line    int
	Message string
}

func (f Finding) String() string {
	if f.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", f.Path, f.Line, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Path, f.Message)
}

// ReportError is returned by Flush when FailOnError is set.
type ReportError struct {
	Findings []Finding
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("%d lint problem(s), first: %s", len(e.Findings), e.Findings[0])
}

type Linter struct {
	cfg Config

	mu       sync.Mutex
	findings []Finding
	files    int
}

func init() {
	transform.Register("lint", func(opts map[string]any) (transform.Transformer, error) {
		var cfg Config
		if err := transform.Decode(opts, &cfg); err != nil {
			return nil, err
		}
		return New(cfg), nil
	})
}

func New(cfg Config) *Linter {
	return &Linter{cfg: cfg}
}

// Transform records findings and passes f through unchanged.
func (l *Linter) Transform(_ context.Context, f *record.File) ([]*record.File, error) {
	if f.Contents == nil {
		return []*record.File{f}, nil
	}
	found := l.Check(f.Path, f.Contents)

	l.mu.Lock()
	l.files++
	l.findings = append(l.findings, found...)
	l.mu.Unlock()

	return []*record.File{f}, nil
}

// Check runs every check that applies to p.
func (l *Linter) Check(p string, src []byte) []Finding {
	var out []Finding
	add := func(line int, msg string) {
		out = append(out, Finding{Path: p, Line: line, Message: msg})
	}

	switch path.Ext(p) {
	case ".json":
		if !gjson.ValidBytes(src) {
			add(0, "invalid JSON")
		}
	case ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal(src, &v); err != nil {
			add(0, err.Error())
		}
	case ".go":
		if _, err := format.Source(src, format.Options{}); err != nil {
			add(0, err.Error())
		}
	}

	if l.cfg.Whitespace == nil || *l.cfg.Whitespace {
		for i, line := range bytes.Split(src, []byte("\n")) {
			line = bytes.TrimSuffix(line, []byte("\r"))
			if len(line) > 0 && strings.ContainsAny(string(line[len(line)-1:]), " \t") {
				add(i+1, "trailing whitespace")
			}
		}
		if len(src) > 0 && src[len(src)-1] != '\n' {
			add(0, "missing final newline")
		}
	}
	return out
}

// Findings returns a copy of what has been collected so far.
func (l *Linter) Findings() []Finding {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Finding(nil), l.findings...)
}

func (l *Linter) Flush(context.Context) ([]*record.File, error) {
	found := l.Findings()
	log := logging.L()
	for _, f := range found {
		log.Warn("lint", "path", f.Path, "line", f.Line, "msg", f.Message)
	}
	log.Info("lint report", "files", l.files, "problems", len(found))

	if l.cfg.FailOnError && len(found) > 0 {
		return nil, &ReportError{Findings: found}
	}
	return nil, nil
}
