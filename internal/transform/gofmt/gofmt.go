// Package gofmt formats Go sources in memory with gofumpt.
package gofmt

import (
	"context"
	"strings"

	"mvdan.cc/gofumpt/format"

	"taskflow/internal/logging"
	"taskflow/internal/record"
	"taskflow/internal/transform"
)

type Config struct {
	LangVersion string `opt:"lang_version"`
	ExtraRules  bool   `opt:"extra_rules"`
	// Strict fails the task on unparsable sources instead of passing them through.
	Strict bool `opt:"strict"`
}

type Formatter struct{ cfg Config }

func init() {
	transform.Register("gofmt", func(opts map[string]any) (transform.Transformer, error) {
		var cfg Config
		if err := transform.Decode(opts, &cfg); err != nil {
			return nil, err
		}
		return &Formatter{cfg: cfg}, nil
	})
}

func (g *Formatter) Transform(_ context.Context, f *record.File) ([]*record.File, error) {
	if f.Contents == nil || !strings.HasSuffix(f.Path, ".go") {
		return []*record.File{f}, nil
	}
	out, err := format.Source(f.Contents, format.Options{
		LangVersion: g.cfg.LangVersion,
		ExtraRules:  g.cfg.ExtraRules,
	})
	if err != nil {
		if g.cfg.Strict {
			return nil, err
		}
		logging.L().Warn("gofmt: leaving file unformatted", "path", f.Path, "err", err)
		return []*record.File{f}, nil
	}
	f.Contents = out
	return []*record.File{f}, nil
}
