// Package filter drops records whose relative path does not match.
package filter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"taskflow/internal/record"
	"taskflow/internal/transform"
)

type Config struct {
	// Patterns are doublestar globs against the relative path; a leading
	// "!" excludes.
	Patterns []string `opt:"patterns"`
	// Full matches against Path instead of the path relative to Base.
	Full bool `opt:"full"`
}

type Filter struct {
	include, exclude []string
	full             bool
}

func init() {
	transform.Register("filter", func(opts map[string]any) (transform.Transformer, error) {
		var cfg Config
		if err := transform.Decode(opts, &cfg); err != nil {
			return nil, err
		}
		return New(cfg)
	})
}

func New(cfg Config) (*Filter, error) {
	if len(cfg.Patterns) == 0 {
		return nil, errors.New("filter: patterns is required")
	}
	f := &Filter{full: cfg.Full}
	for _, p := range cfg.Patterns {
		neg := strings.HasPrefix(p, "!")
		p = strings.TrimPrefix(p, "!")
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("filter: invalid pattern %q", p)
		}
		if neg {
			f.exclude = append(f.exclude, p)
		} else {
			f.include = append(f.include, p)
		}
	}
	return f, nil
}

func (f *Filter) Transform(_ context.Context, rec *record.File) ([]*record.File, error) {
	if f.Match(rec) {
		return []*record.File{rec}, nil
	}
	return nil, nil
}

func (f *Filter) Match(rec *record.File) bool {
	name := rec.Relative()
	if f.full {
		name = rec.Path
	}
	for _, p := range f.exclude {
		if ok, _ := doublestar.Match(p, name); ok {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, p := range f.include {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}
