// Package glob resolves glob patterns against a filesystem into file records.
package glob

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"taskflow/internal/record"
)

// EmitFunc receives each resolved record. Returning an error stops resolution.
type EmitFunc func(*record.File) error

// Source is the file source of a pipeline.
type Source struct {
	FS       billy.Filesystem
	Patterns []string
	Read     bool // load contents; false leaves Contents nil
	Sort     bool // emit sorted by path instead of enumeration order
	Dot      bool // match entries whose name starts with "."
}

type pattern struct {
	raw     string
	base    string
	literal bool
	// segments that start with "."; they admit dot entries when Dot is off
	dotSegs []string
}

// namesDot reports whether the pattern spells out a leading "." for name.
func (p pattern) namesDot(name string) bool {
	for _, seg := range p.dotSegs {
		if ok, _ := doublestar.Match(seg, name); ok {
			return true
		}
	}
	return false
}

// Validate checks every pattern without touching the filesystem.
func (s *Source) Validate() error {
	_, _, err := s.compile()
	return err
}

// Run walks the filesystem and emits matching records as they are found.
// An empty match set is not an error.
func (s *Source) Run(ctx context.Context, emit EmitFunc) error {
	inc, exc, err := s.compile()
	if err != nil {
		return err
	}

	var collected []*record.File
	out := emit
	if s.Sort {
		out = func(f *record.File) error {
			collected = append(collected, f)
			return nil
		}
	}

	seen := make(map[string]struct{})
	for _, p := range inc {
		if err := s.resolve(ctx, p, exc, seen, out); err != nil {
			return err
		}
	}

	if s.Sort {
		sort.SliceStable(collected, func(i, j int) bool { return collected[i].Path < collected[j].Path })
		for _, f := range collected {
			if err := emit(f); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Source) compile() (inc, exc []pattern, err error) {
	for _, raw := range s.Patterns {
		negate := strings.HasPrefix(raw, "!")
		p := strings.TrimPrefix(raw, "!")
		p = strings.TrimPrefix(filepath.ToSlash(p), "./")
		if p == "" || !doublestar.ValidatePattern(p) {
			return nil, nil, &ResolutionError{Pattern: raw, Err: ErrInvalidPattern}
		}
		base, _ := doublestar.SplitPattern(p)
		cp := pattern{raw: path.Clean(p), base: path.Clean(base), literal: !hasMeta(p)}
		if cp.literal {
			cp.base = path.Dir(cp.raw)
		}
		for _, seg := range strings.Split(cp.raw, "/") {
			if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
				cp.dotSegs = append(cp.dotSegs, seg)
			}
		}
		if negate {
			exc = append(exc, cp)
		} else {
			inc = append(inc, cp)
		}
	}
	return inc, exc, nil
}

func (s *Source) resolve(ctx context.Context, p pattern, exc []pattern, seen map[string]struct{}, emit EmitFunc) error {
	if p.literal {
		info, err := s.FS.Lstat(p.raw)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return &ResolutionError{Pattern: p.raw, Path: p.raw, Err: err}
		}
		return s.emitOne(p, p.raw, info, exc, seen, emit)
	}

	info, err := s.FS.Lstat(p.base)
	if errors.Is(err, os.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil
	}
	if err != nil {
		return &ResolutionError{Pattern: p.raw, Path: p.base, Err: err}
	}

	return util.Walk(s.FS, p.base, func(name string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		name = path.Clean(filepath.ToSlash(name))
		if err != nil {
			return &ResolutionError{Pattern: p.raw, Path: name, Err: err}
		}
		if name != p.base && !s.Dot && strings.HasPrefix(info.Name(), ".") && !p.namesDot(info.Name()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		ok, err := doublestar.Match(p.raw, name)
		if err != nil {
			return &ResolutionError{Pattern: p.raw, Err: err}
		}
		if !ok {
			return nil
		}
		return s.emitOne(p, name, info, exc, seen, emit)
	})
}

func (s *Source) emitOne(p pattern, name string, info os.FileInfo, exc []pattern, seen map[string]struct{}, emit EmitFunc) error {
	if _, dup := seen[name]; dup {
		return nil
	}
	for _, x := range exc {
		if x.literal && (name == x.raw || strings.HasPrefix(name, x.raw+"/")) {
			return nil
		}
		if ok, _ := doublestar.Match(x.raw, name); ok {
			return nil
		}
	}
	seen[name] = struct{}{}

	f := &record.File{Path: name, Base: p.base, Mode: info.Mode(), ModTime: info.ModTime()}
	if s.Read && info.Mode().IsRegular() {
		b, err := util.ReadFile(s.FS, name)
		if err != nil {
			return &ResolutionError{Pattern: p.raw, Path: name, Err: err}
		}
		f.Contents = b
	}
	return emit(f)
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{\\")
}
