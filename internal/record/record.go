// Package record defines the unit of data that flows through a pipeline.
package record

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"
)

// ErrBaseNotPrefix is returned when a record's base is not a prefix of its path.
var ErrBaseNotPrefix = errors.New("record: base is not a prefix of path")

// File is one file travelling through a pipeline.
//
// Path and Base are slash-separated and rooted at the workspace filesystem.
// Contents is nil when the source was configured not to read, and for
// directories.
type File struct {
	Path     string
	Base     string
	Contents []byte
	Mode     fs.FileMode
	ModTime  time.Time
	Attrs    map[string]string
}

// New returns a File after checking that base is a prefix of p.
func New(base, p string, contents []byte) (*File, error) {
	f := &File{Path: clean(p), Base: clean(base), Contents: contents, Mode: 0o644}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks the base/path invariant.
func (f *File) Validate() error {
	if f.Base == "." || f.Base == "" {
		return nil
	}
	if f.Path == f.Base || strings.HasPrefix(f.Path, f.Base+"/") {
		return nil
	}
	return fmt.Errorf("%w: base %q path %q", ErrBaseNotPrefix, f.Base, f.Path)
}

// Relative returns Path relative to Base.
func (f *File) Relative() string {
	if f.Base == "." || f.Base == "" {
		return f.Path
	}
	rel := strings.TrimPrefix(f.Path, f.Base)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		return path.Base(f.Path)
	}
	return rel
}

// SetRelative moves the file to rel under its current Base.
func (f *File) SetRelative(rel string) {
	if f.Base == "." || f.Base == "" {
		f.Path = clean(rel)
		return
	}
	f.Path = clean(path.Join(f.Base, rel))
}

// IsDir reports whether the record stands for a directory.
func (f *File) IsDir() bool { return f.Mode.IsDir() }

// Clone returns a deep copy, so fan-out stages can hand out independent records.
func (f *File) Clone() *File {
	c := *f
	if f.Contents != nil {
		c.Contents = append([]byte(nil), f.Contents...)
	}
	if f.Attrs != nil {
		c.Attrs = make(map[string]string, len(f.Attrs))
		for k, v := range f.Attrs {
			c.Attrs[k] = v
		}
	}
	return &c
}

// SetAttr sets a metadata attribute, allocating the map on first use.
func (f *File) SetAttr(k, v string) {
	if f.Attrs == nil {
		f.Attrs = map[string]string{}
	}
	f.Attrs[k] = v
}

func (f *File) String() string { return f.Path }

func clean(p string) string {
	if p == "" {
		return "."
	}
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}
