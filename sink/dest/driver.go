// Package dest writes records under an output directory, keeping each
// record's path relative to its base.
package dest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strconv"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"taskflow/internal/record"
	"taskflow/sink"
)

type Config struct {
	Path string `yaml:"path"`
	// Mode overrides the record's file mode, as an octal string ("0644").
	Mode string `yaml:"mode"`
	// Flatten drops the relative directory and keeps only the file name.
	Flatten bool `yaml:"flatten"`
}

type driver struct {
	cfg  Config
	fs   billy.Filesystem
	mode fs.FileMode
}

func (d *driver) Configure(env sink.Env, opts map[string]any) error {
	if err := sink.Decode(opts, &d.cfg); err != nil {
		return fmt.Errorf("dest-sink: %w", err)
	}
	if d.cfg.Path == "" {
		return errors.New("dest-sink: path is required")
	}
	if env.FS == nil {
		return errors.New("dest-sink: no filesystem")
	}
	if d.cfg.Mode != "" {
		m, err := strconv.ParseUint(d.cfg.Mode, 8, 32)
		if err != nil {
			return fmt.Errorf("dest-sink: mode %q: %w", d.cfg.Mode, err)
		}
		d.mode = fs.FileMode(m)
	}
	d.fs = env.FS
	return nil
}

// Target returns where f is written.
func (d *driver) Target(f *record.File) string {
	rel := f.Relative()
	if d.cfg.Flatten {
		rel = path.Base(rel)
	}
	return path.Join(d.cfg.Path, rel)
}

func (d *driver) Push(_ context.Context, f *record.File) error {
	target := d.Target(f)
	if f.IsDir() {
		return d.fs.MkdirAll(target, 0o755)
	}
	if err := d.fs.MkdirAll(path.Dir(target), 0o755); err != nil {
		return err
	}
	mode := d.mode
	if mode == 0 {
		mode = f.Mode.Perm()
	}
	if mode == 0 {
		mode = 0o644
	}
	if err := util.WriteFile(d.fs, target, f.Contents, mode); err != nil {
		return err
	}
	if ch, ok := d.fs.(billy.Change); ok {
		// WriteFile only applies mode on create.
		if err := ch.Chmod(target, mode); err != nil && !errors.Is(err, billy.ErrNotSupported) {
			return err
		}
	}
	return nil
}

func (d *driver) Close() error { return nil }

func init() {
	sink.Register("dest", func() sink.Adapter { return &driver{} })
}
