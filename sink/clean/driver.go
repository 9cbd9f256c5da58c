// Package clean removes the paths it receives, recursively.
package clean

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"taskflow/internal/logging"
	"taskflow/internal/record"
	"taskflow/sink"
)

// ErrRoot is returned for a record that names the workspace root.
var ErrRoot = errors.New("refusing to remove the workspace root")

type Config struct {
	DryRun bool `yaml:"dry_run"`
}

type driver struct {
	cfg     Config
	fs      billy.Filesystem
	removed []string
}

func (d *driver) Configure(env sink.Env, opts map[string]any) error {
	if err := sink.Decode(opts, &d.cfg); err != nil {
		return fmt.Errorf("clean-sink: %w", err)
	}
	if env.FS == nil {
		return errors.New("clean-sink: no filesystem")
	}
	d.fs = env.FS
	return nil
}

func (d *driver) Push(_ context.Context, f *record.File) error {
	if f.Path == "." || f.Path == "/" {
		return ErrRoot
	}
	d.removed = append(d.removed, f.Path)
	if d.cfg.DryRun {
		return nil
	}
	return util.RemoveAll(d.fs, f.Path)
}

func (d *driver) Close() error {
	if len(d.removed) > 0 {
		logging.L().Info("clean-sink: removed", "paths", len(d.removed), "dry_run", d.cfg.DryRun)
	}
	return nil
}

func init() {
	sink.Register("clean", func() sink.Adapter { return &driver{} })
}
