package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"taskflow/internal/action"
	"taskflow/internal/cache"
	"taskflow/internal/config"
	"taskflow/internal/logging"
	"taskflow/internal/pipeline"
	"taskflow/internal/spec"
	"taskflow/internal/task"
	"taskflow/internal/telemetry"
)

type Config struct {
	File        string // taskfile; discovered in Dir (or the working directory) when empty
	Dir         string // workspace root; defaults to the taskfile's directory
	Concurrency int    // overrides settings.concurrency when > 0
	Sequential  bool
	Cache       string // overrides settings.cache
	MetricsAddr string

	Stdout io.Writer
	Stderr io.Writer
}

// ConfigError marks problems found before anything ran: unreadable or
// invalid taskfiles, unknown plugin types, bad dependencies.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// Bootstrap loads the taskfile, compiles every task and validates the
// dependency graph.
func Bootstrap(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}

	// 1. taskfile
	path := cfg.File
	if path == "" {
		dir := cfg.Dir
		if dir == "" {
			dir = "."
		}
		p, err := config.Discover(dir)
		if err != nil {
			return nil, &ConfigError{err}
		}
		path = p
	}
	file, err := config.Load(path)
	if err != nil {
		return nil, &ConfigError{err}
	}
	root := file.Dir
	if cfg.Dir != "" {
		if root, err = filepath.Abs(cfg.Dir); err != nil {
			return nil, &ConfigError{err}
		}
	}

	e := &Engine{
		file:  file,
		root:  root,
		runID: uuid.NewString(),
	}
	e.log = logging.L().With("run_id", e.runID)
	e.log.Debug("taskfile loaded", "path", path, "root", root, "tasks", len(file.Tasks))

	// 2. tasks
	fsys := osfs.New(root)
	reg, err := buildRegistry(file, root, pipeline.Env{FS: fsys, Out: cfg.Stdout}, cfg)
	if err != nil {
		return nil, &ConfigError{err}
	}
	if err := reg.Validate(); err != nil {
		return nil, &ConfigError{err}
	}
	e.reg = reg

	e.concurrency = file.Settings.Concurrency
	if cfg.Concurrency > 0 {
		e.concurrency = cfg.Concurrency
	}
	if cfg.Sequential || file.Settings.Sequential {
		e.concurrency = 1
	}

	// 3. incremental cache
	cachePath := file.Settings.Cache
	if cfg.Cache != "" {
		cachePath = cfg.Cache
	}
	if cachePath != "" {
		if !filepath.IsAbs(cachePath) {
			cachePath = filepath.Join(root, cachePath)
		}
		store, err := cache.Open(cachePath)
		if err != nil {
			return nil, &ConfigError{err}
		}
		defs := make(map[string][]byte, len(file.Tasks))
		for name, ts := range file.Tasks {
			b, err := yaml.Marshal(ts)
			if err != nil {
				_ = store.Close()
				return nil, &ConfigError{fmt.Errorf("task %q: %w", name, err)}
			}
			defs[name] = b
		}
		e.store = store
		e.tracker = &cache.Tracker{Store: store, FS: fsys, Defs: defs}
	}

	// 4. metrics
	if cfg.MetricsAddr != "" {
		srv, err := telemetry.Expose(cfg.MetricsAddr)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("metrics: %w", err)
		}
		e.metrics = srv
		e.log.Info("metrics exposed", "addr", srv.Addr())
	}
	return e, nil
}

func buildRegistry(file *spec.File, root string, env pipeline.Env, cfg Config) (*task.Registry, error) {
	reg := task.NewRegistry()
	for name, ts := range file.Tasks {
		t := &task.Task{
			Name:        name,
			Description: ts.Description,
			Deps:        ts.Deps,
			Kind:        ts.Kind(),
			Skip:        ts.Skip,
			Incremental: ts.Incremental,
			Inputs:      ts.Inputs,
		}
		switch t.Kind {
		case "pipeline":
			r, err := pipeline.Compile(name, ts.Pipeline, env)
			if err != nil {
				return nil, fmt.Errorf("task %q: %w", name, err)
			}
			t.Action = &action.Pipeline{Runner: r}
			if len(t.Inputs) == 0 {
				t.Inputs = ts.Pipeline.Src
			}
		case "exec":
			t.Action = execAction(name, ts.Exec, root, cfg)
		default:
			t.Action = action.Group{}
		}
		if err := reg.Add(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func execAction(name string, es *spec.ExecSpec, root string, cfg Config) *action.Exec {
	dir := es.Dir
	if dir == "" {
		dir = root
	} else if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return &action.Exec{
		Name:        name,
		Command:     es.Command,
		Dir:         dir,
		Env:         es.Env,
		Timeout:     es.Timeout,
		Grace:       es.Grace,
		FailOnError: es.FailOnError == nil || *es.FailOnError,
		Stdout:      cfg.Stdout,
		Stderr:      cfg.Stderr,
	}
}
