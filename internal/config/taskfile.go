package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"taskflow/internal/spec"
)

const SupportedSchema = "v1"

// EnvPrefix marks environment overrides: TASKFLOW_SETTINGS__CONCURRENCY=2
// sets settings.concurrency.
const EnvPrefix = "TASKFLOW_"

// DefaultNames are tried in order by Discover.
var DefaultNames = []string{"taskflow.yml", "taskflow.yaml", "taskflow.hcl"}

// Discover returns the first default taskfile present in dir.
func Discover(dir string) (string, error) {
	for _, n := range DefaultNames {
		p := filepath.Join(dir, n)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no taskfile in %s (looked for %s)", dir, strings.Join(DefaultNames, ", "))
}

// Load reads a YAML or HCL taskfile, applies environment overrides to its
// settings and validates the schema version. Dir is set to the file's
// absolute directory.
func Load(path string) (*spec.File, error) {
	var (
		f   *spec.File
		err error
	)
	if filepath.Ext(path) == ".hcl" {
		f, err = loadHCL(path)
	} else {
		f, err = loadYAML(path)
	}
	if err != nil {
		return nil, err
	}
	if err := applyEnv(f); err != nil {
		return nil, err
	}
	if err := check(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if f.Dir, err = filepath.Abs(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return f, nil
}

func loadYAML(path string) (*spec.File, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, err
	}
	var f spec.File
	if err := k.UnmarshalWithConf("", &f, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

func applyEnv(f *spec.File) error {
	k := koanf.New(".")
	cb := func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", cb), nil); err != nil {
		return err
	}
	if !k.Exists("settings") {
		return nil
	}
	return k.UnmarshalWithConf("settings", &f.Settings, koanf.UnmarshalConf{Tag: "yaml"})
}

func check(f *spec.File) error {
	if f.SchemaVersion == "" {
		f.SchemaVersion = SupportedSchema
	}
	if f.SchemaVersion != SupportedSchema {
		return fmt.Errorf("schema_version %q not supported (want %q)", f.SchemaVersion, SupportedSchema)
	}
	if f.Settings.Concurrency < 0 {
		return errors.New("settings.concurrency must not be negative")
	}
	for name, t := range f.Tasks {
		if t.Pipeline != nil && t.Exec != nil {
			return fmt.Errorf("task %q: pipeline and exec are mutually exclusive", name)
		}
		if t.Exec != nil && len(t.Exec.Command) == 0 {
			return fmt.Errorf("task %q: exec.command is empty", name)
		}
	}
	return nil
}
