// Package spec holds the decoded taskfile, independent of its on-disk format.
package spec

import "time"

type Settings struct {
	Concurrency int    `yaml:"concurrency"`
	Sequential  bool   `yaml:"sequential"`
	Cache       string `yaml:"cache"` // sqlite path; empty disables incremental builds
}

// StageSpec is one transform in a pipeline. Address, TimeoutMS and
// RetryPolicy only apply to type "grpc".
type StageSpec struct {
	Name        string         `yaml:"name"`
	Type        string         `yaml:"type"`
	Options     map[string]any `yaml:"options"`
	Address     string         `yaml:"address"` // e.g. "localhost:50051"
	TimeoutMS   int            `yaml:"timeout_ms"`
	RetryPolicy struct {
		Attempts  int `yaml:"attempts"`
		BackoffMS int `yaml:"backoff_ms"`
	} `yaml:"retry_policy"`
}

type SinkSpec struct {
	Kind    string         `yaml:"kind"`
	Options map[string]any `yaml:"options"`
}

type PipelineSpec struct {
	Src  []string `yaml:"src"`
	Read *bool    `yaml:"read"` // default true
	Sort bool     `yaml:"sort"`
	Dot  bool     `yaml:"dot"`

	// Ordered list of transform plugins applied between source and sinks.
	Transforms []StageSpec `yaml:"transforms"`
	Sinks      []SinkSpec  `yaml:"sinks"`
}

// ReadContents reports whether source records carry their contents.
func (p *PipelineSpec) ReadContents() bool { return p.Read == nil || *p.Read }

type ExecSpec struct {
	Command     []string          `yaml:"command"`
	Dir         string            `yaml:"dir"`
	Env         map[string]string `yaml:"env"`
	Timeout     time.Duration     `yaml:"timeout"`
	Grace       time.Duration     `yaml:"grace"`
	FailOnError *bool             `yaml:"fail_on_error"` // default true
}

type TaskSpec struct {
	Description string   `yaml:"description"`
	Deps        []string `yaml:"deps"`
	Skip        bool     `yaml:"skip"`
	Incremental bool     `yaml:"incremental"`
	// Inputs feed the incremental fingerprint; defaults to the pipeline's src.
	Inputs []string `yaml:"inputs"`

	Pipeline *PipelineSpec `yaml:"pipeline"`
	Exec     *ExecSpec     `yaml:"exec"`
}

// Kind names the action shape: "pipeline", "exec" or "group".
func (t TaskSpec) Kind() string {
	switch {
	case t.Pipeline != nil:
		return "pipeline"
	case t.Exec != nil:
		return "exec"
	default:
		return "group"
	}
}

type File struct {
	SchemaVersion string              `yaml:"schema_version"`
	Settings      Settings            `yaml:"settings"`
	Tasks         map[string]TaskSpec `yaml:"tasks"`

	// Dir is the directory the taskfile was loaded from; relative paths
	// resolve against it.
	Dir string `yaml:"-"`
}
