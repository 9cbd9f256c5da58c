package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/ohler55/ojg/oj"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"taskflow/internal/spec"
)

// HCL schema. Blocks mirror the YAML layout:
//
//	task "scripts" {
//	  deps = ["clean"]
//	  pipeline {
//	    src = ["src/app/app.js"]
//	    transform "rename" { options = { basename = "app.min" } }
//	    sink "dest" { options = { path = "target/webapp/app" } }
//	  }
//	}
type hclRoot struct {
	SchemaVersion string       `hcl:"schema_version,optional"`
	Settings      *hclSettings `hcl:"settings,block"`
	Tasks         []*hclTask   `hcl:"task,block"`
}

type hclSettings struct {
	Concurrency int    `hcl:"concurrency,optional"`
	Sequential  bool   `hcl:"sequential,optional"`
	Cache       string `hcl:"cache,optional"`
}

type hclTask struct {
	Name        string       `hcl:"name,label"`
	Description string       `hcl:"description,optional"`
	Deps        []string     `hcl:"deps,optional"`
	Skip        bool         `hcl:"skip,optional"`
	Incremental bool         `hcl:"incremental,optional"`
	Inputs      []string     `hcl:"inputs,optional"`
	Pipeline    *hclPipeline `hcl:"pipeline,block"`
	Exec        *hclExec     `hcl:"exec,block"`
}

type hclPipeline struct {
	Src        []string    `hcl:"src"`
	Read       *bool       `hcl:"read,optional"`
	Sort       bool        `hcl:"sort,optional"`
	Dot        bool        `hcl:"dot,optional"`
	Transforms []*hclStage `hcl:"transform,block"`
	Sinks      []*hclSink  `hcl:"sink,block"`
}

type hclStage struct {
	Type           string    `hcl:"type,label"`
	Name           string    `hcl:"name,optional"`
	Options        cty.Value `hcl:"options,optional"`
	Address        string    `hcl:"address,optional"`
	TimeoutMS      int       `hcl:"timeout_ms,optional"`
	RetryAttempts  int       `hcl:"retry_attempts,optional"`
	RetryBackoffMS int       `hcl:"retry_backoff_ms,optional"`
}

type hclSink struct {
	Kind    string    `hcl:"kind,label"`
	Options cty.Value `hcl:"options,optional"`
}

type hclExec struct {
	Command     []string          `hcl:"command"`
	Dir         string            `hcl:"dir,optional"`
	Env         map[string]string `hcl:"env,optional"`
	Timeout     string            `hcl:"timeout,optional"`
	Grace       string            `hcl:"grace,optional"`
	FailOnError *bool             `hcl:"fail_on_error,optional"`
}

func loadHCL(path string) (*spec.File, error) {
	parser := hclparse.NewParser()
	hf, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	var root hclRoot
	if diags := gohcl.DecodeBody(hf.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	return translate(&root)
}

func translate(root *hclRoot) (*spec.File, error) {
	f := &spec.File{SchemaVersion: root.SchemaVersion, Tasks: map[string]spec.TaskSpec{}}
	if s := root.Settings; s != nil {
		f.Settings = spec.Settings{Concurrency: s.Concurrency, Sequential: s.Sequential, Cache: s.Cache}
	}
	for _, t := range root.Tasks {
		if _, dup := f.Tasks[t.Name]; dup {
			return nil, fmt.Errorf("task %q declared twice", t.Name)
		}
		ts := spec.TaskSpec{
			Description: t.Description,
			Deps:        t.Deps,
			Skip:        t.Skip,
			Incremental: t.Incremental,
			Inputs:      t.Inputs,
		}
		if p := t.Pipeline; p != nil {
			ps, err := translatePipeline(p)
			if err != nil {
				return nil, fmt.Errorf("task %q: %w", t.Name, err)
			}
			ts.Pipeline = ps
		}
		if e := t.Exec; e != nil {
			es, err := translateExec(e)
			if err != nil {
				return nil, fmt.Errorf("task %q: %w", t.Name, err)
			}
			ts.Exec = es
		}
		f.Tasks[t.Name] = ts
	}
	return f, nil
}

func translatePipeline(p *hclPipeline) (*spec.PipelineSpec, error) {
	ps := &spec.PipelineSpec{Src: p.Src, Read: p.Read, Sort: p.Sort, Dot: p.Dot}
	for _, st := range p.Transforms {
		opts, err := ctyToMap(st.Options)
		if err != nil {
			return nil, fmt.Errorf("transform %q: %w", st.Type, err)
		}
		ss := spec.StageSpec{
			Name:      st.Name,
			Type:      st.Type,
			Options:   opts,
			Address:   st.Address,
			TimeoutMS: st.TimeoutMS,
		}
		ss.RetryPolicy.Attempts = st.RetryAttempts
		ss.RetryPolicy.BackoffMS = st.RetryBackoffMS
		ps.Transforms = append(ps.Transforms, ss)
	}
	for _, sk := range p.Sinks {
		opts, err := ctyToMap(sk.Options)
		if err != nil {
			return nil, fmt.Errorf("sink %q: %w", sk.Kind, err)
		}
		ps.Sinks = append(ps.Sinks, spec.SinkSpec{Kind: sk.Kind, Options: opts})
	}
	return ps, nil
}

func translateExec(e *hclExec) (*spec.ExecSpec, error) {
	es := &spec.ExecSpec{Command: e.Command, Dir: e.Dir, Env: e.Env, FailOnError: e.FailOnError}
	var err error
	if es.Timeout, err = parseDuration("timeout", e.Timeout); err != nil {
		return nil, err
	}
	if es.Grace, err = parseDuration("grace", e.Grace); err != nil {
		return nil, err
	}
	return es, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("exec.%s: %w", field, err)
	}
	return d, nil
}

// ctyToMap converts an options object into the plain map plugins decode.
func ctyToMap(v cty.Value) (map[string]any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("options must be an object, got %s", v.Type().FriendlyName())
	}
	raw, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return nil, err
	}
	parsed, err := oj.Parse(raw)
	if err != nil {
		return nil, err
	}
	out, _ := parsed.(map[string]any)
	return out, nil
}
