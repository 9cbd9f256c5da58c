// Package jsonx edits and reformats JSON records.
//
// Steps run in a fixed order: validate, select, set, delete, format.
package jsonx

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"taskflow/internal/record"
	"taskflow/internal/transform"
)

var ErrInvalidJSON = errors.New("invalid JSON")

type Config struct {
	// Format is "minify", "indent" or empty to keep the layout.
	Format string `opt:"format"`
	Indent string `opt:"indent"`
	// Select replaces the document with the JSONPath result: the single
	// match, or an array when there are several.
	Select string `opt:"select"`
	// Set maps sjson paths to values.
	Set    map[string]any `opt:"set"`
	Delete []string       `opt:"delete"`
	// Extensions limits which records are touched; default [".json"].
	Extensions []string `opt:"extensions"`
}

type Transformer struct {
	cfg  Config
	sel  jp.Expr
	keys []string
	exts map[string]bool
}

func init() {
	transform.Register("json", func(opts map[string]any) (transform.Transformer, error) {
		var cfg Config
		if err := transform.Decode(opts, &cfg); err != nil {
			return nil, err
		}
		return New(cfg)
	})
}

func New(cfg Config) (*Transformer, error) {
	switch cfg.Format {
	case "", "minify", "indent":
	default:
		return nil, fmt.Errorf("json: unknown format %q", cfg.Format)
	}
	if cfg.Indent == "" {
		cfg.Indent = "  "
	}
	t := &Transformer{cfg: cfg, exts: map[string]bool{}}
	if cfg.Select != "" {
		x, err := jp.ParseString(cfg.Select)
		if err != nil {
			return nil, fmt.Errorf("json: invalid jsonpath %q: %w", cfg.Select, err)
		}
		t.sel = x
	}
	for k := range cfg.Set {
		t.keys = append(t.keys, k)
	}
	sort.Strings(t.keys)
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".json"}
	}
	for _, e := range cfg.Extensions {
		t.exts[e] = true
	}
	return t, nil
}

func (t *Transformer) Transform(_ context.Context, f *record.File) ([]*record.File, error) {
	if f.Contents == nil || !t.exts[path.Ext(f.Path)] {
		return []*record.File{f}, nil
	}
	doc := f.Contents
	if !gjson.ValidBytes(doc) {
		return nil, ErrInvalidJSON
	}

	if t.sel != nil {
		v, err := oj.Parse(doc)
		if err != nil {
			return nil, err
		}
		res := t.sel.Get(v)
		var picked any = res
		if len(res) == 1 {
			picked = res[0]
		}
		doc = []byte(oj.JSON(picked, &oj.Options{Sort: true}))
	}

	var err error
	for _, k := range t.keys {
		if doc, err = sjson.SetBytes(doc, k, t.cfg.Set[k]); err != nil {
			return nil, fmt.Errorf("set %s: %w", k, err)
		}
	}
	for _, k := range t.cfg.Delete {
		if doc, err = sjson.DeleteBytes(doc, k); err != nil {
			return nil, fmt.Errorf("delete %s: %w", k, err)
		}
	}

	switch t.cfg.Format {
	case "minify":
		doc = pretty.Ugly(doc)
	case "indent":
		doc = pretty.PrettyOptions(doc, &pretty.Options{Width: 80, Indent: t.cfg.Indent})
	}
	f.Contents = doc
	return []*record.File{f}, nil
}
