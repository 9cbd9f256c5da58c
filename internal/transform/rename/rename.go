// Package rename rewrites record paths relative to their base.
//
// A relative path is split into dirname, basename and extname
// ("js/app.min.js" -> "js", "app.min", ".js"); each option replaces or
// decorates one part.
package rename

import (
	"context"
	"path"
	"strings"

	"taskflow/internal/record"
	"taskflow/internal/transform"
)

type Config struct {
	Dirname  *string `opt:"dirname"`
	Basename *string `opt:"basename"`
	Extname  *string `opt:"extname"`
	Prefix   string  `opt:"prefix"`
	Suffix   string  `opt:"suffix"`
}

type Renamer struct{ cfg Config }

func init() {
	transform.Register("rename", func(opts map[string]any) (transform.Transformer, error) {
		var cfg Config
		if err := transform.Decode(opts, &cfg); err != nil {
			return nil, err
		}
		return &Renamer{cfg: cfg}, nil
	})
}

func (r *Renamer) Transform(_ context.Context, f *record.File) ([]*record.File, error) {
	f.SetRelative(r.Apply(f.Relative()))
	return []*record.File{f}, nil
}

// Apply renames one relative path.
func (r *Renamer) Apply(rel string) string {
	dir, file := path.Split(rel)
	ext := path.Ext(file)
	base := strings.TrimSuffix(file, ext)

	if r.cfg.Dirname != nil {
		dir = *r.cfg.Dirname
	}
	if r.cfg.Basename != nil {
		base = *r.cfg.Basename
	}
	if r.cfg.Extname != nil {
		ext = *r.cfg.Extname
	}
	return path.Join(dir, r.cfg.Prefix+base+r.cfg.Suffix+ext)
}
