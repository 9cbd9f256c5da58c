// Package concat joins every record of a run into one file.
package concat

import (
	"bytes"
	"context"
	"errors"
	"strconv"

	"taskflow/internal/record"
	"taskflow/internal/transform"
)

type Config struct {
	File      string  `opt:"file"`
	Separator *string `opt:"separator"`
}

type Concat struct {
	cfg   Config
	sep   []byte
	base  string
	buf   bytes.Buffer
	count int
}

func init() {
	transform.Register("concat", func(opts map[string]any) (transform.Transformer, error) {
		var cfg Config
		if err := transform.Decode(opts, &cfg); err != nil {
			return nil, err
		}
		return New(cfg)
	})
}

func New(cfg Config) (*Concat, error) {
	if cfg.File == "" {
		return nil, errors.New("concat: file is required")
	}
	sep := "\n"
	if cfg.Separator != nil {
		sep = *cfg.Separator
	}
	return &Concat{cfg: cfg, sep: []byte(sep)}, nil
}

// Transform buffers f; nothing is emitted until Flush.
func (c *Concat) Transform(_ context.Context, f *record.File) ([]*record.File, error) {
	if f.IsDir() {
		return nil, nil
	}
	if c.count == 0 {
		c.base = f.Base
	} else {
		c.buf.Write(c.sep)
	}
	c.buf.Write(f.Contents)
	c.count++
	return nil, nil
}

func (c *Concat) Flush(context.Context) ([]*record.File, error) {
	if c.count == 0 {
		return nil, nil
	}
	out := &record.File{Base: c.base, Mode: 0o644, Contents: append([]byte(nil), c.buf.Bytes()...)}
	out.SetRelative(c.cfg.File)
	out.SetAttr("concat.count", strconv.Itoa(c.count))
	return []*record.File{out}, nil
}

