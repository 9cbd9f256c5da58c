package sink

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-viper/mapstructure/v2"

	"taskflow/internal/record"
)

// Env is what a run hands every sink: the workspace filesystem and the
// stream used for human-readable output.
type Env struct {
	FS  billy.Filesystem
	Out io.Writer
}

// Adapter is the common behaviour every sink exposes.
type Adapter interface {
	Configure(env Env, opts map[string]any) error // driver options ⇒ struct
	Push(ctx context.Context, f *record.File) error
	Close() error // idempotent
}

// SinkError carries the sink kind and the record that failed to write.
type SinkError struct {
	Sink string
	Path string
	Err  error
}

func (e *SinkError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
	}
	return fmt.Sprintf("sink %s: %s: %v", e.Sink, e.Path, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// Decode maps sink options onto a driver's config struct using its yaml tags.
func Decode(opts map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(opts)
}

/*──────── registry ───────*/

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}

// Kinds lists registered sink kinds.
func Kinds() []string {
	out := make([]string, 0, len(reg))
	for k := range reg {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
