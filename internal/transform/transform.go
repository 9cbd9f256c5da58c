package transform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"

	"taskflow/internal/record"
)

// Transformer consumes one record and returns zero, one or many records.
type Transformer interface {
	Transform(ctx context.Context, f *record.File) ([]*record.File, error)
}

// Flusher is implemented by stages that hold records back until the
// upstream stream ends (aggregators, reporters).
type Flusher interface {
	Flush(ctx context.Context) ([]*record.File, error)
}

// Func adapts a plain function to Transformer.
type Func func(ctx context.Context, f *record.File) ([]*record.File, error)

func (fn Func) Transform(ctx context.Context, f *record.File) ([]*record.File, error) {
	return fn(ctx, f)
}

// Factory builds a fresh Transformer from stage options.
type Factory func(opts map[string]any) (Transformer, error)

var (
	regMu    sync.RWMutex
	registry = map[string]Factory{}
)

// Register is called from each plugin's init().
func Register(name string, f Factory) {
	regMu.Lock()
	registry[name] = f
	regMu.Unlock()
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// New builds a Transformer by type name.
func New(name string, opts map[string]any) (Transformer, error) {
	f, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("transform: unknown type %q", name)
	}
	return f(opts)
}

// Types lists registered type names.
func Types() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Decode maps stage options onto a plugin's config struct. Unknown keys are
// rejected so typos surface when the taskfile is compiled.
func Decode(opts map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "opt",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(opts)
}
