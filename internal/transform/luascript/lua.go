// Package luascript runs a user-supplied Lua function on every record.
//
// The function receives a table {path, base, relative, contents, attrs} and
// returns nil to drop the record, one such table, or a list of them. Missing
// fields default to the input's. Only the base, table, string and math
// libraries are available.
package luascript

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"taskflow/internal/record"
	"taskflow/internal/transform"
)

type Config struct {
	Script   string        `opt:"script"`
	Function string        `opt:"function"`
	Timeout  time.Duration `opt:"timeout"`
}

type Script struct {
	cfg Config

	mu sync.Mutex
	L  *lua.LState
}

func init() {
	transform.Register("lua", func(opts map[string]any) (transform.Transformer, error) {
		var cfg Config
		if err := transform.Decode(opts, &cfg); err != nil {
			return nil, err
		}
		return New(cfg)
	})
}

// New compiles cfg.Script in a fresh sandboxed state.
func New(cfg Config) (*Script, error) {
	if cfg.Script == "" {
		return nil, errors.New("lua: script is required")
	}
	if cfg.Function == "" {
		cfg.Function = "transform"
	}
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	if err := L.DoString(cfg.Script); err != nil {
		L.Close()
		return nil, fmt.Errorf("lua: %w", err)
	}
	if fn := L.GetGlobal(cfg.Function); fn.Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("lua: global %q is not a function (got %s)", cfg.Function, fn.Type())
	}
	return &Script{cfg: cfg, L: L}, nil
}

func (s *Script) Transform(ctx context.Context, f *record.File) ([]*record.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	err := s.L.CallByParam(lua.P{
		Fn:      s.L.GetGlobal(s.cfg.Function),
		NRet:    1,
		Protect: true,
	}, s.toTable(f))
	if err != nil {
		return nil, err
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)

	switch v := ret.(type) {
	case *lua.LNilType:
		return nil, nil
	case *lua.LTable:
		if v.RawGetString("path") == lua.LNil && v.Len() > 0 {
			var out []*record.File
			for i := 1; i <= v.Len(); i++ {
				t, ok := v.RawGetInt(i).(*lua.LTable)
				if !ok {
					return nil, fmt.Errorf("lua: result[%d] is %s, want table", i, v.RawGetInt(i).Type())
				}
				rf, err := fromTable(t, f)
				if err != nil {
					return nil, err
				}
				out = append(out, rf)
			}
			return out, nil
		}
		rf, err := fromTable(v, f)
		if err != nil {
			return nil, err
		}
		return []*record.File{rf}, nil
	default:
		return nil, fmt.Errorf("lua: %s returned %s", s.cfg.Function, ret.Type())
	}
}

func (s *Script) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L != nil {
		s.L.Close()
		s.L = nil
	}
	return nil
}

func (s *Script) toTable(f *record.File) *lua.LTable {
	t := s.L.NewTable()
	t.RawSetString("path", lua.LString(f.Path))
	t.RawSetString("base", lua.LString(f.Base))
	t.RawSetString("relative", lua.LString(f.Relative()))
	if f.Contents != nil {
		t.RawSetString("contents", lua.LString(f.Contents))
	}
	attrs := s.L.NewTable()
	for k, v := range f.Attrs {
		attrs.RawSetString(k, lua.LString(v))
	}
	t.RawSetString("attrs", attrs)
	return t
}

func fromTable(t *lua.LTable, in *record.File) (*record.File, error) {
	base := in.Base
	if v, ok := t.RawGetString("base").(lua.LString); ok {
		base = string(v)
	}
	p := in.Path
	if v, ok := t.RawGetString("path").(lua.LString); ok {
		p = string(v)
	}
	contents := in.Contents
	if v, ok := t.RawGetString("contents").(lua.LString); ok {
		contents = []byte(string(v))
	}
	out, err := record.New(base, p, contents)
	if err != nil {
		return nil, err
	}
	out.Mode, out.ModTime = in.Mode, in.ModTime
	if rel, ok := t.RawGetString("relative").(lua.LString); ok && string(rel) != in.Relative() {
		out.SetRelative(string(rel))
	}
	if attrs, ok := t.RawGetString("attrs").(*lua.LTable); ok {
		attrs.ForEach(func(k, v lua.LValue) {
			out.SetAttr(k.String(), v.String())
		})
	}
	return out, nil
}
