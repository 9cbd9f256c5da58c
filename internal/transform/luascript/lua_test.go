package luascript

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/internal/record"
	"taskflow/internal/transform"
)

func input(t *testing.T) *record.File {
	t.Helper()
	f, err := record.New("src", "src/app.js", []byte("hello"))
	require.NoError(t, err)
	return f
}

func TestUpperAndRename(t *testing.T) {
	tr, err := transform.New("lua", map[string]any{"script": `
function transform(f)
  f.contents = string.upper(f.contents)
  f.relative = "app.min.js"
  f.attrs.minified = "yes"
  return f
end`})
	require.NoError(t, err)
	defer tr.(*Script).Close()

	out, err := tr.Transform(context.Background(), input(t))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "HELLO", string(out[0].Contents))
	assert.Equal(t, "src/app.min.js", out[0].Path)
	assert.Equal(t, "yes", out[0].Attrs["minified"])
}

func TestDropAndFanout(t *testing.T) {
	drop, err := New(Config{Script: `function transform(f) return nil end`})
	require.NoError(t, err)
	defer drop.Close()
	out, err := drop.Transform(context.Background(), input(t))
	require.NoError(t, err)
	assert.Empty(t, out)

	fan, err := New(Config{Script: `
function transform(f)
  return { f, { path = f.path .. ".map", contents = "{}" } }
end`})
	require.NoError(t, err)
	defer fan.Close()
	out, err = fan.Transform(context.Background(), input(t))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "src/app.js.map", out[1].Path)
	assert.Equal(t, "{}", string(out[1].Contents))
}

func TestSandboxAndErrors(t *testing.T) {
	s, err := New(Config{Script: `function transform(f) return os.getenv("HOME") end`})
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Transform(context.Background(), input(t))
	assert.Error(t, err)

	_, err = New(Config{Script: `x = 1`})
	assert.Error(t, err)

	_, err = New(Config{})
	assert.Error(t, err)
}

func TestTimeout(t *testing.T) {
	s, err := New(Config{Script: `function transform(f) while true do end end`, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Transform(context.Background(), input(t))
	assert.Error(t, err)
}
