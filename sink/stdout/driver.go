package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"taskflow/internal/record"
	"taskflow/sink"
)

/* ────────── public config ────────── */
type Config struct {
	DelayMS      int  `yaml:"delay_ms"`      // artificial per-record delay
	PrintCounter bool `yaml:"print_counter"` // prepend seq#
	Contents     bool `yaml:"contents"`      // dump contents after the header line
	MaxBytes     int  `yaml:"max_bytes"`     // 0 = no limit
}

/* ────────── driver ────────── */
type driver struct {
	cfg Config
	out io.Writer
}

var seq uint64

/* ────────── sink.Adapter ────────── */
func (d *driver) Configure(env sink.Env, opts map[string]any) error {
	if err := sink.Decode(opts, &d.cfg); err != nil {
		return fmt.Errorf("stdout-sink: %w", err)
	}
	d.out = env.Out
	if d.out == nil {
		d.out = os.Stdout
	}
	return nil
}

func (d *driver) Push(ctx context.Context, f *record.File) error {
	if d.cfg.DelayMS > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(d.cfg.DelayMS) * time.Millisecond):
		}
	}

	size := "-"
	if f.Contents != nil {
		size = humanize.Bytes(uint64(len(f.Contents)))
	}
	var err error
	if d.cfg.PrintCounter {
		_, err = fmt.Fprintf(d.out, "[sink %06d] %s (%s)\n", atomic.AddUint64(&seq, 1), f.Path, size)
	} else {
		_, err = fmt.Fprintf(d.out, "%s (%s)\n", f.Path, size)
	}
	if err != nil || !d.cfg.Contents || f.Contents == nil {
		return err
	}

	body := f.Contents
	if d.cfg.MaxBytes > 0 && len(body) > d.cfg.MaxBytes {
		body = body[:d.cfg.MaxBytes]
	}
	if _, err := d.out.Write(body); err != nil {
		return err
	}
	if len(body) < len(f.Contents) {
		_, err = fmt.Fprintf(d.out, "\n… %s more\n", humanize.Bytes(uint64(len(f.Contents)-len(body))))
	} else if len(body) == 0 || body[len(body)-1] != '\n' {
		_, err = io.WriteString(d.out, "\n")
	}
	return err
}

func (d *driver) Close() error { return nil }

/* ────────── auto-register ────────── */
func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
