// Package action provides the task.Action shapes a taskfile can declare.
package action

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"taskflow/internal/logging"
	"taskflow/internal/pipeline"
	"taskflow/internal/process"
)

// Pipeline runs a compiled file pipeline.
type Pipeline struct {
	Runner *pipeline.Runner
}

func (p *Pipeline) Run(ctx context.Context) error {
	st, err := p.Runner.Run(ctx)
	logging.L().Info("pipeline done", "task", p.Runner.Task, "in", st.In, "out", st.Out)
	return err
}

// Group does nothing; it exists so aggregation tasks have an action.
type Group struct{}

func (Group) Run(context.Context) error { return nil }

// DefaultGrace is how long Exec waits after SIGTERM before SIGKILL.
const DefaultGrace = 5 * time.Second

// Exec runs an external command. The task completes when the process exits.
type Exec struct {
	Name    string
	Command []string
	Dir     string
	Env     map[string]string
	Timeout time.Duration
	Grace   time.Duration
	// FailOnError false logs a non-zero exit as a warning instead of
	// failing the task.
	FailOnError bool

	Stdout io.Writer
	Stderr io.Writer
}

// ExitError reports a command that ran and exited unsuccessfully.
type ExitError struct {
	Command string
	Code    int
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %v", e.Command, e.Code, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

func (e *Exec) Run(ctx context.Context) error {
	if len(e.Command) == 0 {
		return fmt.Errorf("exec %s: empty command", e.Name)
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	grace := e.Grace
	if grace == 0 {
		grace = DefaultGrace
	}

	cmd := exec.Command(e.Command[0], e.Command[1:]...)
	cmd.Dir = e.Dir
	cmd.Env = e.environ()
	cmd.Stdout, cmd.Stderr = e.Stdout, e.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	log := logging.L().With("task", e.Name, "cmd", e.Command[0])
	p := process.New(e.Name, cmd)
	if err := p.Start(); err != nil {
		return err
	}
	defer func() {
		if err := p.StopGroup(grace); err != nil {
			log.Error("stopping process group", "err", err)
		}
	}()
	log.Debug("process started", "pid", p.PID())

	select {
	case <-p.Done():
	case <-ctx.Done():
		log.Warn("stopping process", "pid", p.PID(), "reason", ctx.Err())
		return ctx.Err()
	}

	log.Debug("process exited", "code", p.ExitCode(), "took", humanize.RelTime(p.Started, time.Now(), "", ""))
	if err := p.ExitError(); err != nil {
		xe := &ExitError{Command: e.Command[0], Code: p.ExitCode(), Err: err}
		if !e.FailOnError {
			log.Warn("command failed, continuing", "err", xe)
			return nil
		}
		return xe
	}
	return nil
}

func (e *Exec) environ() []string {
	env := os.Environ()
	keys := make([]string, 0, len(e.Env))
	for k := range e.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+e.Env[k])
	}
	return env
}
