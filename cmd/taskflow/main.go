// Command taskflow runs tasks declared in a taskfile.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"taskflow/internal/engine"
	"taskflow/internal/scheduler"
	"taskflow/internal/task"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	var (
		ce *engine.ConfigError
		ue *task.UnknownTaskError
		cy *task.CyclicDependencyError
		te *scheduler.TaskError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &te):
		return exitFailed
	case errors.As(err, &ce), errors.As(err, &ue), errors.As(err, &cy):
		return exitConfig
	default:
		return exitFailed
	}
}
