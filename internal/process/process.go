// Package process manages external child processes started by tasks.
//
// Each process runs in its own process group so that Stop reaches whatever
// the command spawned (shells, test runners, browsers).
package process

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// State represents the state of a process.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateExited
	StateKilled // ended by a signal
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

var (
	ErrNotStarted     = errors.New("process not started")
	ErrAlreadyStarted = errors.New("process already started")
)

// Process wraps an exec.Cmd with lifecycle management and exit tracking.
// It is safe for concurrent use.
type Process struct {
	Name    string
	Cmd     *exec.Cmd
	Started time.Time

	done     chan struct{}
	state    atomic.Int32
	exitCode atomic.Int32

	mu      sync.RWMutex
	exitErr error
}

// New wraps cmd, which must not have been started.
func New(name string, cmd *exec.Cmd) *Process {
	setGroup(cmd)
	p := &Process{Name: name, Cmd: cmd, done: make(chan struct{})}
	p.state.Store(int32(StateCreated))
	p.exitCode.Store(-1)
	return p
}

func (p *Process) Start() error {
	if !p.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	if err := p.Cmd.Start(); err != nil {
		p.state.Store(int32(StateExited))
		close(p.done)
		return fmt.Errorf("start %s: %w", p.Name, err)
	}
	p.Started = time.Now()
	go p.wait()
	return nil
}

func (p *Process) wait() {
	err := p.Cmd.Wait()

	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()

	code, state := 0, StateExited
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
			if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				state = StateKilled
			}
		} else {
			code = -1
		}
	}
	p.exitCode.Store(int32(code))
	p.state.Store(int32(state))
	close(p.done)
}

func (p *Process) State() State { return State(p.state.Load()) }

// ExitCode is -1 until the process has exited, and for signal deaths.
func (p *Process) ExitCode() int { return int(p.exitCode.Load()) }

// ExitError is the error from Wait, nil on a clean exit.
func (p *Process) ExitError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// Done is closed when the process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

func (p *Process) HasExited() bool {
	s := p.State()
	return s == StateExited || s == StateKilled
}

func (p *Process) PID() int {
	if p.Cmd.Process == nil {
		return -1
	}
	return p.Cmd.Process.Pid
}

// Terminate sends SIGTERM to the process group.
func (p *Process) Terminate() error { return p.signal(syscall.SIGTERM) }

// Kill sends SIGKILL to the process group.
func (p *Process) Kill() error { return p.signal(syscall.SIGKILL) }

func (p *Process) signal(sig syscall.Signal) error {
	if p.State() != StateRunning || p.Cmd.Process == nil {
		return ErrNotStarted
	}
	return signalGroup(p.Cmd.Process, sig)
}

// Stop terminates the process, escalating to Kill after grace, and waits
// for it to exit. Stopping an exited process is a no-op.
func (p *Process) Stop(grace time.Duration) error {
	if p.State() == StateCreated {
		return nil
	}
	if p.HasExited() {
		return nil
	}
	if grace <= 0 {
		_ = p.Kill()
		<-p.done
		return nil
	}
	_ = p.Terminate()
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-p.done:
		return nil
	case <-t.C:
	}
	if err := p.Kill(); err != nil && !p.HasExited() {
		return err
	}
	<-p.done
	return nil
}

// StopGroup stops the process like Stop, then terminates whatever is left
// in its process group: children the command put in the background
// outlive the leader otherwise. Members still present after grace are
// killed.
func (p *Process) StopGroup(grace time.Duration) error {
	if err := p.Stop(grace); err != nil {
		return err
	}
	if p.Cmd.Process == nil {
		return nil
	}
	pgid := p.Cmd.Process.Pid
	if !groupAlive(pgid) {
		return nil
	}
	if grace > 0 {
		_ = killGroup(pgid, syscall.SIGTERM)
		deadline := time.Now().Add(grace)
		for time.Now().Before(deadline) {
			if !groupAlive(pgid) {
				return nil
			}
			time.Sleep(groupPoll)
		}
	}
	return killGroup(pgid, syscall.SIGKILL)
}

const groupPoll = 20 * time.Millisecond
