//go:build unix

package process

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCodes(t *testing.T) {
	ok := New("ok", exec.Command("sh", "-c", "exit 0"))
	require.NoError(t, ok.Start())
	<-ok.Done()
	assert.Equal(t, StateExited, ok.State())
	assert.Equal(t, 0, ok.ExitCode())
	assert.NoError(t, ok.ExitError())

	bad := New("bad", exec.Command("sh", "-c", "exit 3"))
	require.NoError(t, bad.Start())
	<-bad.Done()
	assert.Equal(t, 3, bad.ExitCode())
	assert.Error(t, bad.ExitError())

	assert.ErrorIs(t, bad.Start(), ErrAlreadyStarted)
}

func TestStopTerminatesGroup(t *testing.T) {
	p := New("sleeper", exec.Command("sh", "-c", "sleep 30 & wait"))
	require.NoError(t, p.Start())

	start := time.Now()
	require.NoError(t, p.Stop(2*time.Second))
	assert.True(t, p.HasExited())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestStopEscalatesToKill(t *testing.T) {
	p := New("stubborn", exec.Command("sh", "-c", "trap '' TERM; sleep 30"))
	require.NoError(t, p.Start())
	time.Sleep(100 * time.Millisecond) // let the trap install

	require.NoError(t, p.Stop(200*time.Millisecond))
	assert.Equal(t, StateKilled, p.State())
}

func TestStartFailure(t *testing.T) {
	p := New("missing", exec.Command("/definitely/not/here"))
	assert.Error(t, p.Start())
	assert.True(t, p.HasExited())
	assert.NoError(t, p.Stop(time.Second))
}

// processGone reports whether pid has exited; zombies waiting for a reaper
// count as gone.
func processGone(pid int) bool {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return syscall.Kill(pid, 0) != nil
	}
	fields := strings.Fields(string(b[strings.LastIndexByte(string(b), ')')+1:]))
	return len(fields) > 0 && fields[0] == "Z"
}

func TestStopGroupReachesBackgroundChildren(t *testing.T) {
	pidfile := filepath.Join(t.TempDir(), "pid")
	p := New("bg", exec.Command("sh", "-c", "sleep 30 >/dev/null 2>&1 & echo $! > "+pidfile))
	require.NoError(t, p.Start())
	<-p.Done()

	b, err := os.ReadFile(pidfile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	require.NoError(t, err)
	require.False(t, processGone(pid), "background child should outlive the leader")

	require.NoError(t, p.StopGroup(500*time.Millisecond))
	assert.Eventually(t, func() bool { return processGone(pid) }, 2*time.Second, 20*time.Millisecond)
}

func TestStopGroupWithoutSurvivors(t *testing.T) {
	p := New("ok", exec.Command("true"))
	require.NoError(t, p.Start())
	<-p.Done()

	start := time.Now()
	require.NoError(t, p.StopGroup(5*time.Second))
	assert.Less(t, time.Since(start), time.Second)
}
