//go:build unix

package supervisor

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func processState(t *testing.T, pid int) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		t.Skipf("procfs not available: %v", err)
	}
	// pid (comm) state ...
	fields := strings.Fields(string(data[strings.LastIndexByte(string(data), ')')+1:]))
	return fields[0]
}

func TestSpawn_MissingExecutable(t *testing.T) {
	_, err := New(time.Second).Spawn([]string{"/definitely/not/ffmpeg"}, nil)
	assert.ErrorIs(t, err, ErrSpawn)
}

func TestSpawn_EmptyCommandLine(t *testing.T) {
	_, err := New(time.Second).Spawn(nil, nil)
	assert.ErrorIs(t, err, ErrSpawn)
}

func TestTerminate_GracefulAndIdempotent(t *testing.T) {
	h, err := New(5*time.Second).Spawn([]string{"sleep", "30"}, nil)
	require.NoError(t, err)
	assert.False(t, h.Exited())
	assert.Positive(t, h.Pid())

	start := time.Now()
	require.NoError(t, h.Terminate())
	assert.Less(t, time.Since(start), 5*time.Second, "interrupt should stop sleep before the kill timeout")
	assert.True(t, h.Exited())

	require.NoError(t, h.Terminate(), "second terminate must succeed")
}

func TestTerminate_KillsAfterTimeout(t *testing.T) {
	h, err := New(200*time.Millisecond).Spawn([]string{"sh", "-c", `trap "" INT; exec sleep 30`}, nil)
	require.NoError(t, err)

	// give the shell time to install the trap
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	require.NoError(t, h.Terminate())
	assert.True(t, h.Exited())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTerminate_AlreadyExited(t *testing.T) {
	h, err := New(time.Second).Spawn([]string{"true"}, nil)
	require.NoError(t, err)

	require.Eventually(t, h.Exited, 5*time.Second, 10*time.Millisecond)
	assert.NoError(t, h.Terminate())
	assert.NoError(t, h.ExitError())
}

func TestExitError_ReportsFailure(t *testing.T) {
	h, err := New(time.Second).Spawn([]string{"sh", "-c", "exit 3"}, nil)
	require.NoError(t, err)

	require.Eventually(t, h.Exited, 5*time.Second, 10*time.Millisecond)
	require.Error(t, h.ExitError())
	assert.Contains(t, h.ExitError().Error(), "exit status 3")
}

func TestExitError_NilWhileRunning(t *testing.T) {
	h, err := New(time.Second).Spawn([]string{"sleep", "30"}, nil)
	require.NoError(t, err)
	defer h.Terminate()

	assert.NoError(t, h.ExitError())
}

func TestSuspendResume(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("process state is read from procfs")
	}

	h, err := New(5*time.Second).Spawn([]string{"sleep", "30"}, nil)
	require.NoError(t, err)
	defer h.Terminate()

	require.NoError(t, h.Suspend())
	require.Eventually(t, func() bool { return processState(t, h.Pid()) == "T" }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, h.Suspend(), "suspending twice is a no-op")

	require.NoError(t, h.Resume())
	require.Eventually(t, func() bool { return processState(t, h.Pid()) != "T" }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, h.Resume(), "resuming a running process is a no-op")
}

func TestTerminate_WhileSuspended(t *testing.T) {
	h, err := New(5*time.Second).Spawn([]string{"sleep", "30"}, nil)
	require.NoError(t, err)

	require.NoError(t, h.Suspend())
	start := time.Now()
	require.NoError(t, h.Terminate())
	assert.True(t, h.Exited())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSuspend_AfterExit(t *testing.T) {
	h, err := New(time.Second).Spawn([]string{"true"}, nil)
	require.NoError(t, err)
	require.Eventually(t, h.Exited, 5*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, h.Suspend(), ErrProcessExited)
	assert.ErrorIs(t, h.Resume(), ErrProcessExited)
}

func TestSpawn_PassesEnvironment(t *testing.T) {
	out := filepath.Join(t.TempDir(), "env.txt")
	h, err := New(time.Second).Spawn([]string{"sh", "-c", `printf %s "$GHOSTREC_TEST" > "$OUT"`},
		[]string{"GHOSTREC_TEST=hello", "OUT=" + out})
	require.NoError(t, err)
	require.Eventually(t, h.Exited, 5*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestLineLogger_SplitsLines(t *testing.T) {
	l := newLineLogger("ffmpeg", "stderr")
	n, err := l.Write([]byte("frame=1\rframe=2\npartial"))
	require.NoError(t, err)
	assert.Equal(t, 23, n)
	assert.Equal(t, "partial", string(l.buf))
}
