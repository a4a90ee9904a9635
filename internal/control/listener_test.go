//go:build !windows

package control

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startListener(t *testing.T, endpoint string, backoff time.Duration) *Mailbox {
	t.Helper()

	mailbox := NewMailbox()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewListener(endpoint, backoff, mailbox).Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("listener did not stop")
		}
	})
	return mailbox
}

func sendEventually(t *testing.T, endpoint string, sig Signal) {
	t.Helper()
	require.Eventually(t, func() bool {
		return Send(context.Background(), endpoint, sig) == nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestListener_ForwardsCommands(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "ctl.sock")
	mailbox := startListener(t, endpoint, 50*time.Millisecond)

	sendEventually(t, endpoint, Start)
	require.Eventually(t, func() bool { return mailbox.IsSet(Start) }, 2*time.Second, 10*time.Millisecond)

	// sequential clients are all served
	require.NoError(t, Send(context.Background(), endpoint, Pause))
	require.NoError(t, Send(context.Background(), endpoint, Exit))
	require.Eventually(t, func() bool {
		return mailbox.IsSet(Pause) && mailbox.IsSet(Exit)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestListener_RawTokensAndUnknownCommands(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "ctl.sock")
	mailbox := startListener(t, endpoint, 50*time.Millisecond)

	sendEventually(t, endpoint, Resume)
	require.Eventually(t, func() bool { return mailbox.Take(Resume) }, 2*time.Second, 10*time.Millisecond)

	conn, err := net.Dial("unix", endpoint)
	require.NoError(t, err)
	_, err = conn.Write([]byte("  bogus\r\n STOP  "))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return mailbox.IsSet(Stop) }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []Signal{Stop}, mailbox.Pending())
}

func TestListener_RetriesUntilEndpointAvailable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not-yet")
	endpoint := filepath.Join(dir, "ctl.sock")
	mailbox := startListener(t, endpoint, 20*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	require.Error(t, Send(context.Background(), endpoint, Start))

	require.NoError(t, os.MkdirAll(dir, 0755))
	sendEventually(t, endpoint, Start)
	require.Eventually(t, func() bool { return mailbox.IsSet(Start) }, 2*time.Second, 10*time.Millisecond)
}

func TestListener_ReplacesStaleSocket(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "ctl.sock")

	// leave a socket file behind with nobody listening
	stale, err := net.Listen("unix", endpoint)
	require.NoError(t, err)
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())

	mailbox := startListener(t, endpoint, 20*time.Millisecond)
	sendEventually(t, endpoint, Stop)
	require.Eventually(t, func() bool { return mailbox.IsSet(Stop) }, 2*time.Second, 10*time.Millisecond)
}

func TestSend_NoAgent(t *testing.T) {
	err := Send(context.Background(), filepath.Join(t.TempDir(), "missing.sock"), Start)
	assert.ErrorIs(t, err, ErrChannelUnavailable)
}

func TestListener_PersistentConnection(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "ctl.sock")
	mailbox := startListener(t, endpoint, 20*time.Millisecond)

	var conn net.Conn
	require.Eventually(t, func() bool {
		var err error
		conn, err = net.Dial("unix", endpoint)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	defer conn.Close()

	// each command is applied while the connection stays open
	_, err := conn.Write([]byte("start\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return mailbox.Take(Start) }, time.Second, 10*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	_, err = conn.Write([]byte("stop\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return mailbox.Take(Stop) }, time.Second, 10*time.Millisecond)

	// an idle client does not block others
	require.NoError(t, Send(context.Background(), endpoint, Pause))
	require.Eventually(t, func() bool { return mailbox.IsSet(Pause) }, time.Second, 10*time.Millisecond)

	_, err = conn.Write([]byte("exit"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return mailbox.IsSet(Exit) }, time.Second, 10*time.Millisecond)
}

func TestListener_ClosesClientsOnShutdown(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "ctl.sock")
	mailbox := NewMailbox()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewListener(endpoint, 20*time.Millisecond, mailbox).Run(ctx)
	}()

	var conn net.Conn
	require.Eventually(t, func() bool {
		var err error
		conn, err = net.Dial("unix", endpoint)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	defer conn.Close()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("listener kept running with a client connected")
	}
}

func TestListen_RestrictsSocketPermissions(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "ctl.sock")

	ln, err := listen(endpoint)
	require.NoError(t, err)
	defer ln.Close()

	fi, err := os.Stat(endpoint)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())
}

func TestListen_StaleSocketNotRemovable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions do not apply to root")
	}

	dir := t.TempDir()
	endpoint := filepath.Join(dir, "ctl.sock")
	stale, err := net.Listen("unix", endpoint)
	require.NoError(t, err)
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())

	require.NoError(t, os.Chmod(dir, 0500))
	t.Cleanup(func() { os.Chmod(dir, 0700) })

	_, err = listen(endpoint)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to remove stale socket")
}
