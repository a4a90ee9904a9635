//go:build !windows

package control

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
)

func listen(endpoint string) (net.Listener, error) {
	// a socket file left behind by a crashed agent blocks the bind
	if fi, err := os.Lstat(endpoint); err == nil && fi.Mode()&os.ModeSocket != 0 {
		if conn, err := net.Dial("unix", endpoint); err == nil {
			conn.Close()
			return nil, &net.OpError{Op: "listen", Net: "unix", Err: os.ErrExist}
		}
		if err := os.Remove(endpoint); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale socket: %w", err)
		}
		slog.Debug("Removed stale control socket", "endpoint", endpoint)
	}

	ln, err := net.Listen("unix", endpoint)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(endpoint, 0600); err != nil {
		slog.Debug("Failed to restrict control socket permissions", "endpoint", endpoint, "error", err)
	}
	return ln, nil
}

func dial(ctx context.Context, endpoint string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", endpoint)
}
