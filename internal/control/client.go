package control

import (
	"context"
	"fmt"
	"time"
)

// Send delivers one command token to a running agent. No reply is expected.
func Send(ctx context.Context, endpoint string, sig Signal) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	conn, err := dial(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("%w: failed to connect to agent at %s: %v", ErrChannelUnavailable, endpoint, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := fmt.Fprintln(conn, sig.String()); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	return nil
}
