package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// maxTokenSize bounds a single command token, matching the pipe buffer size.
const maxTokenSize = 64 * 1024

// Listener binds the control endpoint and forwards every recognized command
// token into a Setter. Clients may keep the connection open and send any
// number of commands.
type Listener struct {
	endpoint string
	backoff  time.Duration
	sink     Setter
}

func NewListener(endpoint string, backoff time.Duration, sink Setter) *Listener {
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Listener{
		endpoint: endpoint,
		backoff:  backoff,
		sink:     sink,
	}
}

// Run serves until ctx is cancelled. Transport failures never escape: the
// endpoint is re-bound after the backoff.
func (l *Listener) Run(ctx context.Context) {
	slog.Info("Control listener starting", "endpoint", l.endpoint)
	for {
		if ctx.Err() != nil {
			slog.Info("Control listener stopped", "endpoint", l.endpoint)
			return
		}

		ln, err := listen(l.endpoint)
		if err != nil {
			slog.Warn("Control endpoint not available, retrying",
				"endpoint", l.endpoint,
				"backoff", l.backoff,
				"error", fmt.Errorf("%w: %v", ErrChannelUnavailable, err))
			l.wait(ctx)
			continue
		}

		if err := l.serve(ctx, ln); err != nil {
			slog.Warn("Control endpoint failed, re-binding",
				"endpoint", l.endpoint,
				"error", fmt.Errorf("%w: %v", ErrChannelUnavailable, err))
			l.wait(ctx)
		}
	}
}

func (l *Listener) wait(ctx context.Context) {
	timer := time.NewTimer(l.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// serve accepts connections until ctx is done (nil) or accept fails. Each
// client is served on its own goroutine for as long as it keeps the
// connection open, so one idle controller never holds back another.
func (l *Listener) serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	context.AfterFunc(ctx, func() { ln.Close() })

	slog.Debug("Control endpoint bound", "endpoint", l.endpoint)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			l.handleConn(ctx, conn)
		}()
	}
}

// handleConn applies every token as soon as it is read and keeps reading
// until the client disconnects.
func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 1024), maxTokenSize)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		l.apply(scanner.Text())
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		slog.Debug("Control connection read error", "error", err)
	}
}

func (l *Listener) apply(token string) {
	sig, err := ParseSignal(token)
	if err != nil {
		slog.Warn("Ignoring control message", "error", err)
		return
	}
	slog.Info("Control command received", "command", sig.String())
	l.sink.Set(sig)
}
