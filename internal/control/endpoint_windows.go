//go:build windows

package control

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

func listen(endpoint string) (net.Listener, error) {
	return winio.ListenPipe(endpoint, &winio.PipeConfig{
		MessageMode:      true,
		InputBufferSize:  maxTokenSize,
		OutputBufferSize: maxTokenSize,
	})
}

func dial(ctx context.Context, endpoint string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, endpoint)
}
