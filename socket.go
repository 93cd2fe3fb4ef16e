package httpconn

import (
	"context"
	"net"
)

// StreamSocket provides a listener for stream-oriented network connections.
// It is the server listener's transport-construction collaborator: the
// endpoint and socket options a Server is built from.
type StreamSocket interface {
	Listen(ctx context.Context) (net.Listener, error)
}

type tcpSocket struct {
	address string
}

// TCP returns a StreamSocket for the given TCP address.
func TCP(address string) StreamSocket {
	return &tcpSocket{address}
}

func (l *tcpSocket) Listen(ctx context.Context) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", l.address)
}
