package httpconn

import (
	"context"
	"crypto/tls"
	"net"
)

type tlsListener struct {
	Socket    StreamSocket
	TLSConfig *tls.Config
}

// TLS returns a StreamSocket for the given TCP address that adds TLS layer
// to the accepted connections.
//
// If NextProtos is not set, it defaults to advertising both "h2" and
// "http/1.1" so that resolveVersion (alpn.go) has something to dispatch on.
func TLS(address string, c *tls.Config) StreamSocket {
	return &tlsListener{
		Socket:    TCP(address),
		TLSConfig: defaultNextProtosH2(c),
	}
}

func (l *tlsListener) Listen(ctx context.Context) (net.Listener, error) {
	ln, err := l.Socket.Listen(ctx)
	if err != nil {
		return nil, err
	}
	return tls.NewListener(ln, l.TLSConfig), nil
}

// defaultNextProtosH2 returns a TLS configuration advertising both ALPN
// protocols this package's variantRegistry knows how to dispatch, "h2"
// preferred over "http/1.1", unless the caller already set NextProtos.
func defaultNextProtosH2(c *tls.Config) *tls.Config {
	if c.NextProtos != nil {
		return c
	}
	c = c.Clone()
	c.NextProtos = []string{string(alpnH2), string(alpnHTTP11)}
	return c
}
