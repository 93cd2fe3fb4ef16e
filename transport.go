package httpconn

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// SystemVTable is a process-wide dispatch table: two entries indirecting
// over the real transport-dial primitives, so that tests can inject a fake
// transport. Production code should prefer passing a *SystemVTable through
// ClientOptions.VTable explicitly, since hidden process-wide state is
// hard to reason about under concurrent callers; the package-level default
// (CurrentSystemVTable) exists only as a convenience for callers that don't
// need to override it.
type SystemVTable struct {
	// NewSocketChannel dials a plaintext TCP connection.
	NewSocketChannel func(ctx context.Context, host string, port uint16, opts SocketOptions) (net.Conn, error)

	// NewTLSSocketChannel dials a TCP connection and performs a TLS
	// handshake over it, returning the *tls.Conn, whose negotiated ALPN
	// protocol newClientChannel reads back through tlsALPNHandler below.
	NewTLSSocketChannel func(ctx context.Context, host string, port uint16, opts SocketOptions, tlsOpts *TLSOptions) (net.Conn, error)
}

var systemVTable atomic.Pointer[SystemVTable]

func init() {
	systemVTable.Store(&SystemVTable{
		NewSocketChannel:    dialPlaintext,
		NewTLSSocketChannel: dialTLS,
	})
}

// CurrentSystemVTable returns the process-wide dispatch table.
func CurrentSystemVTable() *SystemVTable {
	return systemVTable.Load()
}

// SetSystemVTable atomically replaces the process-wide dispatch table with
// vtable, in a single pointer write. It is intended to be called once,
// before starting the system under test; no synchronization is provided
// beyond the atomic pointer swap itself.
func SetSystemVTable(vtable *SystemVTable) {
	systemVTable.Store(vtable)
}

// SocketOptions is the set of knobs that matter for a TCP dial.
type SocketOptions struct {
	// ConnectTimeout bounds how long the dial itself may take. Zero means no
	// explicit timeout beyond the context passed to Connect.
	ConnectTimeout time.Duration
	// KeepAlive sets the TCP keep-alive period. Zero uses the OS default.
	KeepAlive time.Duration
}

// TLSOptions is the handshake configuration, plus the ALPN protocol list
// this package advertises.
type TLSOptions struct {
	Config *tls.Config
}

func (o *TLSOptions) effectiveConfig() *tls.Config {
	var cfg *tls.Config
	if o != nil && o.Config != nil {
		cfg = o.Config.Clone()
	} else {
		cfg = &tls.Config{}
	}
	if cfg.NextProtos == nil {
		cfg.NextProtos = []string{string(alpnH2), string(alpnHTTP11)}
	}
	return cfg
}

func dialPlaintext(ctx context.Context, host string, port uint16, opts SocketOptions) (net.Conn, error) {
	d := &net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: opts.KeepAlive}
	return d.DialContext(ctx, "tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
}

func dialTLS(ctx context.Context, host string, port uint16, opts SocketOptions, tlsOpts *TLSOptions) (net.Conn, error) {
	conn, err := dialPlaintext(ctx, host, port, opts)
	if err != nil {
		return nil, err
	}
	cfg := tlsOpts.effectiveConfig()
	if cfg.ServerName == "" {
		cfg = cfg.Clone()
		cfg.ServerName = host
	}
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// tlsALPNHandler adapts a *tls.Conn into the ALPNReporter interface alpn.go
// queries, standing in for the out-of-scope "TLS channel handler"
// collaborator. It is the Handler bound to the slot immediately upstream of
// the one the channel-stage installer inserts.
type tlsALPNHandler struct {
	conn *tls.Conn
}

func (h *tlsALPNHandler) NegotiatedProtocol() []byte {
	return []byte(h.conn.ConnectionState().NegotiatedProtocol)
}

func (h *tlsALPNHandler) OnChannelShutdown() {}
