package httpconn

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"golang.org/x/net/http2"
)

// h2Variant is the HTTP/2 Variant, built on golang.org/x/net/http2.
// defaultVariantRegistry always registers its constructor; a custom registry
// that maps Version2 to a nil constructor models a build without it (see
// protocol.go's variantRegistry.construct). Its Variant methods behave
// identically to h1Variant's in shape.
type h2Variant struct {
	slot     *Slot
	isServer bool

	mu   sync.Mutex
	conn net.Conn
	srv  *http2.Server

	open   int32
	closed sync.Once
}

// newH2Variant is the VariantConstructor for Version2.
func newH2Variant(slot *Slot, isServer bool) (Variant, error) {
	v := &h2Variant{
		slot:     slot,
		isServer: isServer,
		srv:      &http2.Server{},
	}
	atomic.StoreInt32(&v.open, 1)
	return v, nil
}

// Attach binds the underlying net.Conn (already past the TLS handshake that
// negotiated "h2") this variant serves HTTP/2 frames over.
func (v *h2Variant) Attach(conn net.Conn) {
	v.mu.Lock()
	v.conn = conn
	v.mu.Unlock()
}

// ServeConn runs the HTTP/2 connection preface and frame loop via
// golang.org/x/net/http2.Server.ServeConn until the connection closes. It
// blocks the calling goroutine for the life of the connection, exactly like
// http2.Server.ServeConn itself — callers run it on its own goroutine.
func (v *h2Variant) ServeConn(handler http.Handler) error {
	v.mu.Lock()
	conn, srv := v.conn, v.srv
	v.mu.Unlock()
	if conn == nil {
		return newError("ServeConn", CodeInvalidState, nil)
	}
	srv.ServeConn(conn, &http2.ServeConnOpts{Handler: handler})
	return nil
}

func (v *h2Variant) Close() {
	v.closed.Do(func() {
		atomic.StoreInt32(&v.open, 0)
		v.mu.Lock()
		conn := v.conn
		v.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	})
}

func (v *h2Variant) IsOpen() bool {
	return atomic.LoadInt32(&v.open) == 1
}

// UpdateWindow is a no-op: golang.org/x/net/http2 manages window updates
// internally per stream, and this package exposes no stream handle to forward
// the signal to.
func (v *h2Variant) UpdateWindow(uint32) {}

func (v *h2Variant) OnChannelShutdown() {
	v.Close()
}
