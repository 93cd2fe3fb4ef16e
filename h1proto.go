package httpconn

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
)

// h1Variant is the always-available HTTP/1.1 Variant, a net/http-based
// serving loop narrowed down to just the dispatch-table shape this package's
// Variant interface requires. It does not re-parse HTTP/1.1 itself beyond
// the thin convenience ServeOne method below, which borrows net/http's own
// request reader exactly as an adapter — the real frame/message semantics
// remain an external collaborator's responsibility.
type h1Variant struct {
	slot     *Slot
	isServer bool

	mu     sync.Mutex
	conn   net.Conn // optionally attached by the caller via Attach
	reader *bufio.Reader

	open   int32 // atomic bool
	closed sync.Once
}

// newH1Variant is the VariantConstructor for Version10/Version11, registered
// in protocol.go's defaultVariantRegistry. It never fails.
func newH1Variant(slot *Slot, isServer bool) (Variant, error) {
	v := &h1Variant{slot: slot, isServer: isServer}
	atomic.StoreInt32(&v.open, 1)
	return v, nil
}

// Attach binds the underlying net.Conn this variant reads HTTP/1.1 messages
// from. client.go and server.go call it through Attacher after stage
// install; it is not part of the dispatch-table contract; a full HTTP/1.1 parser collaborator would not
// need it, since it would already own the transport.
func (v *h1Variant) Attach(conn net.Conn) {
	v.mu.Lock()
	v.conn = conn
	v.reader = bufio.NewReader(conn)
	v.mu.Unlock()
}

// ServeOne reads and responds to a single HTTP/1.1 request using net/http's
// own wire-format reader/writer, purely as a demonstration that a variant
// plugged into this package's dispatch table can actually move bytes. Each
// call serves one request; callers loop on it themselves.
func (v *h1Variant) ServeOne(handler http.Handler) error {
	v.mu.Lock()
	conn, reader := v.conn, v.reader
	v.mu.Unlock()
	if conn == nil {
		return newError("ServeOne", CodeInvalidState, nil)
	}

	req, err := http.ReadRequest(reader)
	if err != nil {
		return newError("ServeOne", CodeProtocolError, err)
	}
	req.RemoteAddr = conn.RemoteAddr().String()

	rw := &h1ResponseWriter{conn: conn, header: make(http.Header)}
	handler.ServeHTTP(rw, req)
	return rw.flush()
}

func (v *h1Variant) Close() {
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

func (v *h1Variant) IsOpen() bool {
	return atomic.LoadInt32(&v.open) == 1
}

// UpdateWindow is a no-op for HTTP/1.1: there is no stream-level flow
// control to advertise.
func (v *h1Variant) UpdateWindow(uint32) {}

func (v *h1Variant) OnChannelShutdown() {
	v.Close()
}

// h1ResponseWriter is a minimal http.ResponseWriter that writes a
// well-formed HTTP/1.1 response line, headers and body straight to conn. It
// exists only so ServeOne above has somewhere to write; it is not a general
// purpose net/http server response writer and does not support hijacking,
// flushing trailers, or chunked transfer encoding.
type h1ResponseWriter struct {
	conn        net.Conn
	header      http.Header
	wroteHeader bool
	status      int
	body        []byte
}

func (w *h1ResponseWriter) Header() http.Header { return w.header }

func (w *h1ResponseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	w.body = append(w.body, p...)
	return len(p), nil
}

func (w *h1ResponseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = status
}

func (w *h1ResponseWriter) flush() error {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	resp := &http.Response{
		StatusCode:    w.status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        w.header,
		Body:          io.NopCloser(bytes.NewReader(w.body)),
		ContentLength: int64(len(w.body)),
	}
	return resp.Write(w.conn)
}
