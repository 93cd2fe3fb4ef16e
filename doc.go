// Package httpconn implements the connection lifecycle subsystem of an HTTP
// client/server networking library: it accepts or initiates a transport,
// determines the negotiated HTTP version via ALPN, splices the matching
// protocol handler into the channel pipeline, and manages the
// reference-counted lifetime of the resulting connection against the
// lifetime of its underlying channel.
//
// The HTTP/1.1 and HTTP/2 frame parsers, the socket/TLS channel handlers and
// the event-loop runtime are external collaborators, consumed here only
// through the [Handler], [Channel] and [StreamSocket] interfaces, plus
// [Attacher] and [ALPNReporter] for binding a real net.Conn and reading back
// its negotiated ALPN protocol. This package owns the dispatch decision, the
// connection façade and its refcount, and the server-side bookkeeping that
// ties accepted channels to connections.
//
// Warning: the API favors asynchronous, callback-driven operation over
// blocking calls: connection lifecycle events are delivered through
// callbacks. Connect is the exception on the way in: it dials (and, with TLS,
// completes the handshake) on the calling goroutine before it returns.
package httpconn
