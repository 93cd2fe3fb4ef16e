package httpconn

import "bytes"

// Version identifies the negotiated HTTP protocol version a Connection is
// operating as: 1.0, 1.1, 2, or unknown.
type Version int

const (
	VersionUnknown Version = iota
	Version10
	Version11
	Version2
)

func (v Version) String() string {
	switch v {
	case Version10:
		return "HTTP/1.0"
	case Version11:
		return "HTTP/1.1"
	case Version2:
		return "HTTP/2"
	default:
		return "unknown"
	}
}

// ALPN wire constants: plain ASCII byte sequences compared byte-for-byte
// against TLS handshake output.
var (
	alpnHTTP11 = []byte("http/1.1")
	alpnH2     = []byte("h2")
)

// resolveVersion is the version-dispatch resolver.
//
// If usingTLS is false, the version is fixed to HTTP/1.1 — there is nothing
// to negotiate without a TLS handshake. If usingTLS is true, the immediately
// upstream slot (the one the newly inserted stage sits behind) must exist and
// must have a handler implementing ALPNReporter; otherwise resolveVersion
// fails with CodeInvalidState, since ALPN is only meaningful once a TLS
// handler has actually completed its handshake.
//
// An empty or unrecognized ALPN protocol degrades to HTTP/1.1 with a warning
// logged, rather than failing outright — a deliberate interop tradeoff.
func resolveVersion(slot *Slot, usingTLS bool, log *subjectLoggers) (Version, error) {
	if !usingTLS {
		return Version11, nil
	}

	upstream := slot.Prev()
	if upstream == nil || upstream.Handler() == nil {
		return VersionUnknown, newError("resolveVersion", CodeInvalidState, nil)
	}

	reporter, ok := upstream.Handler().(ALPNReporter)
	if !ok {
		return VersionUnknown, newError("resolveVersion", CodeInvalidState, nil)
	}

	proto := reporter.NegotiatedProtocol()
	switch {
	case bytes.Equal(proto, alpnHTTP11):
		return Version11, nil
	case bytes.Equal(proto, alpnH2):
		return Version2, nil
	default:
		if log != nil && log.connection != nil {
			log.connection.Warn("ALPN negotiated an unrecognized protocol, falling back to HTTP/1.1",
				zapFieldALPN(proto),
			)
		}
		return Version11, nil
	}
}
