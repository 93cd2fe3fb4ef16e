package httpconn

import "net"

// Attacher is implemented by variants (h1Variant, h2Variant) that need the
// raw transport conn bound after construction, since installStage builds the
// variant before any net.Conn exists as such in the abstract Channel model.
// Callers that drive a real net.Conn-backed LoopChannel (client.go,
// server.go) type-assert a Connection's variant against Attacher
// once the stage has been installed.
type Attacher interface {
	Attach(conn net.Conn)
}

// Variant is the dispatch-table shape every HTTP-version-specific connection
// implementation must expose: a plain Go interface with two implementations
// (h1Variant, h2Variant) rather than a simulated-inheritance base type.
//
// A Variant is always embedded behind a *Connection; callers never see a
// Variant directly, only the Connection façade (connection.go) that
// dispatches to it.
type Variant interface {
	Handler

	// Close asynchronously closes the connection. It dispatches to the
	// variant's close routine and does not block.
	Close()

	// IsOpen reports whether the connection variant considers itself open.
	IsOpen() bool

	// UpdateWindow is an advisory flow-control signal forwarded to the
	// variant; HTTP/1.1 implementations are expected to no-op it.
	UpdateWindow(n uint32)
}

// VariantConstructor builds a Variant bound to slot, in either the server or
// client role. It is the seam through which an HTTP/1.1 or HTTP/2 parser
// implementation plugs into this package. defaultVariantRegistry below
// registers newH1Variant (h1proto.go) and newH2Variant (h2proto.go).
type VariantConstructor func(slot *Slot, isServer bool) (Variant, error)

// variantRegistry maps a negotiated Version to the constructor that builds
// its Variant. It is intentionally a plain map behind a constructor function
// rather than package-level mutable state, so tests can substitute their own
// registry instead of relying on process-wide registration.
type variantRegistry struct {
	constructors map[Version]VariantConstructor
}

// defaultVariantRegistry returns the registry used by production callers:
// HTTP/1.0 and HTTP/1.1 both dispatch to the bundled h1Variant
// (newH1Variant, h1proto.go); HTTP/2 dispatches to newH2Variant (h2proto.go),
// which is always compiled in and registered here.
func defaultVariantRegistry() *variantRegistry {
	return &variantRegistry{
		constructors: map[Version]VariantConstructor{
			Version10: newH1Variant,
			Version11: newH1Variant,
			Version2:  newH2Variant,
		},
	}
}

// construct builds the Variant for v. A missing constructor for
// VersionUnknown or an unregistered version is CodeUnsupportedProtocol; a nil
// constructor registered for a known version (i.e. "the HTTP/2 variant is
// absent in this build") is a fatal programmer error distinct from
// unsupported-protocol: an HTTP/2 variant may be absent in early builds, but
// attempting to construct it when absent means the registry itself is
// misconfigured.
func (r *variantRegistry) construct(v Version, slot *Slot, isServer bool) (Variant, error) {
	ctor, known := r.constructors[v]
	if !known {
		return nil, newError("construct", CodeUnsupportedProtocol, nil)
	}
	if ctor == nil {
		panic("httpconn: variant constructor registered as absent for " + v.String())
	}
	return ctor(slot, isServer)
}
