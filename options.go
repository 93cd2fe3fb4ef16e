package httpconn

import (
	"go.uber.org/zap"
)

// ServerOptions is the construction-input record for NewServer.
type ServerOptions struct {
	// Socket is where the server listens. Required.
	Socket StreamSocket

	// UseTLS marks Socket as TLS-terminating; it only affects version
	// dispatch (resolveVersion consults the negotiated ALPN protocol) and
	// does not itself configure TLS — wrap Socket with TLS(...) (tls.go) to
	// actually terminate TLS.
	UseTLS bool

	// InitialWindow seeds UpdateWindow-style flow control on every accepted
	// connection.
	InitialWindow uint32

	// OnIncomingConnection is required. It is invoked exactly once per
	// accepted channel, either with a new connection and a nil error, or
	// with a nil connection and a non-nil error. The callback must configure
	// a delivered connection with ConfigureServer; otherwise the server shuts
	// it down with CodeReactionRequired.
	OnIncomingConnection func(server *Server, conn *Connection, err error, userData any)

	// OnDestroyComplete, if set, is invoked once every accepted connection's
	// shutdown callback has returned and the listener itself has finished
	// tearing down.
	OnDestroyComplete func(userData any)

	UserData any

	// Registry overrides the registry of protocol variants this server
	// installs on accepted connections. Nil uses defaultVariantRegistry().
	Registry *variantRegistry

	Logger *zap.Logger
}

// setDefaults fills in the zero-value defaults for unspecified options.
func (o *ServerOptions) setDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Registry == nil {
		o.Registry = defaultVariantRegistry()
	}
}
