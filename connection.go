package httpconn

import (
	"sync/atomic"
)

// connState is the lifecycle state machine: constructing, alive, releasing,
// gone.
type connState int32

const (
	stateConstructing connState = iota
	stateAlive
	stateReleasing
	stateGone
)

// clientRoleData holds the client-role attributes of a Connection. Exactly
// one of clientRoleData/serverRoleData is populated, fixed at construction.
type clientRoleData struct {
	userData              any
	proxyRequestTransform func(req any) any
	onShutdown            func(conn *Connection, err error, userData any)
}

// serverRoleData holds the server-role attributes. onIncomingRequest is set
// by ConfigureServer after the connection has been handed to the user via
// the server's accept-setup callback.
type serverRoleData struct {
	userData          any
	onIncomingRequest func(conn *Connection)
	onShutdown        func(conn *Connection, err error, userData any)
	configured        bool
}

// Connection is the polymorphic-over-version façade. It is constructed by
// the channel-stage installer (install.go) and is never constructed
// directly by callers.
type Connection struct {
	version Version
	variant Variant
	slot    *Slot
	channel Channel

	refcount int32 // atomic; initial 1
	state    int32 // atomic connState

	isServer bool
	client   *clientRoleData
	server   *serverRoleData

	log *subjectLoggers
}

// newConnection constructs a Connection bound to slot with refcount 1.
// Called only by installStage (install.go) after the variant has already
// been built.
func newConnection(slot *Slot, channel Channel, version Version, isServer bool, variant Variant, log *subjectLoggers) *Connection {
	c := &Connection{
		version:  version,
		variant:  variant,
		slot:     slot,
		channel:  channel,
		refcount: 1,
		state:    int32(stateConstructing),
		isServer: isServer,
		log:      log,
	}
	if isServer {
		c.server = &serverRoleData{}
	} else {
		c.client = &clientRoleData{}
	}
	currentTracker().trackConnection(1)
	return c
}

// markAlive transitions constructing -> alive once the stage install has
// fully succeeded.
func (c *Connection) markAlive() {
	atomic.CompareAndSwapInt32(&c.state, int32(stateConstructing), int32(stateAlive))
}

// Acquire atomically increments the connection's refcount. Pre: refcount > 0.
func (c *Connection) Acquire() {
	n := atomic.AddInt32(&c.refcount, 1)
	if n <= 1 {
		panic("httpconn: Acquire called on a connection with a non-positive refcount")
	}
}

// Release atomically decrements the connection's refcount. If the prior
// value was 1, it initiates channel shutdown with a success code and
// releases the connection's channel-hold; it never dereferences the
// connection thereafter. Double-release is a fatal programmer error.
func (c *Connection) Release() {
	n := atomic.AddInt32(&c.refcount, -1)
	switch {
	case n > 0:
		return
	case n == 0:
		atomic.StoreInt32(&c.state, int32(stateReleasing))
		c.channel.Shutdown(nil)
		c.channel.ReleaseHold()
	default:
		panic("httpconn: double-release of a Connection")
	}
}

// Close dispatches to the variant's close routine, which closes
// asynchronously. It never blocks.
func (c *Connection) Close() {
	c.variant.Close()
}

// IsOpen dispatches to the variant.
func (c *Connection) IsOpen() bool {
	return c.variant.IsOpen()
}

// GetVersion returns the HTTP version fixed at construction.
func (c *Connection) GetVersion() Version {
	return c.version
}

// GetChannel returns the channel pointer. Valid only while the caller holds a
// reference acquired via Acquire or the initial construction reference.
func (c *Connection) GetChannel() Channel {
	return c.channel
}

// variantFor returns conn's underlying Variant, for callers (client.go,
// server.go) that need to type-assert it against Attacher to bind a real
// net.Conn. Not part of the public façade: ordinary callers only ever reach
// the variant indirectly, through Close/IsOpen/UpdateWindow.
func (c *Connection) variantFor() Variant {
	return c.variant
}

// UpdateWindow sends an advisory flow-control signal to the variant.
func (c *Connection) UpdateWindow(n uint32) {
	c.variant.UpdateWindow(n)
}

// OnChannelShutdown implements Handler. It is invoked exactly once, by the
// stageHandler bound to this connection's slot (install.go), while the
// channel's shutdown tears that stage down. This is the point where the handler destructor would run
// and free the connection: in Go there is nothing to free explicitly, but
// this is where the releasing -> gone transition happens and any
// role-specific shutdown notification other than the ones already
// delivered by install.go/client.go/server.go would be finalized.
func (c *Connection) OnChannelShutdown() {
	atomic.StoreInt32(&c.state, int32(stateGone))
	currentTracker().trackConnection(-1)
}

// ServerConnectionOptions is the options record accepted by ConfigureServer.
type ServerConnectionOptions struct {
	// OnIncomingRequest is required.
	OnIncomingRequest func(conn *Connection)
	// OnShutdown is optional.
	OnShutdown func(conn *Connection, err error, userData any)
	// ConnectionUserData is attached to the connection for later retrieval
	// by the caller's own bookkeeping; this package does not interpret it.
	ConnectionUserData any
}

// ConfigureServer stores callbacks and a user pointer onto conn's
// server-role data. It returns CodeInvalidArgument if OnIncomingRequest is
// missing, and CodeInvalidState if conn is a client connection or has
// already been configured.
func ConfigureServer(conn *Connection, opts ServerConnectionOptions) error {
	if conn.server == nil {
		return newError("ConfigureServer", CodeInvalidState, nil)
	}
	if opts.OnIncomingRequest == nil {
		return newError("ConfigureServer", CodeInvalidArgument, nil)
	}
	if conn.server.configured {
		return newError("ConfigureServer", CodeInvalidState, nil)
	}
	conn.server.onIncomingRequest = opts.OnIncomingRequest
	conn.server.onShutdown = opts.OnShutdown
	conn.server.userData = opts.ConnectionUserData
	conn.server.configured = true
	return nil
}

// isConfigured reports whether a server-role connection's
// on_incoming_request has been set, for the accept-setup callback's
// reaction-required check.
func (c *Connection) isConfigured() bool {
	return c.server != nil && c.server.configured
}
