package httpconn

import (
	"context"
	"crypto/tls"
	"net"

	"go.uber.org/zap"
)

// ClientOptions is everything Connect needs to dial a host, run the
// version-dispatch resolver, and notify the caller exactly once of the
// outcome.
type ClientOptions struct {
	// HostName is the remote host to dial. Required.
	HostName string
	// Port is the remote TCP port. Required.
	Port uint16

	// UseTLS selects the TLS dial path through the SystemVTable. When true,
	// TLSOptions may further configure the handshake.
	UseTLS     bool
	TLSOptions *TLSOptions

	SocketOptions SocketOptions

	// InitialWindow seeds UpdateWindow-style flow control on the resulting
	// connection. Variants that don't model flow control ignore it.
	InitialWindow uint32

	// OnSetup is required. It is called exactly once, either with a live,
	// configured connection and a nil error, or with a nil connection and a
	// non-nil error — never both.
	OnSetup func(conn *Connection, err error, userData any)
	// OnShutdown is optional. It is called at most once, only if OnSetup
	// already delivered a live connection.
	OnShutdown func(conn *Connection, err error, userData any)

	UserData any

	// ProxyRequestTransform, when set, is stored on the resulting
	// connection for the caller's own use; this package does not invoke it.
	ProxyRequestTransform func(req any) any

	// ProxyOptions selects a connect through a proxy. This package has no
	// proxy-connect collaborator, so a non-nil value is always rejected with
	// CodeUnsupportedProtocol.
	ProxyOptions any

	// VTable overrides the process-wide SystemVTable for this connect call.
	// Nil uses CurrentSystemVTable().
	VTable *SystemVTable

	// Logger roots this connection's subject loggers. Nil uses zap.NewNop().
	Logger *zap.Logger
}

// clientBootstrapRecord is the ephemeral per-connect record: it survives from
// before the dial until the channel-shutdown callback fires, even if stage
// install failed — freed in the channel-shutdown callback, never earlier.
type clientBootstrapRecord struct {
	opts        ClientOptions
	log         *subjectLoggers
	registry    *variantRegistry
	setupCalled bool
}

// Connect runs the client connect path. Validation failures return
// synchronously with CodeInvalidArgument, and a non-nil ProxyOptions with
// CodeUnsupportedProtocol. The dial (and, with UseTLS, the TLS handshake)
// then runs on the calling goroutine, and a dial failure is returned directly
// without invoking OnSetup. After a successful stage install OnSetup is called
// on the calling goroutine before Connect returns; a failed stage install is
// reported to OnSetup, and a later shutdown to OnShutdown, from the channel's
// event-loop goroutine.
func Connect(ctx context.Context, opts ClientOptions) error {
	if opts.HostName == "" || opts.OnSetup == nil {
		return newError("Connect", CodeInvalidArgument, nil)
	}
	if opts.ProxyOptions != nil {
		return newError("Connect", CodeUnsupportedProtocol, nil)
	}

	vtable := opts.VTable
	if vtable == nil {
		vtable = CurrentSystemVTable()
	}

	root := opts.Logger
	if root == nil {
		root = zap.NewNop()
	}
	record := &clientBootstrapRecord{
		opts:     opts,
		log:      newSubjectLoggersPtr(root),
		registry: defaultVariantRegistry(),
	}

	record.log.connection.Debug("dialing",
		zap.String("host", opts.HostName), zap.Uint16("port", opts.Port), zap.Bool("tls", opts.UseTLS))

	var (
		conn net.Conn
		err  error
	)
	if opts.UseTLS {
		conn, err = vtable.NewTLSSocketChannel(ctx, opts.HostName, opts.Port, opts.SocketOptions, opts.TLSOptions)
	} else {
		conn, err = vtable.NewSocketChannel(ctx, opts.HostName, opts.Port, opts.SocketOptions)
	}
	if err != nil {
		// Failure to initiate the dial itself: the bootstrap record is
		// simply discarded and on_setup is never invoked, distinct from the
		// setup callback's own error path below.
		return err
	}

	runClientSetup(record, conn)
	return nil
}

// runClientSetup runs the setup callback for the success path (dial already
// succeeded, channel is non-nil).
func runClientSetup(record *clientBootstrapRecord, conn net.Conn) {
	channel, slot := newClientChannel(conn, record.log)

	stageConn, err := installStage(channel, record.registry, false, record.opts.UseTLS, record.log)
	if err != nil {
		channel.RemoveSlot(slot)
		installClientShutdownNotifier(record, channel, nil)
		channel.Shutdown(err)
		return
	}

	if attacher, ok := stageConn.variantFor().(Attacher); ok {
		attacher.Attach(conn)
	}

	stageConn.client.userData = record.opts.UserData
	stageConn.client.proxyRequestTransform = record.opts.ProxyRequestTransform
	stageConn.client.onShutdown = record.opts.OnShutdown
	if record.opts.InitialWindow != 0 {
		stageConn.UpdateWindow(record.opts.InitialWindow)
	}

	installClientShutdownNotifier(record, channel, stageConn)

	record.setupCalled = true
	record.opts.OnSetup(stageConn, nil, record.opts.UserData)
}

// newClientChannel wraps a dialed net.Conn in a fresh LoopChannel with an
// ALPN-reporting handler pre-installed as the upstream slot, matching the
// "TLS channel handler already in the pipeline" precondition resolveVersion
// (alpn.go) depends on. The returned slot is removed again if stage install
// fails, since it carries no channel-hold of its own.
func newClientChannel(conn net.Conn, log *subjectLoggers) (*LoopChannel, *Slot) {
	channel := NewLoopChannel(nil)
	slot := channel.NewSlot()

	var handler Handler
	if tlsConn, ok := conn.(*tls.Conn); ok {
		handler = &tlsALPNHandler{conn: tlsConn}
	} else if reporter, ok := conn.(ALPNReporter); ok {
		handler = alpnReporterHandler{reporter}
	} else {
		handler = noopHandler{}
	}
	slot.handler = handler
	_ = channel.InsertSlotAtTail(slot)
	return channel, slot
}

type alpnReporterHandler struct {
	ALPNReporter
}

func (alpnReporterHandler) OnChannelShutdown() {}

type noopHandler struct{}

func (noopHandler) OnChannelShutdown() {}

// installClientShutdownNotifier arranges for the shutdown-callback semantics
// to run once the channel finishes tearing down: exactly-once delivery of
// either the deferred setup failure or, if setup already succeeded, the
// role's on_shutdown.
func installClientShutdownNotifier(record *clientBootstrapRecord, channel *LoopChannel, conn *Connection) {
	channel.mu.Lock()
	prevOnEmpty := channel.onEmpty
	channel.onEmpty = func(err error) {
		if prevOnEmpty != nil {
			prevOnEmpty(err)
		}
		deliverClientShutdown(record, conn, err)
	}
	channel.mu.Unlock()
}

func deliverClientShutdown(record *clientBootstrapRecord, conn *Connection, shutdownErr error) {
	if !record.setupCalled {
		deliverClientSetupFailure(record, nonZeroOr(shutdownErr, errUnknownNonZero()))
		return
	}
	if conn != nil && conn.client != nil && conn.client.onShutdown != nil {
		conn.client.onShutdown(conn, shutdownErr, conn.client.userData)
	}
}

func deliverClientSetupFailure(record *clientBootstrapRecord, err error) {
	if record.setupCalled {
		return
	}
	record.setupCalled = true
	record.opts.OnSetup(nil, err, record.opts.UserData)
}

func nonZeroOr(err error, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}
