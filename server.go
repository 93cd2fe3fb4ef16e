package httpconn

import (
	"context"
	"crypto/tls"
	"net"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Server is the server-listener façade: a listening socket plus the
// synchronized region {mutex, is_shutting_down, map from channel ->
// connection} that is the only server state mutable from multiple threads.
type Server struct {
	opts     ServerOptions
	log      *subjectLoggers
	listener net.Listener

	mu             sync.Mutex
	isShuttingDown bool
	channels       map[Channel]*Connection

	acceptWG    sync.WaitGroup
	destroyOnce sync.Once
}

// NewServer constructs a Server and starts its listening socket. Init order
// is fixed: mutex, then map, then listener socket. The listener socket is
// created under the mutex so that accept callbacks firing on the event loop
// always observe a fully-initialized socket field.
func NewServer(ctx context.Context, opts ServerOptions) (*Server, error) {
	if opts.Socket == nil || opts.OnIncomingConnection == nil {
		return nil, newError("NewServer", CodeInvalidArgument, nil)
	}
	opts.setDefaults()

	s := &Server{
		opts:     opts,
		log:      newSubjectLoggersPtr(opts.Logger),
		channels: make(map[Channel]*Connection),
	}

	s.mu.Lock()
	ln, err := opts.Socket.Listen(ctx)
	if err == nil {
		s.listener = ln
	}
	s.mu.Unlock()
	if err != nil {
		return nil, newError("NewServer", CodeInvalidState, err)
	}

	s.acceptWG.Add(1)
	go s.acceptLoop(ctx)

	return s, nil
}

// acceptLoop is the server's event-loop-driving goroutine: it runs Accept in
// a tight loop, and for every accepted transport runs the accept-setup
// callback on a fresh per-connection LoopChannel.
func (s *Server) acceptLoop(ctx context.Context) {
	defer s.acceptWG.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.log.server.Debug("listener accept returned, stopping accept loop", zap.Error(err))
			return
		}
		go s.handleAccepted(conn)
	}
}

// handleAccepted runs the accept-setup callback for one freshly-accepted
// transport: TLS handshake, stage install, shutting-down race check,
// map bookkeeping, user callback, and a post-callback configuration check.
func (s *Server) handleAccepted(conn net.Conn) {
	if tlsConn, ok := conn.(*tls.Conn); ok {
		if err := tlsConn.Handshake(); err != nil {
			s.log.server.Warn("TLS handshake failed", zap.Error(err))
			_ = conn.Close()
			return
		}
	}

	channel, slot := newAcceptedChannel(conn, s.log)

	installed, err := installStage(channel, s.opts.Registry, true, s.opts.UseTLS, s.log)
	if err != nil {
		channel.RemoveSlot(slot)
		channel.Shutdown(err)
		s.opts.OnIncomingConnection(s, nil, err, s.opts.UserData)
		return
	}

	if attacher, ok := installed.variantFor().(Attacher); ok {
		attacher.Attach(conn)
	}
	if s.opts.InitialWindow != 0 {
		installed.UpdateWindow(s.opts.InitialWindow)
	}

	s.mu.Lock()
	if s.isShuttingDown {
		s.mu.Unlock()
		raceErr := newError("handleAccepted", CodeConnectionClosed, nil)
		s.opts.OnIncomingConnection(s, nil, raceErr, s.opts.UserData)
		installed.GetChannel().Shutdown(raceErr)
		installed.Release()
		return
	}
	s.channels[channel] = installed
	s.mu.Unlock()

	installAcceptShutdownNotifier(s, channel, installed)

	s.opts.OnIncomingConnection(s, installed, nil, s.opts.UserData)

	// The user callback must have configured the connection.
	if !installed.isConfigured() {
		reactionErr := newError("handleAccepted", CodeReactionRequired, nil)
		s.log.server.Error("on_incoming_connection returned without configuring the connection",
			zap.String("code", reactionErr.Error()))
		installed.GetChannel().Shutdown(reactionErr)
		installed.Release()
	}
}

// newAcceptedChannel wraps an accepted net.Conn in a fresh LoopChannel with
// an ALPN-reporting handler pre-installed as the upstream slot, mirroring
// newClientChannel in client.go.
func newAcceptedChannel(conn net.Conn, log *subjectLoggers) (*LoopChannel, *Slot) {
	channel := NewLoopChannel(nil)
	slot := channel.NewSlot()

	var handler Handler
	if tlsConn, ok := conn.(*tls.Conn); ok {
		handler = &tlsALPNHandler{conn: tlsConn}
	} else {
		handler = noopHandler{}
	}
	slot.handler = handler
	_ = channel.InsertSlotAtTail(slot)
	return channel, slot
}

// installAcceptShutdownNotifier wires the accept-shutdown callback: under
// the mutex, remove the channel from the map; outside the lock, invoke the
// connection's server-role on_shutdown if set.
func installAcceptShutdownNotifier(s *Server, channel *LoopChannel, conn *Connection) {
	channel.mu.Lock()
	prevOnEmpty := channel.onEmpty
	channel.onEmpty = func(err error) {
		if prevOnEmpty != nil {
			prevOnEmpty(err)
		}
		s.mu.Lock()
		delete(s.channels, channel)
		remaining := len(s.channels)
		shuttingDown := s.isShuttingDown
		s.mu.Unlock()

		if conn.server != nil && conn.server.onShutdown != nil {
			conn.server.onShutdown(conn, err, conn.server.userData)
		}

		if shuttingDown && remaining == 0 {
			s.finishDestroy()
		}
	}
	channel.mu.Unlock()
}

// Release implements server_release: idempotent; marks is_shutting_down and
// shuts down every live channel with connection-closed, then requests the
// listener socket's destruction. The
// returned error folds any failure closing the listener socket with
// go.uber.org/multierr, the same folding pattern this package uses wherever
// more than one independent teardown step can fail at once.
func (s *Server) Release() error {
	s.mu.Lock()
	if s.isShuttingDown {
		s.mu.Unlock()
		return nil
	}
	s.isShuttingDown = true
	channels := make([]Channel, 0, len(s.channels))
	for ch := range s.channels {
		channels = append(channels, ch)
	}
	remaining := len(channels)
	s.mu.Unlock()

	for _, ch := range channels {
		ch.Shutdown(newError("Release", CodeConnectionClosed, nil))
	}

	closeErr := s.listener.Close()
	if closeErr != nil {
		s.log.server.Debug("error closing listener socket", zap.Error(closeErr))
	}

	if remaining == 0 {
		s.finishDestroy()
	}
	return multierr.Combine(closeErr)
}

// finishDestroy implements the listener-destroy callback: once every
// accepted channel has finished shutdown, invoke
// on_destroy_complete. It is the only safe point to free server state; in
// Go there is nothing further to free explicitly, so it is a no-op beyond
// the user notification.
func (s *Server) finishDestroy() {
	s.destroyOnce.Do(func() {
		s.acceptWG.Wait()
		if s.opts.OnDestroyComplete != nil {
			s.opts.OnDestroyComplete(s.opts.UserData)
		}
	})
}
