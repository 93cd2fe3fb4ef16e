package httpconn

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }

// pipeListener is an in-memory net.Listener backed by net.Pipe, used so
// server_test.go can exercise the accept-setup/accept-shutdown/server_release
// paths without opening a real TCP socket.
type pipeListener struct {
	conns  chan net.Conn
	closed chan struct{}
	once   sync.Once
}

func newPipeListener() *pipeListener {
	return &pipeListener{conns: make(chan net.Conn), closed: make(chan struct{})}
}

func (p *pipeListener) Accept() (net.Conn, error) {
	select {
	case c := <-p.conns:
		return c, nil
	case <-p.closed:
		return nil, errors.New("pipeListener: closed")
	}
}

func (p *pipeListener) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *pipeListener) Addr() net.Addr { return pipeAddr{} }

func (p *pipeListener) dial(t *testing.T) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	select {
	case p.conns <- server:
	case <-time.After(time.Second):
		t.Fatal("accept loop never consumed dialed connection")
	}
	return client
}

type pipeSocket struct{ l *pipeListener }

func (s pipeSocket) Listen(context.Context) (net.Listener, error) { return s.l, nil }

func TestServerAcceptWithoutConfigureShutsDownReactionRequired(t *testing.T) {
	ln := newPipeListener()
	var mu sync.Mutex
	var gotErr error
	var gotConn *Connection

	srv, err := NewServer(context.Background(), ServerOptions{
		Socket: pipeSocket{ln},
		OnIncomingConnection: func(_ *Server, conn *Connection, err error, _ any) {
			mu.Lock()
			gotConn, gotErr = conn, err
			mu.Unlock()
			// Deliberately do not call ConfigureServer (S5).
		},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	client := ln.dial(t)
	defer client.Close()

	var channel *LoopChannel
	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		conn, cbErr := gotConn, gotErr
		mu.Unlock()
		if conn != nil {
			if cbErr != nil {
				t.Fatalf("on_incoming_connection delivered an error: %v", cbErr)
			}
			channel, _ = conn.GetChannel().(*LoopChannel)
			if conn.IsOpen() {
				time.Sleep(5 * time.Millisecond)
				if time.Now().After(deadline) {
					t.Fatal("connection was never closed after an un-configured accept")
				}
				continue
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("on_incoming_connection was never invoked")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if channel == nil {
		t.Fatal("never captured the accepted connection's channel")
	}
	shutdownErr, ok := channel.ShutdownErr().(*Error)
	if !ok || shutdownErr.Code != CodeReactionRequired {
		t.Fatalf("channel shut down with error %v, want CodeReactionRequired", channel.ShutdownErr())
	}

	srv.Release()
}

func TestServerReleaseShutsDownAllLiveConnectionsAndFiresDestroyComplete(t *testing.T) {
	ln := newPipeListener()

	var mu sync.Mutex
	var shutdownCount int
	var destroyed bool

	srv, err := NewServer(context.Background(), ServerOptions{
		Socket: pipeSocket{ln},
		OnIncomingConnection: func(_ *Server, conn *Connection, err error, _ any) {
			if err != nil {
				return
			}
			_ = ConfigureServer(conn, ServerConnectionOptions{
				OnIncomingRequest: func(*Connection) {},
				OnShutdown: func(*Connection, error, any) {
					mu.Lock()
					shutdownCount++
					mu.Unlock()
				},
			})
		},
		OnDestroyComplete: func(any) {
			mu.Lock()
			destroyed = true
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	c1 := ln.dial(t)
	defer c1.Close()
	c2 := ln.dial(t)
	defer c2.Close()

	// Give the accept loop time to install both stages and populate the map.
	deadline := time.Now().Add(time.Second)
	for {
		srv.mu.Lock()
		n := len(srv.channels)
		srv.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never observed both accepted channels (n=%d)", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := srv.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	// Idempotent.
	if err := srv.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	deadline = time.Now().Add(time.Second)
	for {
		mu.Lock()
		n, d := shutdownCount, destroyed
		mu.Unlock()
		if n == 2 && d {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("shutdownCount=%d destroyed=%v, want 2/true", n, d)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
