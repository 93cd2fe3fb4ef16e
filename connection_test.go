package httpconn

import (
	"testing"
	"time"
)

type fakeVariant struct {
	closed bool
	open   bool
	window uint32
}

func newFakeVariant(*Slot, bool) (Variant, error) {
	return &fakeVariant{open: true}, nil
}

func (v *fakeVariant) Close()                  { v.closed = true; v.open = false }
func (v *fakeVariant) IsOpen() bool             { return v.open }
func (v *fakeVariant) UpdateWindow(n uint32)    { v.window = n }
func (v *fakeVariant) OnChannelShutdown()       { v.open = false }

func newTestConnection(t *testing.T, isServer bool) (*Connection, *LoopChannel) {
	t.Helper()
	channel := NewLoopChannel(nil)
	registry := &variantRegistry{constructors: map[Version]VariantConstructor{Version11: newFakeVariant}}
	log := newSubjectLoggersPtr(nil)
	conn, err := installStage(channel, registry, isServer, false, log)
	if err != nil {
		t.Fatalf("installStage: %v", err)
	}
	return conn, channel
}

func TestConnectionAcquireRelease(t *testing.T) {
	conn, channel := newTestConnection(t, false)

	conn.Acquire()
	conn.Release()
	// one logical ref (the Acquire above) remains: the initial construction
	// ref + Release() leaves refcount at 1, channel must still be alive.
	select {
	case <-channel.done:
		t.Fatal("channel finished after releasing only the extra acquired ref")
	default:
	}

	conn.Release()
	waitForFinish(t, channel)
}

func TestConnectionDoubleReleasePanics(t *testing.T) {
	conn, _ := newTestConnection(t, false)
	conn.Release()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double release")
		}
	}()
	conn.Release()
}

func TestConnectionAcquireAfterZeroPanics(t *testing.T) {
	conn, _ := newTestConnection(t, false)
	conn.Release()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic acquiring a connection with a non-positive refcount")
		}
	}()
	conn.Acquire()
}

func TestConnectionCloseIsOpenDispatchToVariant(t *testing.T) {
	conn, channel := newTestConnection(t, false)
	if !conn.IsOpen() {
		t.Fatal("freshly installed connection should be open")
	}
	conn.UpdateWindow(42)
	if conn.variant.(*fakeVariant).window != 42 {
		t.Fatal("UpdateWindow did not reach the variant")
	}

	conn.Close()
	if conn.IsOpen() {
		t.Fatal("IsOpen should reflect the variant after Close")
	}

	conn.Release()
	waitForFinish(t, channel)
}

func TestConfigureServerRequiresServerRole(t *testing.T) {
	conn, channel := newTestConnection(t, false)
	defer func() {
		conn.Release()
		waitForFinish(t, channel)
	}()

	err := ConfigureServer(conn, ServerConnectionOptions{OnIncomingRequest: func(*Connection) {}})
	if e, ok := err.(*Error); !ok || e.Code != CodeInvalidState {
		t.Fatalf("got %v, want CodeInvalidState", err)
	}
}

func TestConfigureServerRequiresOnIncomingRequest(t *testing.T) {
	conn, channel := newTestConnection(t, true)
	defer func() {
		conn.Release()
		waitForFinish(t, channel)
	}()

	err := ConfigureServer(conn, ServerConnectionOptions{})
	if e, ok := err.(*Error); !ok || e.Code != CodeInvalidArgument {
		t.Fatalf("got %v, want CodeInvalidArgument", err)
	}
	if conn.isConfigured() {
		t.Fatal("connection should not be configured")
	}
}

func TestConfigureServerRejectsSecondCall(t *testing.T) {
	conn, channel := newTestConnection(t, true)
	defer func() {
		conn.Release()
		waitForFinish(t, channel)
	}()

	onReq := func(*Connection) {}
	if err := ConfigureServer(conn, ServerConnectionOptions{OnIncomingRequest: onReq}); err != nil {
		t.Fatalf("first configure: %v", err)
	}
	if !conn.isConfigured() {
		t.Fatal("connection should report configured")
	}
	err := ConfigureServer(conn, ServerConnectionOptions{OnIncomingRequest: onReq})
	if e, ok := err.(*Error); !ok || e.Code != CodeInvalidState {
		t.Fatalf("second configure got %v, want CodeInvalidState", err)
	}
}

func TestAllocTrackerReachesZeroAfterRelease(t *testing.T) {
	tracker := &AllocTracker{}
	SetAllocTracker(tracker)
	defer SetAllocTracker(nil)

	conn, channel := newTestConnection(t, false)
	if ch, cn := tracker.Outstanding(); ch != 1 || cn != 1 {
		t.Fatalf("outstanding = (%d, %d), want (1, 1)", ch, cn)
	}

	conn.Release()
	waitForFinish(t, channel)

	// The loop goroutine's own exit happens asynchronously with respect to
	// maybeFinish closing c.done; give it a moment to actually return.
	deadline := time.Now().Add(time.Second)
	for {
		ch, cn := tracker.Outstanding()
		if ch == 0 && cn == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("outstanding = (%d, %d), want (0, 0)", ch, cn)
		}
		time.Sleep(time.Millisecond)
	}
}
