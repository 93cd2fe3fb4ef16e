package httpconn

import "testing"

type fakeALPNReporter struct {
	proto []byte
}

func (r fakeALPNReporter) NegotiatedProtocol() []byte { return r.proto }
func (r fakeALPNReporter) OnChannelShutdown()         {}

func slotWithUpstream(t *testing.T, handler Handler) *Slot {
	t.Helper()
	c := NewLoopChannel(nil)
	upstream := c.NewSlot()
	if err := c.InsertSlotAtTail(upstream); err != nil {
		t.Fatal(err)
	}
	upstream.handler = handler
	slot := c.NewSlot()
	if err := c.InsertSlotAtTail(slot); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		c.Shutdown(nil)
		waitForFinish(t, c)
	})
	return slot
}

func TestResolveVersionWithoutTLSIsAlwaysHTTP11(t *testing.T) {
	c := NewLoopChannel(nil)
	t.Cleanup(func() {
		c.Shutdown(nil)
		waitForFinish(t, c)
	})
	slot := c.NewSlot()
	if err := c.InsertSlotAtTail(slot); err != nil {
		t.Fatal(err)
	}

	v, err := resolveVersion(slot, false, nil)
	if err != nil {
		t.Fatalf("resolveVersion: %v", err)
	}
	if v != Version11 {
		t.Fatalf("got %v, want Version11", v)
	}
}

func TestResolveVersionTLSNegotiatesH2(t *testing.T) {
	slot := slotWithUpstream(t, fakeALPNReporter{proto: alpnH2})
	v, err := resolveVersion(slot, true, nil)
	if err != nil {
		t.Fatalf("resolveVersion: %v", err)
	}
	if v != Version2 {
		t.Fatalf("got %v, want Version2", v)
	}
}

func TestResolveVersionTLSNegotiatesHTTP11(t *testing.T) {
	slot := slotWithUpstream(t, fakeALPNReporter{proto: alpnHTTP11})
	v, err := resolveVersion(slot, true, nil)
	if err != nil {
		t.Fatalf("resolveVersion: %v", err)
	}
	if v != Version11 {
		t.Fatalf("got %v, want Version11", v)
	}
}

func TestResolveVersionTLSUnrecognizedALPNFallsBackToHTTP11(t *testing.T) {
	slot := slotWithUpstream(t, fakeALPNReporter{proto: []byte("spdy/3.1")})
	v, err := resolveVersion(slot, true, newSubjectLoggersPtr(nil))
	if err != nil {
		t.Fatalf("resolveVersion: %v", err)
	}
	if v != Version11 {
		t.Fatalf("got %v, want Version11 fallback", v)
	}
}

func TestResolveVersionTLSWithoutUpstreamHandlerFails(t *testing.T) {
	c := NewLoopChannel(nil)
	t.Cleanup(func() {
		c.Shutdown(nil)
		waitForFinish(t, c)
	})
	slot := c.NewSlot()
	if err := c.InsertSlotAtTail(slot); err != nil {
		t.Fatal(err)
	}

	_, err := resolveVersion(slot, true, nil)
	if e, ok := err.(*Error); !ok || e.Code != CodeInvalidState {
		t.Fatalf("got %v, want CodeInvalidState", err)
	}
}

func TestResolveVersionTLSWithNonALPNUpstreamHandlerFails(t *testing.T) {
	slot := slotWithUpstream(t, noopHandler{})
	_, err := resolveVersion(slot, true, nil)
	if e, ok := err.(*Error); !ok || e.Code != CodeInvalidState {
		t.Fatalf("got %v, want CodeInvalidState", err)
	}
}
