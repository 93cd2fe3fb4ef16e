package httpconn

import (
	"sync"
)

// Handler is the per-stage object a [Slot] binds to. The HTTP/1.1 and HTTP/2
// frame parsers that implement Handler are external collaborators outside
// this package's scope; this package only needs enough of the shape to
// insert one into a channel and to be told when the channel has torn the
// stage down.
type Handler interface {
	// OnChannelShutdown is invoked exactly once, on the channel's event-loop
	// goroutine, after the channel has finished shutting down this stage. It
	// is the point at which a Handler that embeds a *Connection frees it
	// (see connection.go's state machine: releasing -> gone).
	OnChannelShutdown()
}

// ALPNReporter is implemented by a TLS channel handler (an external
// collaborator) to expose the negotiated ALPN protocol once the handshake has
// completed. resolveVersion (alpn.go) type-asserts the upstream slot's
// handler against this interface.
type ALPNReporter interface {
	NegotiatedProtocol() []byte
}

// Slot is one position in a Channel's pipeline. It binds at most one Handler
// and knows its immediate neighbor, which is all the version-dispatch
// resolver needs to find "the immediately-upstream stage".
type Slot struct {
	channel *LoopChannel
	handler Handler
	prev    *Slot
}

// Handler returns the handler currently bound to this slot, or nil.
func (s *Slot) Handler() Handler { return s.handler }

// Prev returns the slot immediately upstream of this one (closer to the
// transport), or nil if this is the first slot in the channel.
func (s *Slot) Prev() *Slot { return s.prev }

// Channel is the abstract byte-channel pipeline this package splices protocol
// handlers into. The real implementation (a socket- and TLS-aware event loop)
// is an external collaborator; LoopChannel below is a minimal, in-package
// reference implementation sufficient to exercise and test this package's
// lifecycle logic without pulling in a full I/O runtime.
type Channel interface {
	// NewSlot allocates a new, unattached slot bound to this channel.
	NewSlot() *Slot

	// InsertSlotAtTail inserts slot at the tail of the channel's stage list.
	// It is step 2 of the channel-stage installer protocol.
	InsertSlotAtTail(slot *Slot) error

	// RemoveSlot removes slot from the channel's stage list. Used to unwind
	// a failed install: failure at any step unwinds everything before it.
	RemoveSlot(slot *Slot)

	// AcquireHold acquires one channel-hold, preventing the channel from
	// being destroyed. Pre: channel is not yet fully destroyed.
	AcquireHold()

	// ReleaseHold releases one channel-hold. The hold acquired by a
	// Connection at install time is released exactly once, from
	// Connection.Release's refcount-reaches-zero path.
	ReleaseHold()

	// Shutdown begins asynchronous shutdown of the channel with the given
	// completion error (nil for a graceful shutdown). It does not block;
	// each slot's Handler.OnChannelShutdown is invoked on the loop goroutine
	// once shutdown completes.
	Shutdown(err error)

	// Schedule runs fn on the channel's event-loop goroutine. Implementations
	// may run fn inline when the caller is already on that goroutine;
	// LoopChannel does not detect that case and always queues fn (see
	// LoopChannel.onLoopGoroutine).
	Schedule(fn func())
}

// LoopChannel is a minimal single-goroutine event-loop Channel, used as the
// default/test Channel implementation. Each LoopChannel owns exactly one
// goroutine; Schedule serializes all work onto it, a cooperative,
// event-loop-driven scheduling model.
type LoopChannel struct {
	tasks chan func()
	done  chan struct{}

	mu       sync.Mutex
	slots    []*Slot
	holds    int
	shutdown bool
	shutErr  error
	finished bool
	loopID   *int // identity token set when the loop goroutine starts; onLoopGoroutine does not read it

	onEmpty func(err error) // invoked once, after all slots have been torn down
}

// NewLoopChannel starts a new event-loop goroutine and returns the Channel
// bound to it. onEmpty, if non-nil, is invoked exactly once on the loop
// goroutine after every slot's Handler.OnChannelShutdown has returned and no
// holds remain.
func NewLoopChannel(onEmpty func(err error)) *LoopChannel {
	c := &LoopChannel{
		tasks:   make(chan func(), 64),
		done:    make(chan struct{}),
		onEmpty: onEmpty,
	}
	currentTracker().trackChannel(1)
	go c.run()
	return c
}

func (c *LoopChannel) run() {
	id := 0
	c.loopID = &id
	defer currentTracker().trackChannel(-1)
	for {
		select {
		case fn := <-c.tasks:
			runGuarded(fn)
		case <-c.done:
			c.drainAndExit()
			return
		}
	}
}

// drainAndExit runs any tasks still queued before the goroutine exits, so a
// Schedule call racing with Shutdown is never silently dropped.
func (c *LoopChannel) drainAndExit() {
	for {
		select {
		case fn := <-c.tasks:
			runGuarded(fn)
		default:
			return
		}
	}
}

func (c *LoopChannel) Schedule(fn func()) {
	if c.onLoopGoroutine() {
		runGuarded(fn)
		return
	}
	select {
	case c.tasks <- fn:
	case <-c.done:
		// Channel already torn down; run fn anyway so callbacks still fire
		// (e.g. a late OnChannelShutdown), matching "exactly-once" delivery.
		runGuarded(fn)
	}
}

// onLoopGoroutine is a best-effort check; LoopChannel is only ever driven
// through Schedule in this package, so exact goroutine identity is not
// required for correctness here (no code path both calls Schedule and relies
// on it being asynchronous with respect to itself).
func (c *LoopChannel) onLoopGoroutine() bool { return false }

func (c *LoopChannel) NewSlot() *Slot {
	return &Slot{channel: c}
}

func (c *LoopChannel) InsertSlotAtTail(slot *Slot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return newError("InsertSlotAtTail", CodeConnectionClosed, nil)
	}
	if n := len(c.slots); n > 0 {
		slot.prev = c.slots[n-1]
	}
	c.slots = append(c.slots, slot)
	return nil
}

func (c *LoopChannel) RemoveSlot(slot *Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.slots {
		if s == slot {
			c.slots = append(c.slots[:i], c.slots[i+1:]...)
			return
		}
	}
}

func (c *LoopChannel) AcquireHold() {
	c.mu.Lock()
	c.holds++
	c.mu.Unlock()
}

func (c *LoopChannel) ReleaseHold() {
	c.mu.Lock()
	c.holds--
	holds := c.holds
	c.mu.Unlock()
	if holds == 0 {
		c.Schedule(c.maybeFinish)
	}
}

// ShutdownErr returns the completion error Shutdown was first called with,
// once shutdown has been initiated. It is nil both before shutdown starts
// and after a graceful (nil-error) shutdown.
func (c *LoopChannel) ShutdownErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutErr
}

func (c *LoopChannel) Shutdown(err error) {
	c.Schedule(func() {
		c.mu.Lock()
		if c.shutdown {
			c.mu.Unlock()
			return
		}
		c.shutdown = true
		c.shutErr = err
		slots := append([]*Slot(nil), c.slots...)
		c.mu.Unlock()

		// Tear down slots tail-to-head, mirroring construction order.
		for i := len(slots) - 1; i >= 0; i-- {
			s := slots[i]
			if s.handler != nil {
				h := s.handler
				s.handler = nil
				h.OnChannelShutdown()
			}
			c.RemoveSlot(s)
		}
		c.maybeFinish()
	})
}

func (c *LoopChannel) maybeFinish() {
	c.mu.Lock()
	ready := c.shutdown && c.holds <= 0 && len(c.slots) == 0 && !c.finished
	var cb func(error)
	var err error
	if ready {
		c.finished = true
		cb, err = c.onEmpty, c.shutErr
	}
	c.mu.Unlock()
	if ready {
		if cb != nil {
			cb(err)
		}
		close(c.done)
	}
}
