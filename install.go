package httpconn

// stageHandler is the embedded channel-handler record: the object a Slot
// actually binds to. It forwards the channel's shutdown
// notification to both the protocol variant and the Connection façade, so
// that both get to run their teardown logic exactly once and in a fixed
// order (variant first, since the façade's OnChannelShutdown only flips a
// state bit and must see the variant's teardown as already started).
type stageHandler struct {
	conn    *Connection
	variant Variant
}

func (h *stageHandler) OnChannelShutdown() {
	h.variant.OnChannelShutdown()
	h.conn.OnChannelShutdown()
}

// installStage is the channel-stage installer: it allocates a new pipeline
// stage on channel, inserts it at the tail, runs the
// version-dispatch resolver, constructs the matching Connection variant,
// binds the handler record to the stage, acquires one channel-hold, and
// returns the Connection.
//
// Failure at any step unwinds prior steps in reverse: if the stage exists but
// no handler has been bound yet, the stage is removed. The channel-hold is
// acquired last (step 6) and is therefore never held on any failure path.
func installStage(channel Channel, registry *variantRegistry, isServer, isUsingTLS bool, log *subjectLoggers) (*Connection, error) {
	slot := channel.NewSlot()

	if err := channel.InsertSlotAtTail(slot); err != nil {
		return nil, err
	}

	version, err := resolveVersion(slot, isUsingTLS, log)
	if err != nil {
		channel.RemoveSlot(slot)
		return nil, err
	}

	// construct may panic with a fatal programmer error if the HTTP/2
	// variant was selected but is absent from this build; that panic is
	// intentionally not recovered here.
	variant, err := registry.construct(version, slot, isServer)
	if err != nil {
		channel.RemoveSlot(slot)
		return nil, err
	}

	conn := newConnection(slot, channel, version, isServer, variant, log)
	slot.handler = &stageHandler{conn: conn, variant: variant}

	channel.AcquireHold()
	conn.markAlive()

	return conn, nil
}
