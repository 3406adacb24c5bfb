package link

// PacketHandler is the upward interface to the application layer. It is
// invoked once per tick with every frame decoded since the previous tick and
// returns any frames it wants sent. Returned frames are never lost: they ride
// the pending queue while connected and the waiting queue otherwise.
type PacketHandler interface {
	HandleServerPacket(inbound [][]byte) (outbound [][]byte)
}

// PacketHandlerFunc adapts a function to PacketHandler.
type PacketHandlerFunc func(inbound [][]byte) [][]byte

func (f PacketHandlerFunc) HandleServerPacket(inbound [][]byte) [][]byte {
	return f(inbound)
}

// queues holds the three link buffers: inbound collects decoded frames until
// the next tick, pending holds frames to write on the next flush, waiting
// holds frames accepted while the link was down.
type queues struct {
	inbound [][]byte
	pending [][]byte
	waiting [][]byte
}

func (q *queues) pushInbound(frame []byte) {
	q.inbound = append(q.inbound, frame)
}

// enqueue routes one caller frame by connection state.
func (q *queues) enqueue(frame []byte, connected bool) {
	if connected {
		q.pending = append(q.pending, frame)
	} else {
		q.waiting = append(q.waiting, frame)
	}
}

// runTick hands the accumulated inbound queue to the handler and routes its
// output. Connected: waiting merges into pending first, handler output lands
// on pending. Not connected: handler output, then the prior pending queue,
// are pushed onto the front of waiting, so frames enqueued in either state
// survive until a connection exists.
func (q *queues) runTick(connected bool, h PacketHandler) {
	inbound := q.inbound
	q.inbound = nil

	if connected {
		q.pending = append(q.pending, q.waiting...)
		q.waiting = nil
		q.pending = append(q.pending, h.HandleServerPacket(inbound)...)
		return
	}

	produced := h.HandleServerPacket(inbound)
	if len(produced) == 0 && len(q.pending) == 0 {
		return
	}
	merged := make([][]byte, 0, len(produced)+len(q.pending)+len(q.waiting))
	merged = append(merged, produced...)
	merged = append(merged, q.pending...)
	merged = append(merged, q.waiting...)
	q.waiting = merged
	q.pending = nil
}

// takeOutbound drains pending then waiting, in that order, for one flush.
func (q *queues) takeOutbound() [][]byte {
	if len(q.pending) == 0 && len(q.waiting) == 0 {
		return nil
	}
	out := make([][]byte, 0, len(q.pending)+len(q.waiting))
	out = append(out, q.pending...)
	out = append(out, q.waiting...)
	q.pending, q.waiting = nil, nil
	return out
}

// requeueWaiting pushes an unwritten flush tail back onto the front of
// waiting after a mid-flush write failure.
func (q *queues) requeueWaiting(frames [][]byte) {
	if len(frames) == 0 {
		return
	}
	merged := make([][]byte, 0, len(frames)+len(q.waiting))
	merged = append(merged, frames...)
	merged = append(merged, q.waiting...)
	q.waiting = merged
}
