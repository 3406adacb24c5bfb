// Package link keeps one logical hub connection alive.
//
// Ownership boundary:
// - connection lifecycle state machine (connect, detect closure, backoff, reconnect)
// - the three frame queues (inbound, outbound-pending, outbound-waiting)
// - the cooperative tick driver and write-flush sub-task
//
// Lifecycle order:
// - Disconnected -> Connecting -> Connected -> AwaitingReconnect -> Connecting
//
// - explicit shutdown is terminal from any state.
//
// All lifecycle, queue, and reassembly state is owned by the Run loop
// goroutine; socket reads and dial attempts feed the loop through channels
// tagged with a connection generation so stale events are discarded. Payload
// bytes are opaque here; framing lives in internal/protocol/wire and payload
// meaning belongs to the application handler.
package link
