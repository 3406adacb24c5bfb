package link

// State is the single connection lifecycle state. It replaces ad hoc
// connected/reconnecting flags: only the Run loop mutates it, everyone else
// reads the published copy through Client.State.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAwaitingReconnect
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAwaitingReconnect:
		return "awaiting_reconnect"
	default:
		return "unknown"
	}
}
