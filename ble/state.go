package ble

// State is the lifecycle of a Central connection.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateConnected
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handler receives lifecycle changes and raw notifications from a Central.
// Both methods are called from the Central's goroutine, in order.
type Handler interface {
	OnState(state State)
	OnNotification(data []byte)
}
