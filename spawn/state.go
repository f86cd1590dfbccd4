package spawn

// ConnectionState represents the current state of the agent connection.
type ConnectionState int

const (
	// StateDisconnected means no transport is open and nothing is scheduled.
	// It is the initial state.
	StateDisconnected ConnectionState = iota

	// StateConnecting means Connect was called and a transport is being opened.
	StateConnecting

	// StateConnected means the transport is open and ready.
	StateConnected

	// StateReconnecting means the connection was lost and an automatic attempt
	// is scheduled or in flight.
	StateReconnecting
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateEvent represents a state change event.
type StateEvent struct {
	OldState ConnectionState
	NewState ConnectionState
	Error    error // Optional error that caused the state change
}
