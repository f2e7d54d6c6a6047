package mqtt

// ConnectionState is the lifecycle state of the broker connection.
//
//	Disconnected -> Connecting -> Connected
//	Connected -> Reconnecting (link lost) -> Connecting -> Connected
//	any -> Disconnected (Stop, or reconnect attempts exhausted)
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

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
