package chatclient

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	ReconnectPending
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ReconnectPending:
		return "reconnect_pending"
	default:
		return "unknown"
	}
}
