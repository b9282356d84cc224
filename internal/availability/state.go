package availability

// State is a device's availability.
type State int

// Availability states.
const (
	Offline State = iota
	Online
)

// Payloads published on availability topics.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// String returns the payload published for s.
func (s State) String() string {
	if s == Online {
		return PayloadOnline
	}
	return PayloadOffline
}

// Event drives availability transitions.
type Event int

// Availability events.
const (
	EventConnected Event = iota
	EventDisconnected
	EventShutdown
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// transitions is exhaustive over State x Event.
var transitions = map[State]map[Event]State{
	Offline: {
		EventConnected:    Online,
		EventDisconnected: Offline,
		EventShutdown:     Offline,
	},
	Online: {
		EventConnected:    Online,
		EventDisconnected: Offline,
		EventShutdown:     Offline,
	},
}

// Next returns the state reached from s on e. Unknown pairs leave s
// unchanged.
func Next(s State, e Event) State {
	if next, ok := transitions[s][e]; ok {
		return next
	}
	return s
}
