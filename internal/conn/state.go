package conn

import "fmt"

// State is the lifecycle state of the subscription connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Subscribed
	Reconnecting
	Closing
	Closed
)

var stateNames = [...]string{
	Disconnected:   "disconnected",
	Connecting:     "connecting",
	Authenticating: "authenticating",
	Subscribed:     "subscribed",
	Reconnecting:   "reconnecting",
	Closing:        "closing",
	Closed:         "closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// legal lists the states reachable from each state. Closing is reachable from
// every non-terminal state. Closed is reached directly only when the
// credential is rejected, either at the upgrade or during the handshake.
var legal = map[State][]State{
	Disconnected:   {Connecting, Closing},
	Connecting:     {Authenticating, Reconnecting, Closed, Closing},
	Authenticating: {Subscribed, Reconnecting, Closed, Closing},
	Subscribed:     {Reconnecting, Closing},
	Reconnecting:   {Connecting, Closing},
	Closing:        {Closed},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to State) bool {
	for _, s := range legal[from] {
		if s == to {
			return true
		}
	}
	return false
}
