package session

// State is the lifecycle of one verification session. Transitions are
// guarded by the table below; Terminated is reachable from anywhere.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateIceGathering
	StateNegotiating
	StateActive
	StateVerifying
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateIceGathering:
		return "ice_gathering"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateVerifying:
		return "verifying"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

var transitions = map[State][]State{
	StateIdle:         {StateConnecting, StateTerminated},
	StateConnecting:   {StateIceGathering, StateTerminated},
	StateIceGathering: {StateNegotiating, StateTerminated},
	StateNegotiating:  {StateActive, StateTerminated},
	StateActive:       {StateVerifying, StateTerminated},
	StateVerifying:    {StateTerminated},
	StateTerminated:   {},
}

func (s State) canTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
