package ssh

// State is a step of the connection lifecycle.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateAuthenticating
	StateEstablished
	StateInUse
	StateClosed
	StateFailed
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateResolving:      "resolving",
	StateAuthenticating: "authenticating",
	StateEstablished:    "established",
	StateInUse:          "in use",
	StateClosed:         "closed",
	StateFailed:         "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition can follow.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}
