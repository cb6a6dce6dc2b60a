package session

// State is one phase of the session lifecycle.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
	StateFinishing
	StateCompleted
	StateError
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateFinishing:
		return "finishing"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// transitions is the legal transition table: source state to allowed targets.
var transitions = map[State][]State{
	StateIdle:      {StateStarting, StateError},
	StateStarting:  {StateActive, StateError, StateIdle},
	StateActive:    {StateFinishing, StateError, StateIdle},
	StateFinishing: {StateCompleted, StateError, StateIdle},
	StateCompleted: {StateIdle},
	StateError:     {StateIdle},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}
