package session

// State is a step in the session lifecycle. Transitions only move forward.
type State int

const (
	Capturing State = iota
	Converting
	Transcribing
	Transforming
	Complete
	Failed
)

var stateNames = [...]string{
	Capturing:    "capturing",
	Converting:   "converting",
	Transcribing: "transcribing",
	Transforming: "transforming",
	Complete:     "complete",
	Failed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Complete || s == Failed
}

var transitions = map[State][]State{
	Capturing:    {Converting, Failed},
	Converting:   {Transcribing, Failed},
	Transcribing: {Transforming, Failed},
	Transforming: {Complete, Failed},
}

// CanTransition reports whether to directly follows s.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
