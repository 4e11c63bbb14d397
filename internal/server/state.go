package server

// State is a step of the bootstrap lifecycle.
type State int32

const (
	StateNotStarted State = iota
	StateGeneratingCA
	StateGeneratingLeaf
	StateListening
	StateStopped
	StateCrashed
)

var stateNames = [...]string{
	StateNotStarted:     "not_started",
	StateGeneratingCA:   "generating_ca",
	StateGeneratingLeaf: "generating_leaf",
	StateListening:      "listening",
	StateStopped:        "stopped",
	StateCrashed:        "crashed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
