package contact

// State is the submission state of a workflow.
type State int

const (
	Idle State = iota
	Submitting
	Succeeded
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	}
	return "unknown"
}

// MarshalText lets the state travel as a plain string in JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
