package sdk

// Phase is the lifecycle position of a session.
type Phase int

const (
	Uninitialized Phase = iota
	Initializing
	Ready
	Failed
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is a snapshot of the session lifecycle. Reason is set for Failed.
type State struct {
	Phase  Phase  `json:"phase"`
	Reason string `json:"reason,omitempty"`
}

func (s State) Ready() bool {
	return s.Phase == Ready
}

// attempt is one initialization run. Callers that arrive while it is in
// flight wait on done and all observe the same result.
type attempt struct {
	done  chan struct{}
	state State
	err   error
}

func newAttempt() *attempt {
	return &attempt{done: make(chan struct{})}
}

func (a *attempt) finish(state State, err error) {
	a.state, a.err = state, err
	close(a.done)
}
