package embedding

import "sync"

// State is one of the three lifecycle states of the embedding engine, per
// spec.md §4.2.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// lifecycle guards the Uninitialized -> Initializing -> Ready transition
// with a single mutex held for the whole duration of initialization, so
// concurrent callers block on Lock() rather than busy-polling a state field,
// per spec.md §4.2 ("Concurrent callers during initialization block on that
// mutex, then observe Ready and proceed").
type lifecycle struct {
	mu    sync.Mutex
	state State
}

// withInit runs fn while holding mu and transitions state to Initializing
// for its duration, Ready on success, back to Uninitialized on failure. If
// the engine is already Ready and a fresh init wasn't requested, fn is
// skipped.
func (l *lifecycle) withInit(forceReinit bool, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateReady && !forceReinit {
		return nil
	}
	l.state = StateInitializing
	if err := fn(); err != nil {
		l.state = StateUninitialized
		return err
	}
	l.state = StateReady
	return nil
}

func (l *lifecycle) current() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
