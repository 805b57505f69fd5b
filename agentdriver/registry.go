package agentdriver

import "sync"

// TurnKey identifies one live turn in a Registry.
type TurnKey struct {
	ProjectSlug   string
	WorkspaceName string
	ThreadID      string
}

// Registry tracks in-flight turns and their cancellation flags. It is owned
// by the orchestrating layer and passed by reference; there is no package
// global.
type Registry struct {
	mu    sync.Mutex
	turns map[TurnKey]*CancelFlag
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{turns: make(map[TurnKey]*CancelFlag)}
}

// Begin registers a new turn and returns its cancel flag. Returns false if a
// turn is already running for the key.
func (r *Registry) Begin(key TurnKey) (*CancelFlag, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, running := r.turns[key]; running {
		return nil, false
	}
	flag := &CancelFlag{}
	r.turns[key] = flag
	return flag, true
}

// End removes a finished turn.
func (r *Registry) End(key TurnKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.turns, key)
}

// Cancel sets the cancel flag for a running turn. Returns false if no turn is
// running for the key.
func (r *Registry) Cancel(key TurnKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	flag, running := r.turns[key]
	if running {
		flag.Cancel()
	}
	return running
}

// Running reports whether a turn is in flight for the key.
func (r *Registry) Running(key TurnKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, running := r.turns[key]
	return running
}
