package countdown

import "sync"

// Registry maps heat ids to their countdown timers, creating them lazily.
// The registry lock protects only the creation path; timer operations use
// each timer's own lock. Timers are never evicted; heat cardinality is
// small and bounded by event size.
type Registry struct {
	mu              sync.Mutex
	timers          map[int64]*Timer
	defaultDuration int
	broadcaster     Broadcaster
}

// NewRegistry creates an empty registry. A non-positive defaultDuration
// falls back to DefaultDuration.
func NewRegistry(defaultDuration int, broadcaster Broadcaster) *Registry {
	if defaultDuration <= 0 {
		defaultDuration = DefaultDuration
	}
	return &Registry{
		timers:          make(map[int64]*Timer),
		defaultDuration: defaultDuration,
		broadcaster:     broadcaster,
	}
}

// GetOrCreate returns the heat's timer, instantiating it with the default
// duration on first access.
func (r *Registry) GetOrCreate(heatID int64) *Timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[heatID]
	if !ok {
		t = newTimer(heatID, r.defaultDuration, r.broadcaster)
		r.timers[heatID] = t
	}
	return t
}
