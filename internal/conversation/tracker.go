package conversation

import "sync"

// ReflectionTracker counts turns and appends an insight every refreshTurns.
type ReflectionTracker struct {
	refreshTurns int

	mu          sync.Mutex
	turns       int
	reflections []string
}

func NewReflectionTracker(refreshTurns int) *ReflectionTracker {
	if refreshTurns <= 0 {
		refreshTurns = 1
	}
	return &ReflectionTracker{refreshTurns: refreshTurns}
}

// MaybeAdd counts one turn and records insight when the turn count hits a
// multiple of refreshTurns. It returns the current reflections.
func (t *ReflectionTracker) MaybeAdd(insight string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns++
	if t.turns%t.refreshTurns == 0 {
		t.reflections = append(t.reflections, insight)
	}
	return append([]string(nil), t.reflections...)
}

func (t *ReflectionTracker) Reflections() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.reflections...)
}
