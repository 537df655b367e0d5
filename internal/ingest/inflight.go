package ingest

import (
	"sync"

	"github.com/google/uuid"
)

// inFlight tracks accounts with a running cycle so ticks never overlap on
// the same account.
type inFlight struct {
	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

func newInFlight() *inFlight {
	return &inFlight{active: make(map[uuid.UUID]struct{})}
}

func (f *inFlight) acquire(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.active[id]; ok {
		return false
	}
	f.active[id] = struct{}{}
	return true
}

func (f *inFlight) release(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, id)
}
