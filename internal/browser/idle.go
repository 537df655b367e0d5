package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

// idleTracker counts in-flight requests from network events. The page is
// idle once nothing is pending and nothing has changed for a quiet period.
type idleTracker struct {
	mu       sync.Mutex
	pending  map[network.RequestID]struct{}
	lastSeen time.Time
	now      func() time.Time
}

func newIdleTracker() *idleTracker {
	return &idleTracker{
		pending:  make(map[network.RequestID]struct{}),
		lastSeen: time.Now(),
		now:      time.Now,
	}
}

func (t *idleTracker) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.started(e.RequestID)
	case *network.EventLoadingFinished:
		t.finished(e.RequestID)
	case *network.EventLoadingFailed:
		t.finished(e.RequestID)
	}
}

func (t *idleTracker) started(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[id] = struct{}{}
	t.lastSeen = t.now()
}

func (t *idleTracker) finished(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, id)
	t.lastSeen = t.now()
}

func (t *idleTracker) idle(quiet time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending) == 0 && t.now().Sub(t.lastSeen) >= quiet
}

func (t *idleTracker) wait(ctx context.Context, quiet, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		if t.idle(quiet) {
			return nil
		}
		select {
		case <-ctx.Done():
			t.mu.Lock()
			n := len(t.pending)
			t.mu.Unlock()
			return fmt.Errorf("network not idle, %d requests pending: %w", n, ctx.Err())
		case <-ticker.C:
		}
	}
}
