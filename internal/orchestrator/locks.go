package orchestrator

import "sync"

// requestLocks serializes pipeline work per request. A worker that cannot
// take a request's lock requeues the job instead of blocking.
type requestLocks struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

func newRequestLocks() *requestLocks {
	return &requestLocks{held: make(map[int64]struct{})}
}

// TryAcquire takes the lock for a request if free.
func (l *requestLocks) TryAcquire(requestID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[requestID]; taken {
		return false
	}
	l.held[requestID] = struct{}{}
	return true
}

// Release frees a request's lock.
func (l *requestLocks) Release(requestID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, requestID)
}
