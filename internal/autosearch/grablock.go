package autosearch

import (
	"fmt"
	"sync"
)

// grabLock provides per-target single-flight locking so a scheduled sweep
// and a manual search never dispatch the same event twice.
type grabLock struct {
	mu    sync.Mutex
	locks map[string]struct{}
}

func newGrabLock() *grabLock {
	return &grabLock{locks: make(map[string]struct{})}
}

// lockKey identifies one search target.
func lockKey(eventID int64, part int) string {
	return fmt.Sprintf("%d:%d", eventID, part)
}

// TryAcquire attempts to take the lock for a key. Returns false if held.
func (g *grabLock) TryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.locks[key]; held {
		return false
	}
	g.locks[key] = struct{}{}
	return true
}

// Release frees the lock for a key.
func (g *grabLock) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.locks, key)
}
