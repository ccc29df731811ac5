package executor

import "sync"

// marketLocks is a keyed mutual-exclusion scope: one token per market id,
// held from trade record creation through execution resolution. Unrelated
// markets stay fully parallel.
type marketLocks struct {
	mu     sync.Mutex
	locked map[string]struct{}
}

func newMarketLocks() *marketLocks {
	return &marketLocks{locked: make(map[string]struct{})}
}

func (l *marketLocks) TryAcquire(marketID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.locked[marketID]; ok {
		return false
	}
	l.locked[marketID] = struct{}{}
	return true
}

func (l *marketLocks) Release(marketID string) {
	l.mu.Lock()
	delete(l.locked, marketID)
	l.mu.Unlock()
}
