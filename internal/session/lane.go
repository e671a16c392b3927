package session

import "sync"

// LaneLock serializes work per session: exchanges on the same session run
// one at a time, exchanges on different sessions run in parallel.
//
// A global mutex protects the lane map and is held only long enough to look
// up or create a lane; each lane has its own mutex for intra-session ordering.
type LaneLock struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

// lane counts goroutines holding or waiting on it.
type lane struct {
	mu   sync.Mutex
	refs int
}

// NewLaneLock creates a ready-to-use LaneLock.
func NewLaneLock() *LaneLock {
	return &LaneLock{
		lanes: make(map[string]*lane),
	}
}

// Acquire locks the lane of sessionID. The caller must call Release with
// the same ID when done.
func (l *LaneLock) Acquire(sessionID string) {
	l.mu.Lock()
	ln, ok := l.lanes[sessionID]
	if !ok {
		ln = &lane{}
		l.lanes[sessionID] = ln
	}
	ln.refs++
	l.mu.Unlock()

	// Lock outside the global mutex so other sessions are not blocked.
	ln.mu.Lock()
}

// Release unlocks the lane of sessionID. Lanes nobody holds or waits on
// are dropped so the map does not grow with every session ever seen.
func (l *LaneLock) Release(sessionID string) {
	l.mu.Lock()
	ln, ok := l.lanes[sessionID]
	if !ok {
		l.mu.Unlock()
		return
	}
	ln.refs--
	if ln.refs == 0 {
		delete(l.lanes, sessionID)
	}
	l.mu.Unlock()

	ln.mu.Unlock()
}

// Len returns the number of lanes currently held or waited on.
func (l *LaneLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}
