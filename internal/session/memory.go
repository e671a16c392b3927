package session

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// MemoryStore is a concurrency-safe, in-process Store. Sessions are spread
// over fixed shards, each guarded by its own read-write mutex, so traffic on
// one session only contends with sessions hashed to the same shard.
// Nothing is persisted: a process restart clears all history.
type MemoryStore struct {
	shards [shardCount]shard
	window int

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	turns        []Turn
	lastActiveAt time.Time
}

// NewMemoryStore creates an empty store retaining window turns per session.
// A non-positive window selects DefaultWindow.
func NewMemoryStore(window int) *MemoryStore {
	s := &MemoryStore{
		window: ClampWindow(window),
		now:    time.Now,
	}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*entry)
	}
	return s
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// Window returns the number of turns retained per session.
func (s *MemoryStore) Window() int {
	return s.window
}

func (s *MemoryStore) shardFor(sessionID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return &s.shards[h.Sum32()%shardCount]
}

// History returns a copy of the session's turns.
func (s *MemoryStore) History(_ context.Context, sessionID string) ([]Turn, error) {
	sh := s.shardFor(sessionID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[sessionID]
	if !ok {
		return []Turn{}, nil
	}
	out := make([]Turn, len(e.turns))
	copy(out, e.turns)
	return out, nil
}

// Append adds both turns in order and evicts the oldest beyond the window.
func (s *MemoryStore) Append(_ context.Context, sessionID string, user, assistant Turn) error {
	sh := s.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[sessionID]
	if !ok {
		e = &entry{}
		sh.entries[sessionID] = e
	}
	e.turns = trimWindow(append(e.turns, user, assistant), s.window)
	e.lastActiveAt = s.now()
	return nil
}

// Reset removes the session. It is a no-op for unknown sessions.
func (s *MemoryStore) Reset(_ context.Context, sessionID string) error {
	sh := s.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.entries, sessionID)
	return nil
}

// SeedWelcome stores welcome as the first assistant turn of an empty session.
func (s *MemoryStore) SeedWelcome(_ context.Context, sessionID, welcome string) (bool, error) {
	sh := s.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.entries[sessionID]; ok && len(e.turns) > 0 {
		return false, nil
	}
	sh.entries[sessionID] = &entry{
		turns:        []Turn{AssistantTurn(welcome)},
		lastActiveAt: s.now(),
	}
	return true, nil
}

// Len returns the number of sessions with stored history.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n, nil
}

// Range calls fn for a snapshot of each session. Shard locks are not held
// while fn runs, so fn may call back into the store.
func (s *MemoryStore) Range(_ context.Context, fn func(Info) bool) error {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		infos := make([]Info, 0, len(sh.entries))
		for id, e := range sh.entries {
			infos = append(infos, Info{ID: id, Turns: len(e.turns), LastActiveAt: e.lastActiveAt})
		}
		sh.mu.RUnlock()

		for _, info := range infos {
			if !fn(info) {
				return nil
			}
		}
	}
	return nil
}

// Prune removes sessions idle for longer than maxIdle.
func (s *MemoryStore) Prune(_ context.Context, maxIdle time.Duration) (int, error) {
	now := s.now()
	pruned := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, e := range sh.entries {
			if now.Sub(e.lastActiveAt) > maxIdle {
				delete(sh.entries, id)
				pruned++
			}
		}
		sh.mu.Unlock()
	}
	return pruned, nil
}
