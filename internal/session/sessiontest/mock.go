// Package sessiontest provides test helpers for the session package.
package sessiontest

import (
	"context"
	"sync"
	"time"

	"github.com/flemzord/aamo/internal/session"
)

// MockStore is a configurable test double for session.Store.
// Set the Func fields to control behavior. Unset funcs fall back to an
// embedded MemoryStore, so a zero MockStore behaves like a real store.
// All methods are safe for concurrent use.
type MockStore struct {
	HistoryFunc     func(ctx context.Context, sessionID string) ([]session.Turn, error)
	AppendFunc      func(ctx context.Context, sessionID string, user, assistant session.Turn) error
	ResetFunc       func(ctx context.Context, sessionID string) error
	SeedWelcomeFunc func(ctx context.Context, sessionID, welcome string) (bool, error)

	once sync.Once
	mem  *session.MemoryStore

	mu          sync.Mutex
	AppendCalls int
	ResetCalls  int
}

func (m *MockStore) backing() *session.MemoryStore {
	m.once.Do(func() { m.mem = session.NewMemoryStore(0) })
	return m.mem
}

// History delegates to HistoryFunc when set.
func (m *MockStore) History(ctx context.Context, sessionID string) ([]session.Turn, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, sessionID)
	}
	return m.backing().History(ctx, sessionID)
}

// Append delegates to AppendFunc when set and tracks call count.
func (m *MockStore) Append(ctx context.Context, sessionID string, user, assistant session.Turn) error {
	m.mu.Lock()
	m.AppendCalls++
	m.mu.Unlock()
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, sessionID, user, assistant)
	}
	return m.backing().Append(ctx, sessionID, user, assistant)
}

// Reset delegates to ResetFunc when set and tracks call count.
func (m *MockStore) Reset(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	m.ResetCalls++
	m.mu.Unlock()
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, sessionID)
	}
	return m.backing().Reset(ctx, sessionID)
}

// SeedWelcome delegates to SeedWelcomeFunc when set.
func (m *MockStore) SeedWelcome(ctx context.Context, sessionID, welcome string) (bool, error) {
	if m.SeedWelcomeFunc != nil {
		return m.SeedWelcomeFunc(ctx, sessionID, welcome)
	}
	return m.backing().SeedWelcome(ctx, sessionID, welcome)
}

// Len reports the backing store's session count.
func (m *MockStore) Len(ctx context.Context) (int, error) {
	return m.backing().Len(ctx)
}

// Range iterates the backing store.
func (m *MockStore) Range(ctx context.Context, fn func(session.Info) bool) error {
	return m.backing().Range(ctx, fn)
}

// Prune prunes the backing store.
func (m *MockStore) Prune(ctx context.Context, maxIdle time.Duration) (int, error) {
	return m.backing().Prune(ctx, maxIdle)
}

// Appends returns the number of Append calls so far.
func (m *MockStore) Appends() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.AppendCalls
}

// Interface guard.
var _ session.Store = (*MockStore)(nil)
