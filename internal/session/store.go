package session

import (
	"context"
	"errors"
	"time"
)

// DefaultWindow is the number of turns retained per session when no
// window is configured.
const DefaultWindow = 10

// ErrStoreClosed is returned by durable stores after they have been closed.
var ErrStoreClosed = errors.New("session: store closed")

// Info is a point-in-time summary of one session.
type Info struct {
	ID           string
	Turns        int
	LastActiveAt time.Time
}

// Store manages per-session conversation history.
//
// Every implementation keeps at most its configured window of turns per
// session, evicting the oldest turns first. Implementations must be safe
// for concurrent use; operations on different sessions never interfere.
type Store interface {
	// History returns the ordered turns of a session, or an empty slice
	// if the session is unknown. It does not mutate the store.
	History(ctx context.Context, sessionID string) ([]Turn, error)

	// Append adds user then assistant and truncates the history to the
	// most recent window entries.
	Append(ctx context.Context, sessionID string, user, assistant Turn) error

	// Reset removes all history for a session. Resetting an unknown
	// session is a no-op.
	Reset(ctx context.Context, sessionID string) error

	// SeedWelcome initializes an empty session with a single assistant
	// turn. It reports whether the session was seeded; existing history
	// is never overwritten.
	SeedWelcome(ctx context.Context, sessionID, welcome string) (bool, error)

	// Len returns the number of sessions with stored history.
	Len(ctx context.Context) (int, error)

	// Range calls fn for each session. If fn returns false, iteration stops.
	Range(ctx context.Context, fn func(Info) bool) error

	// Prune removes sessions idle for longer than maxIdle and returns how
	// many were removed.
	Prune(ctx context.Context, maxIdle time.Duration) (int, error)
}

// ClampWindow returns a usable window size. A window below two could not
// hold one user/assistant pair.
func ClampWindow(window int) int {
	if window <= 0 {
		return DefaultWindow
	}
	if window < 2 {
		return 2
	}
	return window
}

// trimWindow returns the last window turns of turns. When trimming is
// needed the result is a fresh slice so the evicted prefix can be collected.
func trimWindow(turns []Turn, window int) []Turn {
	if len(turns) <= window {
		return turns
	}
	out := make([]Turn, window)
	copy(out, turns[len(turns)-window:])
	return out
}
