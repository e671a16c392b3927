package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/flemzord/aamo/internal/session"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Store is a session.Store persisted in a SQLite database. Each session
// keeps at most Window turns; older rows are deleted in the same
// transaction that appends new ones.
type Store struct {
	db     *sql.DB
	window int
	now    func() time.Time
	closed atomic.Bool
}

var _ session.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates it.
func Open(ctx context.Context, path string, cfg Config) (*Store, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	// SQLite handles one writer at a time; a single connection keeps
	// PRAGMAs applied and serialises transactions.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=" + cfg.Journal,
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds()),
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		window: session.ClampWindow(cfg.Window),
		now:    time.Now,
	}, nil
}

// Window reports the number of turns kept per session.
func (s *Store) Window() int {
	return s.window
}

// Close releases the database. Later calls return session.ErrStoreClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// History returns the turns of a session in chronological order.
func (s *Store) History(ctx context.Context, sessionID string) ([]session.Turn, error) {
	if s.closed.Load() {
		return nil, session.ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content
		FROM turns
		WHERE session_id = ?
		ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	turns := make([]session.Turn, 0, s.window)
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("sqlite: scan turn: %w", err)
		}
		turns = append(turns, session.Turn{Role: session.Role(role), Text: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: history rows: %w", err)
	}
	return turns, nil
}

// Append stores user then assistant and trims the session to the window.
func (s *Store) Append(ctx context.Context, sessionID string, user, assistant session.Turn) error {
	if s.closed.Load() {
		return session.ErrStoreClosed
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var last int64
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(seq), 0) FROM turns WHERE session_id = ?", sessionID,
		).Scan(&last); err != nil {
			return fmt.Errorf("sqlite: read last seq: %w", err)
		}

		at := s.now().UnixMilli()
		for i, turn := range []session.Turn{user, assistant} {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO turns (session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
				sessionID, last+int64(i)+1, string(turn.Role), turn.Text, at,
			); err != nil {
				return fmt.Errorf("sqlite: insert turn: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM turns WHERE session_id = ? AND seq <= ?",
			sessionID, last+2-int64(s.window),
		); err != nil {
			return fmt.Errorf("sqlite: trim window: %w", err)
		}
		return nil
	})
}

// Reset deletes every turn of a session.
func (s *Store) Reset(ctx context.Context, sessionID string) error {
	if s.closed.Load() {
		return session.ErrStoreClosed
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("sqlite: reset: %w", err)
	}
	return nil
}

// SeedWelcome stores welcome as the only turn of an empty session.
func (s *Store) SeedWelcome(ctx context.Context, sessionID, welcome string) (bool, error) {
	if s.closed.Load() {
		return false, session.ErrStoreClosed
	}

	var seeded bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM turns WHERE session_id = ?", sessionID,
		).Scan(&n); err != nil {
			return fmt.Errorf("sqlite: count turns: %w", err)
		}
		if n > 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO turns (session_id, seq, role, content, created_at) VALUES (?, 1, ?, ?, ?)",
			sessionID, string(session.RoleAssistant), welcome, s.now().UnixMilli(),
		); err != nil {
			return fmt.Errorf("sqlite: seed welcome: %w", err)
		}
		seeded = true
		return nil
	})
	return seeded, err
}

// Len returns the number of sessions with at least one turn.
func (s *Store) Len(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, session.ErrStoreClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT session_id) FROM turns").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count sessions: %w", err)
	}
	return n, nil
}

// Range calls fn for each session ordered by ID. The rows are read before
// fn runs, so fn may call back into the store.
func (s *Store) Range(ctx context.Context, fn func(session.Info) bool) error {
	if s.closed.Load() {
		return session.ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, COUNT(*), MAX(created_at)
		FROM turns
		GROUP BY session_id
		ORDER BY session_id`)
	if err != nil {
		return fmt.Errorf("sqlite: list sessions: %w", err)
	}

	var infos []session.Info
	for rows.Next() {
		var (
			info session.Info
			last int64
		)
		if err := rows.Scan(&info.ID, &info.Turns, &last); err != nil {
			_ = rows.Close()
			return fmt.Errorf("sqlite: scan session: %w", err)
		}
		info.LastActiveAt = time.UnixMilli(last)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("sqlite: list sessions rows: %w", err)
	}
	_ = rows.Close()

	for _, info := range infos {
		if !fn(info) {
			break
		}
	}
	return nil
}

// Prune removes sessions whose newest turn is older than maxIdle.
func (s *Store) Prune(ctx context.Context, maxIdle time.Duration) (int, error) {
	if s.closed.Load() {
		return 0, session.ErrStoreClosed
	}

	cutoff := s.now().Add(-maxIdle).UnixMilli()
	var removed int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		const idle = `SELECT session_id FROM turns GROUP BY session_id HAVING MAX(created_at) < ?`
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM ("+idle+")", cutoff).Scan(&removed); err != nil {
			return fmt.Errorf("sqlite: count idle sessions: %w", err)
		}
		if removed == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE session_id IN ("+idle+")", cutoff); err != nil {
			return fmt.Errorf("sqlite: prune: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}
