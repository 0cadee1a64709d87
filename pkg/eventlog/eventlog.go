// Package eventlog persists guard decisions and hook staging state in a
// SQLite database. It backs the `intentguard logs` command and the
// PreToolUse/PostToolUse handoff in the hook binary.
package eventlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"intentguard/pkg/protocol"

	_ "modernc.org/sqlite" // SQLite driver
)

// tsLayout matches the strftime format used by the schema defaults.
const tsLayout = "2006-01-02T15:04:05.000Z"

// Event represents a single guard decision.
type Event struct {
	ID            int64
	Type          string
	Source        string
	IntentID      string
	Path          string
	Reason        string
	MutationClass string
	CreatedAt     time.Time
}

// Pending is pre-write content staged between the two hook phases.
type Pending struct {
	Key      string
	IntentID string
	Path     string
	Existed  bool
	Content  []byte
}

// Log is a read-write handle on the guard state database.
type Log struct {
	db *sql.DB
}

// Open opens (creating if needed) the state database at path with WAL
// journaling and a 5-second busy timeout, and applies the schema.
func Open(ctx context.Context, path string) (*Log, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// ":memory:" databases are per-connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s on %s: %w", pragma, path, err)
		}
	}
	if _, err := db.ExecContext(ctx, protocol.SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema on %s: %w", path, err)
	}

	return &Log{db: db}, nil
}

// Close releases the database connection.
// Safe to call multiple times.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// Record inserts e. ID and CreatedAt are assigned by the database.
func (l *Log) Record(ctx context.Context, e Event) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO events (type, source, intent_id, path, reason, mutation_class) VALUES (?, ?, ?, ?, ?, ?)`,
		e.Type, e.Source, e.IntentID, e.Path, e.Reason, e.MutationClass,
	)
	if err != nil {
		return fmt.Errorf("insert %s event: %w", e.Type, err)
	}
	return nil
}

// Stage stores p under p.Key, replacing any earlier content for that key.
func (l *Log) Stage(ctx context.Context, p Pending) error {
	existed := 0
	if p.Existed {
		existed = 1
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO pending_writes (key, intent_id, path, existed, content) VALUES (?, ?, ?, ?, ?)`,
		p.Key, p.IntentID, p.Path, existed, p.Content,
	)
	if err != nil {
		return fmt.Errorf("stage %s: %w", p.Key, err)
	}
	return nil
}

// Pop returns and removes the content staged under key. ok is false when
// nothing was staged.
func (l *Log) Pop(ctx context.Context, key string) (p Pending, ok bool, err error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Pending{}, false, fmt.Errorf("begin pop: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existed int
	row := tx.QueryRowContext(ctx,
		`SELECT key, intent_id, path, existed, content FROM pending_writes WHERE key = ?`, key)
	if err := row.Scan(&p.Key, &p.IntentID, &p.Path, &existed, &p.Content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Pending{}, false, nil
		}
		return Pending{}, false, fmt.Errorf("read pending %s: %w", key, err)
	}
	p.Existed = existed != 0

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_writes WHERE key = ?`, key); err != nil {
		return Pending{}, false, fmt.Errorf("delete pending %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return Pending{}, false, fmt.Errorf("commit pop: %w", err)
	}
	return p, true, nil
}

// PruneStaged deletes staged content older than cutoff and returns how many
// rows were removed.
func (l *Log) PruneStaged(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM pending_writes WHERE created_at < ?`, cutoff.UTC().Format(tsLayout))
	if err != nil {
		return 0, fmt.Errorf("prune pending writes: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
