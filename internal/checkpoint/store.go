// Package checkpoint persists per-thread conversation turns so a
// session can be restored after reconnect.
package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Turn is one persisted conversational message within a thread.
type Turn struct {
	ThreadID  string    `json:"thread_id"`
	Identity  string    `json:"identity"`
	Seq       int       `json:"seq"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages checkpoint persistence in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a checkpoint store using the given database path.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// NewStoreWithDB creates a checkpoint store using an existing database
// connection.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id TEXT NOT NULL,
			identity TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(thread_id, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_turns_thread ON turns(thread_id, seq);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Thread is a checkpoint handle bound to one session. It holds a
// dedicated connection acquired once at session start and released by
// Close on every session exit path.
type Thread struct {
	conn     *sql.Conn
	threadID string
	identity string
	nextSeq  int
}

// Acquire opens a thread handle, loading the next sequence number so
// appends continue where a previous session left off.
func (s *Store) Acquire(ctx context.Context, threadID, identity string) (*Thread, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	var maxSeq sql.NullInt64
	err = conn.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM turns WHERE thread_id = ?`, threadID,
	).Scan(&maxSeq)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("load sequence: %w", err)
	}

	next := 0
	if maxSeq.Valid {
		next = int(maxSeq.Int64) + 1
	}

	return &Thread{
		conn:     conn,
		threadID: threadID,
		identity: identity,
		nextSeq:  next,
	}, nil
}

// ThreadID returns the thread this handle is bound to.
func (t *Thread) ThreadID() string {
	return t.threadID
}

// Append records one turn and advances the sequence counter.
func (t *Thread) Append(ctx context.Context, role, content string, at time.Time) error {
	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO turns (thread_id, identity, seq, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.threadID, t.identity, t.nextSeq, role, content, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	t.nextSeq++
	return nil
}

// History returns the thread's persisted turns in sequence order.
func (t *Thread) History(ctx context.Context) ([]Turn, error) {
	rows, err := t.conn.QueryContext(ctx, `
		SELECT thread_id, identity, seq, role, content, created_at
		FROM turns WHERE thread_id = ? ORDER BY seq
	`, t.threadID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var tn Turn
		var createdStr string
		if err := rows.Scan(&tn.ThreadID, &tn.Identity, &tn.Seq, &tn.Role, &tn.Content, &createdStr); err != nil {
			return nil, err
		}
		tn.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
		turns = append(turns, tn)
	}
	return turns, rows.Err()
}

// Close releases the thread's database connection.
func (t *Thread) Close() error {
	return t.conn.Close()
}

// Stats returns checkpoint statistics.
func (s *Store) Stats() map[string]any {
	var total int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM turns`).Scan(&total)

	var threads int
	_ = s.db.QueryRow(`SELECT COUNT(DISTINCT thread_id) FROM turns`).Scan(&threads)

	return map[string]any{
		"turns":   total,
		"threads": threads,
	}
}
