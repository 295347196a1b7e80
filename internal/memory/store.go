// Package memory provides long-term memory storage for curated user facts.
package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Namespace is the record kind under which conversation memories live.
// The full storage key is (Namespace, identity, key).
const Namespace = "memories"

// Record is one namespaced long-term memory entry: a JSON object of
// extracted attributes keyed by the thread that produced it.
type Record struct {
	ID        uuid.UUID       `json:"id"`
	Namespace string          `json:"namespace"`
	Identity  string          `json:"identity"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store manages memory record persistence in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a memory store using the given database path.
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

// NewStoreWithDB creates a memory store using an existing database connection.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			identity TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(namespace, identity, key)
		);

		CREATE INDEX IF NOT EXISTS idx_memories_identity ON memories(namespace, identity);
		CREATE INDEX IF NOT EXISTS idx_memories_updated ON memories(updated_at DESC);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put creates or overwrites the record at (namespace, identity, key).
// One record slot exists per key; curation for a thread replaces the
// thread's prior record rather than merging into it.
func (s *Store) Put(namespace, identity, key string, value json.RawMessage) (*Record, error) {
	now := time.Now().UTC()

	var existingID string
	err := s.db.QueryRow(
		`SELECT id FROM memories WHERE namespace = ? AND identity = ? AND key = ?`,
		namespace, identity, key,
	).Scan(&existingID)

	if err == sql.ErrNoRows {
		id, _ := uuid.NewV7()
		rec := &Record{
			ID:        id,
			Namespace: namespace,
			Identity:  identity,
			Key:       key,
			Value:     value,
			CreatedAt: now,
			UpdatedAt: now,
		}

		_, err = s.db.Exec(`
			INSERT INTO memories (id, namespace, identity, key, value, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id.String(), namespace, identity, key, string(value),
			now.Format(time.RFC3339), now.Format(time.RFC3339))
		if err != nil {
			return nil, fmt.Errorf("insert: %w", err)
		}
		return rec, nil
	} else if err != nil {
		return nil, fmt.Errorf("check existing: %w", err)
	}

	_, err = s.db.Exec(`
		UPDATE memories SET value = ?, updated_at = ?
		WHERE namespace = ? AND identity = ? AND key = ?
	`, string(value), now.Format(time.RFC3339), namespace, identity, key)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	id, _ := uuid.Parse(existingID)
	return &Record{
		ID:        id,
		Namespace: namespace,
		Identity:  identity,
		Key:       key,
		Value:     value,
		UpdatedAt: now,
	}, nil
}

// Get retrieves the record at (namespace, identity, key).
func (s *Store) Get(namespace, identity, key string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT id, namespace, identity, key, value, created_at, updated_at
		FROM memories WHERE namespace = ? AND identity = ? AND key = ?
	`, namespace, identity, key)
	return scanRecord(row)
}

// Search returns up to limit records for the identity, ranked by how
// many query terms appear in the record value, most recent first among
// ties. Like a nearest-neighbor search, it always returns the best
// limit candidates even when nothing matches well; callers that need a
// relevance floor must apply their own.
func (s *Store) Search(namespace, identity, query string, limit int) ([]*Record, error) {
	rows, err := s.db.Query(`
		SELECT id, namespace, identity, key, value, created_at, updated_at
		FROM memories
		WHERE namespace = ? AND identity = ?
		ORDER BY updated_at DESC
	`, namespace, identity)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	type scored struct {
		rec   *Record
		score int
		order int
	}

	terms := queryTerms(query)
	var candidates []scored
	for rows.Next() {
		rec, err := scanRecordRows(rows)
		if err != nil {
			return nil, err
		}
		value := strings.ToLower(string(rec.Value))
		score := 0
		for _, t := range terms {
			if strings.Contains(value, t) {
				score++
			}
		}
		candidates = append(candidates, scored{rec: rec, score: score, order: len(candidates)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	records := make([]*Record, len(candidates))
	for i, c := range candidates {
		records[i] = c.rec
	}
	return records, nil
}

// queryTerms lowercases and splits a search query, dropping terms too
// short to discriminate.
func queryTerms(query string) []string {
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

// Stats returns memory record statistics.
func (s *Store) Stats() map[string]any {
	var total int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&total)

	var identities int
	_ = s.db.QueryRow(`SELECT COUNT(DISTINCT identity) FROM memories`).Scan(&identities)

	return map[string]any{
		"total":      total,
		"identities": identities,
	}
}

func scanRecord(row *sql.Row) (*Record, error) {
	var r Record
	var idStr, value, createdStr, updatedStr string

	err := row.Scan(&idStr, &r.Namespace, &r.Identity, &r.Key, &value, &createdStr, &updatedStr)
	if err != nil {
		return nil, err
	}

	r.ID, _ = uuid.Parse(idStr)
	r.Value = json.RawMessage(value)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)

	return &r, nil
}

func scanRecordRows(rows *sql.Rows) (*Record, error) {
	var r Record
	var idStr, value, createdStr, updatedStr string

	err := rows.Scan(&idStr, &r.Namespace, &r.Identity, &r.Key, &value, &createdStr, &updatedStr)
	if err != nil {
		return nil, err
	}

	r.ID, _ = uuid.Parse(idStr)
	r.Value = json.RawMessage(value)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)

	return &r, nil
}
