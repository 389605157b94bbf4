// Package sqlstore provides optional durable persistence backed by
// modernc.org/sqlite. It is the pure-Go SQLite store that supplements the
// module's in-memory stores (internal/adapter/outbound/memory) for
// deployments that need state to survive a process restart. Its only
// consumer is audit.SQLiteAuditStore, which keeps audit records here.
//
// The schema is a single key/value blob table. Callers own their own
// JSON encoding; the store only guarantees atomic get/set/delete and a
// list of one namespace's entries, the same shape the reference implementation's
// file-based state store offered, now backed by a real embedded
// database instead of a hand-rolled flock+temp-file dance.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store is a durable, JSON-blob key/value store.
type Store struct {
	db *sql.DB
}

// Open opens (and if necessary creates) a SQLite database at path.
// Pass ":memory:" for an ephemeral in-process store, useful in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: serialize writers, avoid SQLITE_BUSY churn

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		namespace TEXT NOT NULL,
		key       TEXT NOT NULL,
		value     BLOB NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (namespace, key)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put upserts value under (namespace, key).
func (s *Store) Put(ctx context.Context, namespace, key string, value []byte, updatedAt string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, namespace, key, value, updatedAt)
	if err != nil {
		return fmt.Errorf("sqlstore: put %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Get returns the value stored under (namespace, key). The second return
// value is false if no such entry exists.
func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE namespace = ? AND key = ?`, namespace, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlstore: get %s/%s: %w", namespace, key, err)
	}
	return value, true, nil
}

// Delete removes (namespace, key). Deleting a missing entry is not an error.
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE namespace = ? AND key = ?`, namespace, key); err != nil {
		return fmt.Errorf("sqlstore: delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// List returns every value stored under namespace, in key order.
func (s *Store) List(ctx context.Context, namespace string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE namespace = ? ORDER BY key`, namespace)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list %s: %w", namespace, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("sqlstore: scan %s: %w", namespace, err)
		}
		out[key] = value
	}
	return out, rows.Err()
}
