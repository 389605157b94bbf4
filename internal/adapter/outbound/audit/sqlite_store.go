package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mcpcore/mcpcore/internal/adapter/outbound/sqlstore"
	"github.com/mcpcore/mcpcore/internal/domain/audit"
)

// sqliteGetRecentTimeout bounds the List scan GetRecent runs under, since
// the method has no context parameter of its own (matching FileAuditStore
// and MemoryAuditStore's GetRecent signature).
const sqliteGetRecentTimeout = 5 * time.Second

const sqliteAuditNamespace = "audit"

// SQLiteAuditStore persists audit records as JSON blobs in a sqlstore.Store,
// the durable alternative to the stdout/file backends for a deployment that
// wants tool-call history to survive a process restart without standing up
// a second daemon to manage rotated log files.
type SQLiteAuditStore struct {
	db *sqlstore.Store
}

// NewSQLiteAuditStore opens (or creates) a SQLite-backed audit store at path.
func NewSQLiteAuditStore(path string) (*SQLiteAuditStore, error) {
	db, err := sqlstore.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit db at %s: %w", path, err)
	}
	return &SQLiteAuditStore{db: db}, nil
}

var _ audit.AuditStore = (*SQLiteAuditStore)(nil)

// Append stores each record under a key that sorts lexically by time
// (RFC3339Nano has fixed-width fields up to the fractional seconds, so
// string ordering matches chronological ordering within the same
// namespace/List call).
func (s *SQLiteAuditStore) Append(ctx context.Context, records ...audit.AuditRecord) error {
	for _, r := range records {
		blob, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal audit record: %w", err)
		}
		key := fmt.Sprintf("%s/%s", r.Timestamp.UTC().Format(time.RFC3339Nano), r.RequestID)
		if err := s.db.Put(ctx, sqliteAuditNamespace, key, blob, r.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("persist audit record: %w", err)
		}
	}
	return nil
}

// Flush is a no-op: every Append already commits synchronously to SQLite.
func (s *SQLiteAuditStore) Flush(ctx context.Context) error {
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteAuditStore) Close() error {
	return s.db.Close()
}

// GetRecent returns the last n audit records, newest first.
func (s *SQLiteAuditStore) GetRecent(n int) []audit.AuditRecord {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteGetRecentTimeout)
	defer cancel()

	all, err := s.db.List(ctx, sqliteAuditNamespace)
	if err != nil {
		return nil
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if n > 0 && len(keys) > n {
		keys = keys[len(keys)-n:]
	}

	records := make([]audit.AuditRecord, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		var rec audit.AuditRecord
		if err := json.Unmarshal(all[keys[i]], &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records
}
