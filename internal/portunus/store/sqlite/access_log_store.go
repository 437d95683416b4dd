package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/BrandonDHaskell/Portunus/controller/internal/db"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

type AccessLogStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessLogStore(db *sql.DB, writer *dbpkg.Worker) *AccessLogStore {
	return &AccessLogStore{db: db, writer: writer}
}

func (s *AccessLogStore) Append(ctx context.Context, e store.LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if e.UID == "" {
		e.UID = "-"
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_log(id, at_ms, kind, uid, info) VALUES (?, ?, ?, ?, ?);
`, e.ID, e.At.UTC().UnixMilli(), string(e.Kind), e.UID, e.Info); err != nil {
			return fmt.Errorf("Append insert: %w", err)
		}
		return nil
	})
}

func (s *AccessLogStore) Recent(ctx context.Context, limit int) ([]store.LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, at_ms, kind, uid, info
FROM access_log
ORDER BY at_ms DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("Recent: %w", err)
	}
	defer rows.Close()

	var out []store.LogEntry
	for rows.Next() {
		var (
			e    store.LogEntry
			atMs int64
			kind string
		)
		if err := rows.Scan(&e.ID, &atMs, &kind, &e.UID, &e.Info); err != nil {
			return nil, fmt.Errorf("Recent scan: %w", err)
		}
		e.At = time.UnixMilli(atMs).UTC()
		e.Kind = types.LogKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneOlderThan deletes log entries recorded before cutoff.
func (s *AccessLogStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM access_log WHERE at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
