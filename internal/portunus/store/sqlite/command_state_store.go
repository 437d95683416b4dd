package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/controller/internal/db"
)

const keyLastCommandID = "last_command_id"

type CommandStateStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewCommandStateStore(db *sql.DB, writer *dbpkg.Worker) *CommandStateStore {
	return &CommandStateStore{db: db, writer: writer}
}

// LastCommandID returns "" when no command has been processed yet.
func (s *CommandStateStore) LastCommandID(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `
SELECT value FROM command_state WHERE key = ?;
`, keyLastCommandID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("LastCommandID: %w", err)
	}
	return v, nil
}

func (s *CommandStateStore) SetLastCommandID(ctx context.Context, id string) error {
	nowMs := time.Now().UTC().UnixMilli()
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO command_state(key, value, updated_at_ms)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  value = excluded.value,
  updated_at_ms = excluded.updated_at_ms;
`, keyLastCommandID, id, nowMs); err != nil {
			return fmt.Errorf("SetLastCommandID upsert: %w", err)
		}
		return nil
	})
}
