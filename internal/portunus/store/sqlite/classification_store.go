package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/controller/internal/db"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// ClassificationStore persists the three partitions in uid_entries and
// their maintained counts in partition_counts. Reads go straight to db;
// writes go through the single writer.
type ClassificationStore struct {
	db       *sql.DB
	writer   *dbpkg.Worker
	capacity int
}

func NewClassificationStore(db *sql.DB, writer *dbpkg.Worker, capacity int) *ClassificationStore {
	if capacity <= 0 {
		capacity = store.DefaultCapacity
	}
	return &ClassificationStore{db: db, writer: writer, capacity: capacity}
}

func partitionKey(p types.Classification) (string, error) {
	if !p.IsPartition() {
		return "", store.ErrUnknownPartition
	}
	return p.String(), nil
}

func parsePartitionKey(s string) (types.Classification, error) {
	p, err := types.ParsePartition(s)
	if err != nil {
		return types.Unclassified, fmt.Errorf("corrupt partition value %q: %w", s, err)
	}
	return p, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lookup(ctx context.Context, q queryer, key string) (types.Classification, error) {
	var part string
	err := q.QueryRowContext(ctx, `
SELECT partition FROM uid_entries WHERE uid = ?;
`, key).Scan(&part)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Unclassified, nil
	}
	if err != nil {
		return types.Unclassified, err
	}
	return parsePartitionKey(part)
}

func maintainedCount(ctx context.Context, q queryer, part string) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `
SELECT count FROM partition_counts WHERE partition = ?;
`, part).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *ClassificationStore) Classify(ctx context.Context, uid string) (types.Classification, error) {
	key := types.NormalizeUID(uid)
	if key == "" {
		return types.Unclassified, nil
	}
	c, err := lookup(ctx, s.db, key)
	if err != nil {
		return types.Unclassified, fmt.Errorf("Classify: %w", err)
	}
	return c, nil
}

func (s *ClassificationStore) AddToWhitelist(ctx context.Context, uid string, bypassCapacity bool) (bool, error) {
	return s.addExclusive(ctx, uid, types.Whitelist, bypassCapacity)
}

func (s *ClassificationStore) AddToBlacklist(ctx context.Context, uid string, bypassCapacity bool) (bool, error) {
	return s.addExclusive(ctx, uid, types.Blacklist, bypassCapacity)
}

// addExclusive evicts first and inserts second, in one transaction. An
// eviction is kept even when the insert is refused for capacity.
func (s *ClassificationStore) addExclusive(ctx context.Context, uid string, target types.Classification, bypassCapacity bool) (bool, error) {
	key := types.NormalizeUID(uid)
	if key == "" {
		return false, nil
	}
	targetKey, err := partitionKey(target)
	if err != nil {
		return false, err
	}

	var added bool
	err = s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		current, err := lookup(ctx, tx, key)
		if err != nil {
			return fmt.Errorf("addExclusive lookup: %w", err)
		}
		if current == target {
			added = true
			return nil
		}
		if current != types.Unclassified {
			if err := deleteKey(ctx, tx, key, current.String()); err != nil {
				return err
			}
		}

		if !bypassCapacity {
			n, err := maintainedCount(ctx, tx, targetKey)
			if err != nil {
				return fmt.Errorf("addExclusive count: %w", err)
			}
			if n >= s.capacity {
				return nil
			}
		}

		if err := insertKey(ctx, tx, key, targetKey); err != nil {
			return err
		}
		added = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

func (s *ClassificationStore) AddToPending(ctx context.Context, uid string) (bool, error) {
	key := types.NormalizeUID(uid)
	if key == "" {
		return false, nil
	}

	pendingKey := types.Pending.String()
	var added bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		current, err := lookup(ctx, tx, key)
		if err != nil {
			return fmt.Errorf("AddToPending lookup: %w", err)
		}
		if current != types.Unclassified {
			return nil
		}
		n, err := maintainedCount(ctx, tx, pendingKey)
		if err != nil {
			return fmt.Errorf("AddToPending count: %w", err)
		}
		if n >= s.capacity {
			return nil
		}
		if err := insertKey(ctx, tx, key, pendingKey); err != nil {
			return err
		}
		added = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

func insertKey(ctx context.Context, tx *sql.Tx, key, part string) error {
	if _, err := tx.ExecContext(ctx, `
INSERT INTO uid_entries(uid, partition, added_at_ms) VALUES (?, ?, ?);
`, key, part, time.Now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("insert %s into %s: %w", key, part, err)
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE partition_counts SET count = count + 1 WHERE partition = ?;
`, part); err != nil {
		return fmt.Errorf("increment %s count: %w", part, err)
	}
	return nil
}

func deleteKey(ctx context.Context, tx *sql.Tx, key, part string) error {
	res, err := tx.ExecContext(ctx, `
DELETE FROM uid_entries WHERE uid = ? AND partition = ?;
`, key, part)
	if err != nil {
		return fmt.Errorf("delete %s from %s: %w", key, part, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE partition_counts SET count = count - 1 WHERE partition = ?;
`, part); err != nil {
		return fmt.Errorf("decrement %s count: %w", part, err)
	}
	return nil
}

func (s *ClassificationStore) RemoveUID(ctx context.Context, uid string) error {
	key := types.NormalizeUID(uid)
	if key == "" {
		return nil
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		current, err := lookup(ctx, tx, key)
		if err != nil {
			return fmt.Errorf("RemoveUID lookup: %w", err)
		}
		if current == types.Unclassified {
			return nil
		}
		return deleteKey(ctx, tx, key, current.String())
	})
}

func (s *ClassificationStore) ClearPartition(ctx context.Context, p types.Classification) error {
	part, err := partitionKey(p)
	if err != nil {
		return err
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return clearPartition(ctx, tx, part)
	})
}

func clearPartition(ctx context.Context, tx *sql.Tx, part string) error {
	if _, err := tx.ExecContext(ctx, `
DELETE FROM uid_entries WHERE partition = ?;
`, part); err != nil {
		return fmt.Errorf("clear %s: %w", part, err)
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE partition_counts SET count = 0 WHERE partition = ?;
`, part); err != nil {
		return fmt.Errorf("reset %s count: %w", part, err)
	}
	return nil
}

func (s *ClassificationStore) FactoryReset(ctx context.Context) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, p := range types.Partitions {
			if err := clearPartition(ctx, tx, p.String()); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceAll clears and reloads every partition in a single transaction.
func (s *ClassificationStore) ReplaceAll(ctx context.Context, whitelist, blacklist []string) error {
	wl, bl := store.Replacement(whitelist, blacklist)
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, p := range types.Partitions {
			if err := clearPartition(ctx, tx, p.String()); err != nil {
				return err
			}
		}
		for _, key := range wl {
			if err := insertKey(ctx, tx, key, types.Whitelist.String()); err != nil {
				return fmt.Errorf("ReplaceAll: %w", err)
			}
		}
		for _, key := range bl {
			if err := insertKey(ctx, tx, key, types.Blacklist.String()); err != nil {
				return fmt.Errorf("ReplaceAll: %w", err)
			}
		}
		return nil
	})
}

// ForEach streams keys from the open cursor. The database has a single
// connection, so fn must not touch the store while iteration runs.
func (s *ClassificationStore) ForEach(ctx context.Context, p types.Classification, fn func(uid string) error) error {
	part, err := partitionKey(p)
	if err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT uid FROM uid_entries WHERE partition = ? ORDER BY uid;
`, part)
	if err != nil {
		return fmt.Errorf("ForEach %s: %w", part, err)
	}
	defer rows.Close()

	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return fmt.Errorf("ForEach %s scan: %w", part, err)
		}
		if err := fn(uid); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *ClassificationStore) Counts(ctx context.Context) (types.PartitionCounts, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT partition, count FROM partition_counts;
`)
	if err != nil {
		return types.PartitionCounts{}, fmt.Errorf("Counts: %w", err)
	}
	defer rows.Close()

	var c types.PartitionCounts
	for rows.Next() {
		var (
			part string
			n    int
		)
		if err := rows.Scan(&part, &n); err != nil {
			return types.PartitionCounts{}, fmt.Errorf("Counts scan: %w", err)
		}
		p, err := parsePartitionKey(part)
		if err != nil {
			return types.PartitionCounts{}, err
		}
		switch p {
		case types.Whitelist:
			c.Whitelist = n
		case types.Blacklist:
			c.Blacklist = n
		case types.Pending:
			c.Pending = n
		}
	}
	return c, rows.Err()
}

func (s *ClassificationStore) VerifyCounts(ctx context.Context) ([]store.CountMismatch, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT p.partition, p.count,
       (SELECT COUNT(*) FROM uid_entries e WHERE e.partition = p.partition)
FROM partition_counts p
ORDER BY p.partition;
`)
	if err != nil {
		return nil, fmt.Errorf("VerifyCounts: %w", err)
	}
	defer rows.Close()

	var out []store.CountMismatch
	for rows.Next() {
		var (
			part               string
			maintained, actual int
		)
		if err := rows.Scan(&part, &maintained, &actual); err != nil {
			return nil, fmt.Errorf("VerifyCounts scan: %w", err)
		}
		if maintained == actual {
			continue
		}
		p, err := parsePartitionKey(part)
		if err != nil {
			return nil, err
		}
		out = append(out, store.CountMismatch{Partition: p, Maintained: maintained, Actual: actual})
	}
	return out, rows.Err()
}
