package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/controller/internal/config"
	dbpkg "github.com/BrandonDHaskell/Portunus/controller/internal/db"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/guard"
	sqlitestore "github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store/sqlite"
)

// storeSet is the opened database with its stores and guard.
type storeSet struct {
	db     *sql.DB
	writer *dbpkg.Worker
	guard  *guard.Guard
}

// openStores opens the configured database, or a throwaway in-memory one
// when ephemeral is set.
func openStores(ctx context.Context, cfg config.Config, ephemeral bool, logger *zap.Logger) (*storeSet, error) {
	var (
		sqlDB *sql.DB
		err   error
	)
	if ephemeral {
		sqlDB, err = dbpkg.OpenMemory(ctx, "portunus-"+uuid.NewString())
	} else {
		sqlDB, err = dbpkg.Open(ctx, dbpkg.Config{Path: cfg.DBPath, Env: cfg.Env})
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	writer := dbpkg.NewWorker(sqlDB)
	g := guard.New(guard.Stores{
		Classes:  sqlitestore.NewClassificationStore(sqlDB, writer, cfg.PartitionCapacity),
		Logs:     sqlitestore.NewAccessLogStore(sqlDB, writer),
		Commands: sqlitestore.NewCommandStateStore(sqlDB, writer),
	}, guard.WithLogger(logger))

	return &storeSet{db: sqlDB, writer: writer, guard: g}, nil
}

func (s *storeSet) Close() error {
	s.writer.Close()
	return s.db.Close()
}
