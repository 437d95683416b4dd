package sqlite_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/BrandonDHaskell/Portunus/controller/internal/db"
)

// openTestDB opens a migrated in-memory database private to the test, the
// same one `run --ephemeral` uses.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.OpenMemory(context.Background(), "store_"+strings.ReplaceAll(t.Name(), "/", "_"))
	if err != nil {
		t.Fatalf("openTestDB: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(w.Close)
	return w
}
