// Package sqlite implements the durable event store and the legacy items
// table on SQLite. The event log is the source of truth: appends are
// idempotent by event id, seq numbers are assigned exactly once by the
// database, and the log survives restarts.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/meshline/syncd/pkg/types"
)

// dbFileName is the database file created under the data directory.
const dbFileName = "syncd.db"

// Backend owns the SQLite database holding the event log and the legacy
// item rows.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{}
}

// Attach initializes the backend with the given configuration. Creates the
// data directory if it does not exist, opens (or creates) the database file,
// and applies the schema. An existing database is reused: the event log is
// durable across restarts.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, dbFileName))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	// SQLite supports one writer at a time; a single connection serializes
	// concurrent appends at the storage layer.
	db.SetMaxOpenConns(1)

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	b.db = db
	b.config = config
	b.attached = true
	return nil
}

// Detach closes the database. After Detach, all operations return
// ErrDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil // idempotent
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return fmt.Errorf("close database: %w", err)
		}
		b.db = nil
	}
	b.attached = false
	return nil
}

// ensureAttached returns ErrDetached when the backend is not attached.
// The caller must hold b.mu (read or write lock).
func (b *Backend) ensureAttached() error {
	if !b.attached {
		return types.ErrDetached
	}
	return nil
}
