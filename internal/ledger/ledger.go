// Package ledger keeps a local SQLite record of contributions and queries.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"lazkit/internal/logging"
)

// Ledger is the local contribution and query history.
type Ledger struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the SQLite database at path. ":memory:" is accepted.
func Open(path string) (*Ledger, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ledger.Open")
	defer timer.Stop()

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("Failed to apply %q: %v", pragma, err)
		}
	}

	l := &Ledger{db: db, dbPath: path}
	if err := l.initialize(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	logging.Store("Ledger ready at %s", path)
	return l, nil
}

func (l *Ledger) initialize() error {
	stmts := []string{`
	CREATE TABLE IF NOT EXISTS contributions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		cid TEXT DEFAULT '',
		url TEXT DEFAULT '',
		file_id TEXT DEFAULT '',
		file_hash TEXT DEFAULT '',
		anchor_tx TEXT DEFAULT '',
		proof_tx TEXT DEFAULT '',
		reward_tx TEXT DEFAULT '',
		job_id TEXT DEFAULT '',
		node_url TEXT DEFAULT '',
		status TEXT NOT NULL,
		error TEXT DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
		`CREATE INDEX IF NOT EXISTS idx_contributions_created ON contributions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_contributions_file ON contributions(file_id)`,
		`
	CREATE TABLE IF NOT EXISTS queries (
		id TEXT PRIMARY KEY,
		file_id TEXT DEFAULT '',
		query TEXT NOT NULL,
		kind TEXT NOT NULL,
		result_count INTEGER DEFAULT 0,
		latency_ms INTEGER DEFAULT 0,
		error TEXT DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
		`CREATE INDEX IF NOT EXISTS idx_queries_created ON queries(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Ping checks the database connection.
func (l *Ledger) Ping() error {
	return l.db.Ping()
}

// Path returns the database path.
func (l *Ledger) Path() string {
	return l.dbPath
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
