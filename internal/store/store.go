package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite run-history database: recorded runs, their findings,
// and a small key/value metadata table.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
  id              INTEGER PRIMARY KEY,
  started_at      TIMESTAMP NOT NULL,
  duration_ms     INTEGER NOT NULL DEFAULT 0,
  config_hash     TEXT,
  root            TEXT,
  files           INTEGER NOT NULL DEFAULT 0,
  findings        INTEGER NOT NULL DEFAULT 0,
  new_findings    INTEGER NOT NULL DEFAULT 0,
  suppressed      INTEGER NOT NULL DEFAULT 0,
  baselined       INTEGER NOT NULL DEFAULT 0,
  tooling         INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS findings (
  id              INTEGER PRIMARY KEY,
  run_id          INTEGER NOT NULL REFERENCES runs(id),
  rule_id         TEXT NOT NULL,
  severity        TEXT NOT NULL,
  kind            TEXT NOT NULL DEFAULT 'issue',
  path            TEXT NOT NULL,
  start_byte      INTEGER,
  end_byte        INTEGER,
  line            INTEGER,
  col             INTEGER,
  message         TEXT,
  signature       TEXT NOT NULL,
  suppressed      BOOLEAN DEFAULT FALSE,
  baselined       BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id);
CREATE INDEX IF NOT EXISTS idx_findings_signature ON findings(signature);
CREATE INDEX IF NOT EXISTS idx_findings_rule ON findings(rule_id);
`
