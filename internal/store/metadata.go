package store

import (
	"database/sql"
	"fmt"
)

// Metadata keys written by the engine.
const (
	MetaConfigHash = "config_hash"
	MetaLastRun    = "last_run_id"
)

// GetMetadata returns the value stored under key, or "" if unset.
func (s *Store) GetMetadata(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %q: %w", key, err)
	}
	return v, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}
	return nil
}
