package db

import (
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent and valid for both dialects. Append new
// migrations at the end.
var migrations = []string{
	// Migration 1: listing by kind scans the primary key; locations are read
	// newest-first for the last known position.
	`CREATE INDEX IF NOT EXISTS idx_locations_tracker_recent
	     ON locations(tracker_id, recorded_at DESC)`,
}

// Migrate creates the schema and runs the migrations.
func Migrate(db *DB) error {
	if err := EnsureSchema(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
