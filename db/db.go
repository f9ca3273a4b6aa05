package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	name       TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS mode_changes (
	id            TEXT PRIMARY KEY,
	timestamp     TEXT NOT NULL,
	unit_id       TEXT,
	previous_mode TEXT NOT NULL,
	new_mode      TEXT NOT NULL,
	reason        TEXT NOT NULL,
	outside_temp  REAL
);
CREATE INDEX IF NOT EXISTS idx_mode_changes_timestamp ON mode_changes(timestamp);
`

// Open opens the SQLite database at path and applies the schema.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The records are rewritten whole on every save; one connection keeps
	// :memory: databases and writers consistent.
	conn.SetMaxOpenConns(1)

	if err := ApplySchema(conn); err != nil {
		conn.Close()
		return nil, err
	}
	log.Info().Str("path", path).Msg("Opened coordinator database")
	return conn, nil
}

func ApplySchema(conn *sql.DB) error {
	if _, err := conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
