package store

import (
	"fmt"

	"github.com/thatsimonsguy/minisplit-coordinator/db"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/config"
)

// OpenBackend builds the backend named by cfg.StateBackend. The returned close
// function releases the database handle for the sqlite backend.
func OpenBackend(cfg *config.Config) (Backend, func() error, error) {
	switch cfg.StateBackend {
	case "json":
		b, err := NewFileBackend(cfg.StateDir)
		if err != nil {
			return nil, nil, err
		}
		return b, func() error { return nil }, nil
	case "sqlite":
		conn, err := db.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return db.NewBackend(conn), conn.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}
