package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
)

const (
	systemStateRecord = "system_state"
	preferencesRecord = "user_preferences"

	// Fixed width so timestamps sort lexically.
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

// Backend stores the two coordinator records as JSON payloads in the records
// table. Global and unit mode changes are also archived row by row in
// mode_changes, which outlives the bounded in-memory history.
type Backend struct {
	db  *sql.DB
	now func() time.Time
}

func NewBackend(db *sql.DB) *Backend {
	return &Backend{db: db, now: time.Now}
}

func (b *Backend) SaveSystemState(state *model.SystemState) error {
	tx, err := StartTransaction(b.db)
	if err != nil {
		return err
	}
	if err := upsertRecordWithTx(tx, systemStateRecord, state, b.now()); err != nil {
		RollbackTransaction(tx)
		return err
	}
	for _, ev := range state.ModeChangeHistory.Items() {
		if err := archiveModeChangeWithTx(tx, ev); err != nil {
			RollbackTransaction(tx)
			return err
		}
	}
	return CommitTransaction(tx)
}

func (b *Backend) SavePreferences(prefs *model.UserPreferences) error {
	tx, err := StartTransaction(b.db)
	if err != nil {
		return err
	}
	if err := upsertRecordWithTx(tx, preferencesRecord, prefs, b.now()); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}

func upsertRecordWithTx(tx *sql.Tx, name string, v any, at time.Time) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	_, err = tx.Exec(`INSERT INTO records (name, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		name, string(payload), at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}
	return nil
}

func archiveModeChangeWithTx(tx *sql.Tx, ev model.ModeChangeEvent) error {
	var unitID sql.NullString
	if ev.UnitID != "" {
		unitID = sql.NullString{String: ev.UnitID, Valid: true}
	}
	var outside sql.NullFloat64
	if ev.OutsideTempAtChange != nil {
		outside = sql.NullFloat64{Float64: *ev.OutsideTempAtChange, Valid: true}
	}
	_, err := tx.Exec(`INSERT OR IGNORE INTO mode_changes (id, timestamp, unit_id, previous_mode, new_mode, reason, outside_temp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Timestamp.UTC().Format(timestampLayout), unitID, string(ev.PreviousMode), string(ev.NewMode), string(ev.Reason), outside)
	if err != nil {
		return fmt.Errorf("failed to archive mode change %s: %w", ev.ID, err)
	}
	return nil
}
