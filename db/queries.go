package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
)

func (b *Backend) LoadSystemState() (*model.SystemState, error) {
	var state model.SystemState
	if err := b.loadRecord(systemStateRecord, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (b *Backend) LoadPreferences() (*model.UserPreferences, error) {
	var prefs model.UserPreferences
	if err := b.loadRecord(preferencesRecord, &prefs); err != nil {
		return nil, err
	}
	return &prefs, nil
}

// loadRecord reports a record that was never saved as fs.ErrNotExist, the
// same way the file backend does.
func (b *Backend) loadRecord(name string, v any) error {
	var payload string
	err := b.db.QueryRow(`SELECT payload FROM records WHERE name = ?`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("record %s: %w", name, fs.ErrNotExist)
	}
	if err != nil {
		return fmt.Errorf("failed to get record %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("failed to decode record %s: %w", name, err)
	}
	return nil
}

// RecentModeChanges returns up to limit archived mode changes, newest first.
func (b *Backend) RecentModeChanges(limit int) ([]model.ModeChangeEvent, error) {
	rows, err := b.db.Query(`SELECT id, timestamp, unit_id, previous_mode, new_mode, reason, outside_temp
		FROM mode_changes ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query mode changes: %w", err)
	}
	defer rows.Close()

	var events []model.ModeChangeEvent
	for rows.Next() {
		var (
			ev      model.ModeChangeEvent
			ts      string
			unitID  sql.NullString
			outside sql.NullFloat64
		)
		if err := rows.Scan(&ev.ID, &ts, &unitID, &ev.PreviousMode, &ev.NewMode, &ev.Reason, &outside); err != nil {
			return nil, fmt.Errorf("failed to scan mode change: %w", err)
		}
		ev.Timestamp, err = time.Parse(timestampLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse mode change timestamp %q: %w", ts, err)
		}
		ev.UnitID = unitID.String
		if outside.Valid {
			v := outside.Float64
			ev.OutsideTempAtChange = &v
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
