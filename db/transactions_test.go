package db

import (
	"errors"
	"io/fs"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
)

func openMemory(t *testing.T) *Backend {
	t.Helper()
	conn, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewBackend(conn)
}

func TestLoadMissingRecordsReportNotExist(t *testing.T) {
	b := openMemory(t)

	_, err := b.LoadSystemState()
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	_, err = b.LoadPreferences()
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestSystemStateRoundTripAndArchive(t *testing.T) {
	b := openMemory(t)
	base := time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC)
	outside := 41.5

	state := model.DefaultSystemState()
	state.GlobalMode = model.ModeHeat
	state.Units["u1"] = model.NewUnitState("u1")
	state.ModeChangeHistory.Push(model.ModeChangeEvent{ID: "e1", Timestamp: base, PreviousMode: model.ModeOff, NewMode: model.ModeHeat, Reason: model.ReasonCoordinatorLogic, OutsideTempAtChange: &outside})
	state.ModeChangeHistory.Push(model.ModeChangeEvent{ID: "e2", Timestamp: base.Add(time.Minute), UnitID: "u1", PreviousMode: model.ModeOff, NewMode: model.ModeHeat, Reason: model.ReasonCoordinatorLogic})
	state.Conflicts.Push(model.ConflictEvent{ID: "c1", Kind: model.ConflictModeMismatch, AffectedUnitIDs: []string{"u1"}})

	require.NoError(t, b.SaveSystemState(state))
	// Saving again must not duplicate archived rows.
	require.NoError(t, b.SaveSystemState(state))

	loaded, err := b.LoadSystemState()
	require.NoError(t, err)
	loaded.Normalize()
	assert.Equal(t, model.ModeHeat, loaded.GlobalMode)
	assert.Contains(t, loaded.Units, "u1")
	assert.Equal(t, 2, loaded.ModeChangeHistory.Len())
	assert.Equal(t, 1, loaded.Conflicts.Len())

	archived, err := b.RecentModeChanges(10)
	require.NoError(t, err)
	require.Len(t, archived, 2)
	assert.Equal(t, "e2", archived[0].ID)
	assert.Equal(t, "u1", archived[0].UnitID)
	assert.Nil(t, archived[0].OutsideTempAtChange)
	assert.Equal(t, "e1", archived[1].ID)
	assert.Empty(t, archived[1].UnitID)
	require.NotNil(t, archived[1].OutsideTempAtChange)
	assert.Equal(t, outside, *archived[1].OutsideTempAtChange)
	assert.True(t, base.Equal(archived[1].Timestamp))
}

func TestPreferencesRoundTrip(t *testing.T) {
	b := openMemory(t)
	heat := model.ModeHeat
	prefs := model.DefaultPreferences()
	prefs.RoomPriorities["nursery"] = 10
	prefs.Schedules = append(prefs.Schedules, model.Schedule{ID: "night", Enabled: true, TimeStart: "22:00", TimeEnd: "06:00", DaysOfWeek: []int{0, 1}, TargetMinTemp: 64, TargetMaxTemp: 70, Mode: &heat})

	require.NoError(t, b.SavePreferences(prefs))
	prefs.HysteresisDegrees = 4
	require.NoError(t, b.SavePreferences(prefs))

	loaded, err := b.LoadPreferences()
	require.NoError(t, err)
	assert.Equal(t, 4.0, loaded.HysteresisDegrees)
	assert.Equal(t, 10, loaded.RoomPriorities["nursery"])
	require.Len(t, loaded.Schedules, 1)
	require.NotNil(t, loaded.Schedules[0].Mode)
	assert.Equal(t, model.ModeHeat, *loaded.Schedules[0].Mode)
}

func TestLoadCorruptPayload(t *testing.T) {
	b := openMemory(t)
	_, err := b.db.Exec(`INSERT INTO records (name, payload, updated_at) VALUES ('system_state', '{oops', 'x')`)
	require.NoError(t, err)

	_, err = b.LoadSystemState()
	require.Error(t, err)
	assert.False(t, errors.Is(err, fs.ErrNotExist))
}

func TestSaveSystemStateRollsBackOnArchiveFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	state := model.DefaultSystemState()
	state.ModeChangeHistory.Push(model.ModeChangeEvent{ID: "e1", NewMode: model.ModeCool})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO records`)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT OR IGNORE INTO mode_changes`)).WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = NewBackend(conn).SaveSystemState(state)
	assert.ErrorContains(t, err, "failed to archive mode change e1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePreferencesBeginFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	err = NewBackend(conn).SavePreferences(model.DefaultPreferences())
	assert.ErrorContains(t, err, "failed to start transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadRecordQueryFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT payload FROM records WHERE name = ?`)).
		WithArgs("user_preferences").
		WillReturnError(errors.New("no such table: records"))

	_, err = NewBackend(conn).LoadPreferences()
	require.Error(t, err)
	assert.False(t, errors.Is(err, fs.ErrNotExist))
	assert.NoError(t, mock.ExpectationsWereMet())
}
