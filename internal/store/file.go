package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
)

const (
	systemStateFile = "system_state.json"
	preferencesFile = "user_preferences.json"
)

// FileBackend keeps each record in its own JSON file under dir. Writes go to a
// temp file that is renamed over the target so a crash never leaves a torn record.
type FileBackend struct {
	dir string
}

func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", dir, err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) LoadSystemState() (*model.SystemState, error) {
	var state model.SystemState
	if err := b.read(systemStateFile, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (b *FileBackend) SaveSystemState(state *model.SystemState) error {
	return b.write(systemStateFile, state)
}

func (b *FileBackend) LoadPreferences() (*model.UserPreferences, error) {
	var prefs model.UserPreferences
	if err := b.read(preferencesFile, &prefs); err != nil {
		return nil, err
	}
	return &prefs, nil
}

func (b *FileBackend) SavePreferences(prefs *model.UserPreferences) error {
	return b.write(preferencesFile, prefs)
}

func (b *FileBackend) read(name string, v any) error {
	path := filepath.Join(b.dir, name)
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (b *FileBackend) write(name string, v any) error {
	path := filepath.Join(b.dir, name)
	tmpPath := path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmpPath, err)
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		file.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmpPath, err)
	}
	return nil
}
