package labels

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var errInvalidSnapshot = errors.New("labels: invalid taxonomy snapshot")

// FilePersistence stores a Taxonomy as JSON on disk
type FilePersistence struct {
	filepath string
}

// NewFilePersistence creates a file-based taxonomy store
func NewFilePersistence(path string) *FilePersistence {
	return &FilePersistence{filepath: path}
}

// Load reads the taxonomy from disk. A missing file yields Default().
func (f *FilePersistence) Load() (*Taxonomy, error) {
	data, err := os.ReadFile(f.filepath)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy from file %s: %w", f.filepath, err)
	}

	t := New()
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal taxonomy from file %s: %w", f.filepath, err)
	}
	return t, nil
}

// Save writes the taxonomy atomically
func (f *FilePersistence) Save(t *Taxonomy) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal taxonomy: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.filepath), ".taxonomy-*")
	if err != nil {
		return fmt.Errorf("failed to write taxonomy to file %s: %w", f.filepath, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write taxonomy to file %s: %w", f.filepath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write taxonomy to file %s: %w", f.filepath, err)
	}
	if err := os.Rename(tmp.Name(), f.filepath); err != nil {
		return fmt.Errorf("failed to write taxonomy to file %s: %w", f.filepath, err)
	}
	return nil
}
