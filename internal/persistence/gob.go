package persistence

import (
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// SaveGob encodes object with gob and atomically replaces filePath with the result.
// The data is written to a temporary file in the same directory first, so a crash
// mid-write never leaves a truncated snapshot behind.
func SaveGob(filePath string, object interface{}) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(filePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	encodeErr := gob.NewEncoder(tmp).Encode(object)
	closeErr := tmp.Close()
	if encodeErr != nil || closeErr != nil {
		if rmErr := os.Remove(tmpPath); rmErr != nil {
			slog.Warn("failed to remove temporary snapshot", "path", tmpPath, "error", rmErr)
		}
		if encodeErr != nil {
			return fmt.Errorf("failed to gob encode to file %s: %w", filePath, encodeErr)
		}
		return fmt.Errorf("failed to close file %s: %w", tmpPath, closeErr)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filePath, err)
	}
	return nil
}

// LoadGob decodes a gob-encoded file from filePath into the provided object pointer.
// If the file does not exist, it returns os.ErrNotExist, allowing callers to handle
// fresh starts gracefully.
func LoadGob(filePath string, objectPointer interface{}) error {
	file, err := os.Open(filePath) // #nosec G304 -- filePath is controlled by application, not user input
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return os.ErrNotExist
		}
		return fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close snapshot file", "path", filePath, "error", closeErr)
		}
	}()

	if err := gob.NewDecoder(file).Decode(objectPointer); err != nil {
		return fmt.Errorf("failed to gob decode from file %s: %w", filePath, err)
	}
	return nil
}
