// Package jsonldb provides typed access to JSON files used as tiny tables.
//
// An [Array] is a whole-file JSON array of rows. There is no in-memory cache:
// every Load reads the file and every Save rewrites it. Save goes through a
// temporary file in the same directory followed by a rename, so readers never
// observe a truncated file.
package jsonldb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Array handles storage of a single JSON array file.
type Array[T any] struct {
	path string
}

// NewArray returns an Array bound to path. The file is not touched.
func NewArray[T any](path string) *Array[T] {
	return &Array[T]{path: path}
}

// Path returns the file path.
func (a *Array[T]) Path() string {
	return a.path
}

// Load reads all rows from the file.
//
// A missing file returns an error wrapping os.ErrNotExist. Invalid content
// returns the decoding error wrapped. Callers decide how lenient to be.
func (a *Array[T]) Load() ([]T, error) {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", a.path, err)
	}
	var rows []T
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", a.path, err)
	}
	return rows, nil
}

// Save replaces the file content with rows.
func (a *Array[T]) Save(rows []T) error {
	if rows == nil {
		rows = []T{}
	}
	var buf bytes.Buffer
	e := json.NewEncoder(&buf)
	e.SetEscapeHTML(false)
	e.SetIndent("", "  ")
	if err := e.Encode(rows); err != nil {
		return fmt.Errorf("failed to marshal rows: %w", err)
	}
	dir := filepath.Dir(a.path)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create directory for %s: %w", a.path, err)
	}
	return WriteFileAtomic(a.path, buf.Bytes())
}

// WriteFileAtomic writes data to a temporary sibling of path and renames it
// over path.
func WriteFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmp := f.Name()
	if _, err = f.Write(data); err == nil {
		err = f.Chmod(0o644)
	}
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
