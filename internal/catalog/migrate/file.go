package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileLegacyStore reads legacy keys from a JSON object file, such as a dump
// of a browser's local storage:
//
//	{"bakery_products": "[{\"id\":\"p1\"}]", "bakery_categories": "[]"}
//
// Values may be JSON strings (as local storage holds them) or inline JSON
// arrays. Deleting a key rewrites the file atomically.
type FileLegacyStore struct {
	path string
	mu   sync.Mutex
}

// NewFileLegacyStore returns a store backed by path. The file does not
// have to exist.
func NewFileLegacyStore(path string) *FileLegacyStore {
	return &FileLegacyStore{path: path}
}

// Path returns the backing file path.
func (f *FileLegacyStore) Path() string {
	return f.path
}

func (f *FileLegacyStore) load() (map[string]json.RawMessage, error) {
	// #nosec G304 - controlled path from config
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy file: %w", err)
	}
	entries := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("legacy file %s is not a JSON object: %w", f.path, err)
	}
	return entries, nil
}

// LegacyValue implements LegacyStore.
func (f *FileLegacyStore) LegacyValue(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.load()
	if err != nil {
		return "", false, err
	}
	raw, ok := entries[key]
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true, nil
	}
	return string(raw), true, nil
}

// DeleteLegacy implements LegacyStore.
func (f *FileLegacyStore) DeleteLegacy(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return writeAtomic(f.path, entries)
}

// writeAtomic writes v as indented JSON via a temp file and rename.
func writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal legacy file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create legacy directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
