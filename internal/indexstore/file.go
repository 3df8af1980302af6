// Package indexstore persists the guest→transcript lookup produced by the
// resolver and publishes the files the searcher serves: the index JSON, the
// catalog copy and the staged transcripts. An optional SQL mirror keeps the
// same lookup in PostgreSQL.
package indexstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Index maps a normalized guest key to a transcript file name.
type Index map[string]string

// WriteFile writes index as indented JSON to path. The file is written to
// path+".tmp", synced and renamed, so readers see either the old or the new
// index and never a partial one.
func WriteFile(path string, index Index) error {
	if index == nil {
		index = Index{}
	}
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling index: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

// LoadFile reads an index written by WriteFile. A missing file is reported
// with an error matching os.ErrNotExist.
func LoadFile(path string) (Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading index %s: %w", path, err)
	}
	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("decoding index %s: %w", path, err)
	}
	if index == nil {
		index = Index{}
	}
	return index, nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmpPath)
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmpPath, err)
	}
	return nil
}
