package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const storeVersion = 1

// document is the on-disk shape of the job store.
type document struct {
	Version int    `json:"version"`
	Jobs    []*Job `json:"jobs"`
}

// Store persists the full job list as one JSON document, rewritten
// atomically after every mutation.
type Store struct {
	path string
}

// NewStore creates a store at path, creating parent directories.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cron store dir: %w", err)
	}
	return &Store{path: path}, nil
}

// Load reads all jobs. A missing file yields an empty list.
func (s *Store) Load() ([]*Job, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cron store: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse cron store: %w", err)
	}
	return doc.Jobs, nil
}

// Save writes all jobs atomically.
func (s *Store) Save(jobs []*Job) error {
	doc := document{Version: storeVersion, Jobs: jobs}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cron store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cron-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cron store: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cron store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close cron store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename cron store: %w", err)
	}
	return nil
}
