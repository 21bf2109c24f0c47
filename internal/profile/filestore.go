package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Compile-time check that FileStore implements Store.
var _ Store = (*FileStore)(nil)

// FileStore keeps every profile in one JSON document keyed by speaker name.
// Writes replace the document atomically; a corrupt document reads as empty.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	logger *slog.Logger
}

// NewFileStore creates a store backed by the document at path.
// The file and its directory are created on first Save.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the location of the backing document.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns a copy of the profile stored under name, or nil if absent.
func (s *FileStore) Load(_ context.Context, name string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.read()
	if err != nil {
		return nil, err
	}
	r, ok := db[name]
	if !ok {
		return nil, nil
	}
	return fromRecord(name, r), nil
}

// Save replaces the entry for p.Name and leaves other speakers untouched.
func (s *FileStore) Save(_ context.Context, p *Profile) error {
	if err := p.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.read()
	if err != nil {
		return err
	}
	db[p.Name] = toRecord(p)

	if err := s.write(db); err != nil {
		return err
	}
	s.logger.Info("Speaker profile saved",
		slog.String("speaker", p.Name),
		slog.Int("dim", p.Dimension()),
		slog.String("path", s.path),
	)
	return nil
}

// read loads the document. Callers hold the lock.
func (s *FileStore) read() (map[string]record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", s.path, err)
	}

	db := map[string]record{}
	if err := json.Unmarshal(data, &db); err != nil {
		s.logger.Warn("Speaker profile document is corrupt, treating as empty",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return map[string]record{}, nil
	}
	return db, nil
}

// write replaces the document via a temp file in the same directory.
func (s *FileStore) write(db map[string]record) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("profile: create directory: %w", err)
	}

	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return fmt.Errorf("profile: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("profile: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("profile: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("profile: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("profile: replace %s: %w", s.path, err)
	}
	return nil
}
