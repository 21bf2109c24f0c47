package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps scratch files in a directory on local disk.
// Object operations are unavailable; use S3Storage for those.
type LocalStorage struct {
	tempDir string
}

// NewLocalStorage creates the scratch directory if needed.
// An empty tempDir defaults to $TMPDIR/coachscribe.
func NewLocalStorage(tempDir string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "coachscribe")
	}

	if err := os.MkdirAll(tempDir, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	return &LocalStorage{tempDir: tempDir}, nil
}

// TempDir returns the scratch directory.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// tempPattern turns a filename hint into an os.CreateTemp pattern that keeps
// the extension, so "talk.wav" becomes "talk_*.wav".
func tempPattern(name string) string {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "upload"
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		base = "upload"
	}
	return base + "_*" + ext
}

// SaveTemp writes data to a uniquely named file in the scratch directory.
func (s *LocalStorage) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	f, err := os.CreateTemp(s.tempDir, tempPattern(name))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	path := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return path, nil
}

// CleanupTemp removes paths, ignoring files that are already gone, and
// returns the first failure.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}
		if p == "" {
			continue
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("remove temp file %s: %w", p, err)
		}
	}
	return firstErr
}

// UploadToS3 returns ErrS3NotConfigured.
func (s *LocalStorage) UploadToS3(context.Context, string, io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}

// PutObject returns ErrS3NotConfigured.
func (s *LocalStorage) PutObject(context.Context, string, []byte, string) error {
	return ErrS3NotConfigured
}

// GetObject returns ErrS3NotConfigured.
func (s *LocalStorage) GetObject(context.Context, string) ([]byte, error) {
	return nil, ErrS3NotConfigured
}

var (
	_ Storage       = (*LocalStorage)(nil)
	_ ObjectStorage = (*LocalStorage)(nil)
)
