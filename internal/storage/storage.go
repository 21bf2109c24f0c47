// Package storage provides scratch files for uploaded recordings and an
// S3-compatible object store for speaker profiles and archived transcripts.
package storage

import (
	"context"
	"errors"
	"io"
)

// Sentinel errors shared by the storage implementations.
var (
	// ErrS3NotConfigured is returned when an object operation is attempted
	// without an S3 bucket.
	ErrS3NotConfigured = errors.New("storage: S3 is not configured")
	// ErrObjectNotFound is returned by GetObject for a missing key.
	ErrObjectNotFound = errors.New("storage: object not found")
)

// Storage handles uploaded recordings while a request is processed and
// archives finished transcripts.
type Storage interface {
	// SaveTemp writes data to a new scratch file and returns its path.
	// name is a filename hint; its extension is preserved.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// CleanupTemp removes scratch files, continuing past failures.
	CleanupTemp(ctx context.Context, paths []string) error

	// UploadToS3 stores data under key and returns its URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}

// ObjectStorage is a small key/value view over a bucket.
type ObjectStorage interface {
	// PutObject replaces the object at key.
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	// GetObject returns the object at key or ErrObjectNotFound.
	GetObject(ctx context.Context, key string) ([]byte, error)
}
