package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/maauso/coachscribe/internal/storage"
)

// Compile-time check that ObjectStore implements Store.
var _ Store = (*ObjectStore)(nil)

// ObjectStore keeps one JSON object per speaker in an S3-compatible bucket.
type ObjectStore struct {
	objects storage.ObjectStorage
	prefix  string
}

// NewObjectStore creates a store writing profiles under prefix.
func NewObjectStore(objects storage.ObjectStorage, prefix string) *ObjectStore {
	return &ObjectStore{objects: objects, prefix: prefix}
}

// Key returns the object key for a speaker name.
func (s *ObjectStore) Key(name string) string {
	return path.Join(s.prefix, name+".json")
}

// Load fetches the profile for name, or nil if the object does not exist.
func (s *ObjectStore) Load(ctx context.Context, name string) (*Profile, error) {
	data, err := s.objects.GetObject(ctx, s.Key(name))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profile: get %s: %w", name, err)
	}

	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("profile: decode %s: %w", name, err)
	}
	return fromRecord(name, r), nil
}

// Save uploads p, replacing any previous object for the same name.
func (s *ObjectStore) Save(ctx context.Context, p *Profile) error {
	if err := p.validate(); err != nil {
		return err
	}

	data, err := json.Marshal(toRecord(p))
	if err != nil {
		return fmt.Errorf("profile: marshal: %w", err)
	}
	if err := s.objects.PutObject(ctx, s.Key(p.Name), data, "application/json"); err != nil {
		return fmt.Errorf("profile: put %s: %w", p.Name, err)
	}
	return nil
}
