// Package profile persists enrolled speaker embeddings.
package profile

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

// DefaultName is the key under which the coach is enrolled.
const DefaultName = "COACH"

// ErrInvalidProfile is returned when a profile has no name or no embedding.
var ErrInvalidProfile = errors.New("profile: name and embedding are required")

// Profile is an enrolled speaker: a reference embedding plus the facts about
// the recording it was computed from.
type Profile struct {
	Name        string
	Embedding   []float32
	SampleRate  int
	DurationSec float64
	UpdatedAt   time.Time
}

// Dimension returns the embedding length.
func (p *Profile) Dimension() int {
	return len(p.Embedding)
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	c := *p
	c.Embedding = slices.Clone(p.Embedding)
	return &c
}

func (p *Profile) validate() error {
	if p == nil || strings.TrimSpace(p.Name) == "" || len(p.Embedding) == 0 {
		return ErrInvalidProfile
	}
	return nil
}

// Store loads and saves profiles by speaker name.
type Store interface {
	// Load returns the profile stored under name. A speaker that was never
	// enrolled is not an error: Load returns (nil, nil).
	Load(ctx context.Context, name string) (*Profile, error)

	// Save replaces the profile stored under p.Name.
	// Returns ErrInvalidProfile for a profile without name or embedding.
	Save(ctx context.Context, p *Profile) error
}

// record is the persisted form of a profile.
type record struct {
	Embedding   []float32 `json:"embedding"`
	SampleRate  int       `json:"sr"`
	UpdatedAt   string    `json:"updated_at"`
	DurationSec float64   `json:"duration_sec"`
	Name        string    `json:"name"`
}

func toRecord(p *Profile) record {
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return record{
		Embedding:   slices.Clone(p.Embedding),
		SampleRate:  p.SampleRate,
		UpdatedAt:   updated.UTC().Format(time.RFC3339),
		DurationSec: p.DurationSec,
		Name:        p.Name,
	}
}

// fromRecord converts a persisted record. key is used when the record
// carries no name of its own.
func fromRecord(key string, r record) *Profile {
	p := &Profile{
		Name:        r.Name,
		Embedding:   slices.Clone(r.Embedding),
		SampleRate:  r.SampleRate,
		DurationSec: r.DurationSec,
	}
	if p.Name == "" {
		p.Name = key
	}
	// unparseable timestamps are left zero
	if t, err := time.Parse(time.RFC3339, r.UpdatedAt); err == nil {
		p.UpdatedAt = t
	}
	return p
}
