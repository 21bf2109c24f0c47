// Package embedding defines the speaker-embedding capability and the helpers
// that apply it to voiced intervals.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/maauso/coachscribe/internal/audio"
	"github.com/maauso/coachscribe/internal/vad"
)

// ErrDimensionMismatch is returned when vectors of different lengths are pooled.
var ErrDimensionMismatch = errors.New("embedding: dimension mismatch")

// Vector is a fixed-length speaker embedding.
type Vector = []float32

// Embedder turns an audio slice into a speaker embedding.
// Implementations must be deterministic for identical input and return a zero
// vector of Dimension() for an empty slice instead of failing.
type Embedder interface {
	Embed(ctx context.Context, samples []float32, sampleRate int) (Vector, error)
	Dimension() int
}

// EmbedIntervals embeds each interval of sig, in order.
func EmbedIntervals(ctx context.Context, e Embedder, sig audio.Signal, intervals []vad.Interval) ([]Vector, error) {
	out := make([]Vector, len(intervals))
	for i, iv := range intervals {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.Embed(ctx, sig.Slice(iv.Start, iv.End), sig.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("embed interval %d [%.2f, %.2f]: %w", i, iv.Start, iv.End, err)
		}
		out[i] = v
	}
	return out, nil
}

// MeanPool averages vectors element-wise. With no vectors it returns a zero
// vector of length dim.
func MeanPool(vectors []Vector, dim int) (Vector, error) {
	if len(vectors) == 0 {
		return make(Vector, max(dim, 0)), nil
	}

	n := len(vectors[0])
	sum := make([]float64, n)
	for i, v := range vectors {
		if len(v) != n {
			return nil, fmt.Errorf("%w: vector %d has %d values, want %d", ErrDimensionMismatch, i, len(v), n)
		}
		for j, x := range v {
			sum[j] += float64(x)
		}
	}

	out := make(Vector, n)
	for j := range sum {
		out[j] = float32(sum[j] / float64(len(vectors)))
	}
	return out, nil
}
