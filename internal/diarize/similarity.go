package diarize

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSmoothWindow is returned when the smoothing window is not a positive odd number.
var ErrInvalidSmoothWindow = errors.New("diarize: smoothing window must be a positive odd number")

// CosineSimilarity returns the cosine of the angle between a and b.
// Empty, mismatched or zero-norm vectors have similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim))
}

// LabelByReference labels each embedding COACH when its similarity to ref is
// at least threshold and UNKNOWN otherwise. A nil or empty ref means the coach
// is not enrolled and every embedding is UNKNOWN.
func LabelByReference(embs [][]float32, ref []float32, threshold float64) []Label {
	labels := make([]Label, len(embs))
	for i, e := range embs {
		labels[i] = LabelUnknown
		if len(ref) > 0 && CosineSimilarity(e, ref) >= threshold {
			labels[i] = LabelCoach
		}
	}
	return labels
}

// MedianSmooth applies a sliding median filter over the COACH/UNKNOWN
// sequence with edge padding. The output has the same length as the input.
// A window of 1, or a sequence shorter than the window, is returned unchanged.
func MedianSmooth(labels []Label, window int) ([]Label, error) {
	if window < 1 || window%2 == 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSmoothWindow, window)
	}

	out := make([]Label, len(labels))
	copy(out, labels)
	if window == 1 || len(labels) < window {
		return out, nil
	}

	pad := window / 2
	n := len(labels)
	at := func(i int) int {
		// edge padding: repeat the nearest real value
		if i < 0 {
			i = 0
		} else if i >= n {
			i = n - 1
		}
		if labels[i] == LabelCoach {
			return 1
		}
		return 0
	}

	for i := 0; i < n; i++ {
		ones := 0
		for j := i - pad; j <= i+pad; j++ {
			ones += at(j)
		}
		if ones > pad {
			out[i] = LabelCoach
		} else {
			out[i] = LabelUnknown
		}
	}
	return out, nil
}
