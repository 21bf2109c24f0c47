package diarize

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrUnknownLinkage is returned for an unsupported linkage name.
var ErrUnknownLinkage = errors.New("diarize: unknown cluster linkage")

// Linkage selects the agglomerative merge criterion.
type Linkage string

const (
	// LinkageWard minimises the within-cluster variance on Euclidean distance.
	LinkageWard Linkage = "ward"
	// LinkageAverageCosine merges by mean pairwise cosine distance.
	LinkageAverageCosine Linkage = "average-cosine"
)

// ParseLinkage returns the Linkage for name. An empty name means LinkageWard.
func ParseLinkage(name string) (Linkage, error) {
	switch Linkage(name) {
	case "", LinkageWard:
		return LinkageWard, nil
	case LinkageAverageCosine:
		return LinkageAverageCosine, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLinkage, name)
	}
}

// clusterCount returns min(maxSpeakers, max(1, min(n, 4))).
func clusterCount(n, maxSpeakers int) int {
	k := min(n, 4)
	k = max(1, k)
	return min(maxSpeakers, k)
}

// ClusterUnknowns relabels every UNKNOWN entry of labels with an OTHER_<k>
// label derived from agglomerative clustering of its embedding. COACH entries
// are left untouched. Cluster numbers follow the order of each cluster's first
// interval, so the earliest non-coach speaker is OTHER_1.
//
// embs must be index-aligned with labels. The input slice is not modified.
func ClusterUnknowns(labels []Label, embs [][]float32, maxSpeakers int, linkage Linkage) ([]Label, error) {
	if len(labels) != len(embs) {
		return nil, fmt.Errorf("%w: %d labels, %d embeddings", ErrLengthMismatch, len(labels), len(embs))
	}

	out := make([]Label, len(labels))
	copy(out, labels)

	var idx []int
	for i, l := range labels {
		if l == LabelUnknown {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return out, nil
	}

	k := clusterCount(len(idx), maxSpeakers)
	if k <= 1 {
		for _, i := range idx {
			out[i] = OtherLabel(1)
		}
		return out, nil
	}

	points := make([][]float32, len(idx))
	for j, i := range idx {
		points[j] = embs[i]
	}

	assign, err := agglomerate(points, k, linkage)
	if err != nil {
		return nil, err
	}
	for j, i := range idx {
		out[i] = OtherLabel(assign[j] + 1)
	}
	return out, nil
}

// agglomerate merges points bottom-up until k clusters remain and returns the
// 0-based cluster of every point. Clusters are numbered by their lowest member.
// On equal distances the pair with the lowest indices is merged first.
func agglomerate(points [][]float32, k int, linkage Linkage) ([]int, error) {
	n := len(points)
	if k < 1 {
		k = 1
	}

	var update func(dki, dkj, dij float64, ni, nj, nk int) float64
	var dist func(a, b []float32) float64
	switch linkage {
	case "", LinkageWard:
		dist = squaredEuclidean
		update = func(dki, dkj, dij float64, ni, nj, nk int) float64 {
			fi, fj, fk := float64(ni), float64(nj), float64(nk)
			return ((fi+fk)*dki + (fj+fk)*dkj - fk*dij) / (fi + fj + fk)
		}
	case LinkageAverageCosine:
		dist = func(a, b []float32) float64 { return 1 - CosineSimilarity(a, b) }
		update = func(dki, dkj, _ float64, ni, nj, _ int) float64 {
			return (float64(ni)*dki + float64(nj)*dkj) / float64(ni+nj)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLinkage, linkage)
	}

	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d[i][j] = dist(points[i], points[j])
			d[j][i] = d[i][j]
		}
	}

	size := make([]int, n)
	root := make([]int, n)
	active := make([]bool, n)
	for i := range size {
		size[i] = 1
		root[i] = i
		active[i] = true
	}

	for remaining := n; remaining > k; remaining-- {
		a, b := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && d[i][j] < best {
					best, a, b = d[i][j], i, j
				}
			}
		}
		if a < 0 {
			break
		}

		for c := 0; c < n; c++ {
			if !active[c] || c == a || c == b {
				continue
			}
			nd := update(d[c][a], d[c][b], d[a][b], size[a], size[b], size[c])
			d[a][c], d[c][a] = nd, nd
		}
		size[a] += size[b]
		active[b] = false
		for p := range root {
			if root[p] == b {
				root[p] = a
			}
		}
	}

	// a surviving cluster keeps the lowest index of its members, so numbering
	// by first appearance is numbering by earliest point
	ids := make(map[int]int)
	assign := make([]int, n)
	for p, r := range root {
		id, ok := ids[r]
		if !ok {
			id = len(ids)
			ids[r] = id
		}
		assign[p] = id
	}
	return assign, nil
}

func squaredEuclidean(a, b []float32) float64 {
	var s float64
	for i := range a {
		if i >= len(b) {
			break
		}
		diff := float64(a[i]) - float64(b[i])
		s += diff * diff
	}
	return s
}

// Promote relabels the OTHER_<k> cluster with the largest total duration as
// PRIMARY_NONCOACH. Ties go to the lowest cluster number. Segments are
// returned in a new slice in input order. Without any OTHER cluster the
// segments are returned unchanged.
func Promote(segments []Segment) []Segment {
	out := make([]Segment, len(segments))
	copy(out, segments)

	totals := make(map[int]float64)
	for _, s := range segments {
		if k, ok := s.Label.ClusterIndex(); ok {
			totals[k] += s.Duration()
		}
	}
	if len(totals) == 0 {
		return out
	}

	keys := make([]int, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	winner := keys[0]
	for _, k := range keys[1:] {
		if totals[k] > totals[winner] {
			winner = k
		}
	}

	target := OtherLabel(winner)
	for i := range out {
		if out[i].Label == target {
			out[i].Label = LabelPrimaryNonCoach
		}
	}
	return out
}
