// Package align fuses diarized speaker segments with a transcript into
// speaker turns.
package align

import (
	"math"
	"sort"
	"strings"

	"github.com/maauso/coachscribe/internal/diarize"
	"github.com/maauso/coachscribe/internal/transcript"
)

// Options configures the aligner.
type Options struct {
	// MergeGap is the largest silence, in seconds, bridged inside one turn.
	MergeGap float64
	// MinTurnDur is the duration below which a turn is folded into a
	// preceding turn of the same speaker.
	MinTurnDur float64
}

// DefaultOptions returns the options the service runs with.
func DefaultOptions() Options {
	return Options{MergeGap: 0.2, MinTurnDur: 0.5}
}

// LabeledWord is a transcribed word with its speaker.
type LabeledWord struct {
	Text    string
	Start   float64
	End     float64
	Speaker diarize.Label
}

// Utterance is one speaker turn.
type Utterance struct {
	Start   float64
	End     float64
	Speaker diarize.Label
	Text    string
	Words   []LabeledWord
}

// Duration returns the turn length in seconds.
func (u Utterance) Duration() float64 {
	return u.End - u.Start
}

func overlap(a0, a1, b0, b1 float64) float64 {
	return math.Max(0, math.Min(a1, b1)-math.Max(a0, b0))
}

// AssignLabel returns the speaker of the span [start, end).
//
// The label with the largest summed overlap wins; on equal overlap the label
// seen first in diar wins. When nothing overlaps, the segment whose centre is
// nearest the span centre is used, the earliest one on a tie. Without any
// diarization the span is UNKNOWN.
func AssignLabel(start, end float64, diar []diarize.Segment) diarize.Label {
	if len(diar) == 0 {
		return diarize.LabelUnknown
	}

	var order []diarize.Label
	totals := make(map[diarize.Label]float64)
	for _, s := range diar {
		ov := overlap(start, end, s.Start, s.End)
		if ov <= 0 {
			continue
		}
		if _, ok := totals[s.Label]; !ok {
			order = append(order, s.Label)
		}
		totals[s.Label] += ov
	}

	if len(order) > 0 {
		best := order[0]
		for _, l := range order[1:] {
			if totals[l] > totals[best] {
				best = l
			}
		}
		return best
	}

	center := 0.5 * (start + end)
	best := diarize.LabelUnknown
	bestDist := math.Inf(1)
	for _, s := range diar {
		d := math.Abs(center - 0.5*(s.Start+s.End))
		if d < bestDist {
			bestDist = d
			best = s.Label
		}
	}
	return best
}

// Align turns a transcript into speaker utterances using the diarized
// segments. Word timings are used when any transcript segment carries them.
// An empty transcript yields no utterances.
func Align(diar []diarize.Segment, segments []transcript.Segment, opts Options) []Utterance {
	var utts []Utterance
	if transcript.HasWords(segments) {
		utts = groupWords(labelWords(diar, segments), opts.MergeGap)
	} else {
		utts = labelSegments(diar, segments)
	}
	if len(utts) == 0 {
		return []Utterance{}
	}

	utts = mergeAdjacent(utts, opts.MergeGap)
	utts = absorbShort(utts, opts.MinTurnDur)
	return normalize(utts)
}

// labelWords flattens, trims and labels every word, ordered by start time.
func labelWords(diar []diarize.Segment, segments []transcript.Segment) []LabeledWord {
	var words []LabeledWord
	for _, seg := range segments {
		for _, w := range seg.Words {
			words = append(words, LabeledWord{
				Text:    strings.TrimSpace(w.Text),
				Start:   w.Start,
				End:     w.End,
				Speaker: AssignLabel(w.Start, w.End, diar),
			})
		}
	}
	sort.SliceStable(words, func(i, j int) bool {
		return words[i].Start < words[j].Start
	})
	return words
}

// groupWords groups consecutive same-speaker words separated by at most maxGap.
func groupWords(words []LabeledWord, maxGap float64) []Utterance {
	var utts []Utterance
	for _, w := range words {
		if n := len(utts); n > 0 {
			cur := &utts[n-1]
			if w.Speaker == cur.Speaker && w.Start-cur.End <= maxGap {
				cur.End = math.Max(cur.End, w.End)
				cur.Words = append(cur.Words, w)
				continue
			}
		}
		utts = append(utts, Utterance{
			Start:   w.Start,
			End:     w.End,
			Speaker: w.Speaker,
			Words:   []LabeledWord{w},
		})
	}
	for i := range utts {
		utts[i].Text = joinWords(utts[i].Words)
	}
	return utts
}

func labelSegments(diar []diarize.Segment, segments []transcript.Segment) []Utterance {
	utts := make([]Utterance, 0, len(segments))
	for _, seg := range segments {
		utts = append(utts, Utterance{
			Start:   seg.Start,
			End:     seg.End,
			Speaker: AssignLabel(seg.Start, seg.End, diar),
			Text:    seg.Text,
		})
	}
	return utts
}

// concat returns a new utterance spanning a and b with b's content appended.
// Word lists are concatenated only when both sides have words; otherwise the
// texts are joined with a space.
func concat(a, b Utterance) Utterance {
	out := Utterance{
		Start:   a.Start,
		End:     math.Max(a.End, b.End),
		Speaker: a.Speaker,
	}
	if len(a.Words) > 0 && len(b.Words) > 0 {
		out.Words = make([]LabeledWord, 0, len(a.Words)+len(b.Words))
		out.Words = append(out.Words, a.Words...)
		out.Words = append(out.Words, b.Words...)
		out.Text = joinWords(out.Words)
		return out
	}
	out.Words = append([]LabeledWord(nil), a.Words...)
	out.Text = strings.TrimSpace(a.Text + " " + b.Text)
	return out
}

// mergeAdjacent joins neighbouring same-speaker utterances separated by at
// most maxGap.
func mergeAdjacent(utts []Utterance, maxGap float64) []Utterance {
	out := make([]Utterance, 0, len(utts))
	for _, u := range utts {
		if n := len(out); n > 0 && out[n-1].Speaker == u.Speaker && u.Start-out[n-1].End <= maxGap {
			out[n-1] = concat(out[n-1], u)
			continue
		}
		out = append(out, u)
	}
	return out
}

// absorbShort folds utterances shorter than minDur into the preceding
// finalized utterance when both share a speaker.
func absorbShort(utts []Utterance, minDur float64) []Utterance {
	out := make([]Utterance, 0, len(utts))
	for _, u := range utts {
		if n := len(out); n > 0 && u.Duration() < minDur && out[n-1].Speaker == u.Speaker {
			out[n-1] = concat(out[n-1], u)
			continue
		}
		out = append(out, u)
	}
	return out
}

func normalize(utts []Utterance) []Utterance {
	out := make([]Utterance, len(utts))
	for i, u := range utts {
		words := make([]LabeledWord, len(u.Words))
		for j, w := range u.Words {
			w.Text = strings.TrimSpace(w.Text)
			words[j] = w
		}
		u.Words = words
		u.Text = strings.TrimSpace(u.Text)
		out[i] = u
	}
	return out
}

func joinWords(words []LabeledWord) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Text
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
