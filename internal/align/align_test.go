package align

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/coachscribe/internal/diarize"
	"github.com/maauso/coachscribe/internal/transcript"
)

const (
	coach   = diarize.LabelCoach
	primary = diarize.LabelPrimaryNonCoach
	unknown = diarize.LabelUnknown
)

func seg(start, end float64, l diarize.Label) diarize.Segment {
	return diarize.Segment{Start: start, End: end, Label: l}
}

func word(text string, start, end float64) transcript.Word {
	return transcript.Word{Text: text, Start: start, End: end}
}

func TestAssignLabel(t *testing.T) {
	diar := []diarize.Segment{
		seg(0, 1, coach),
		seg(1, 3, primary),
		seg(3, 3.2, coach),
		seg(5, 6, diarize.OtherLabel(2)),
	}

	tests := []struct {
		name       string
		start, end float64
		want       diarize.Label
	}{
		{"inside one segment", 0.2, 0.8, coach},
		{"majority overlap", 0.8, 2.0, primary},
		{"overlap summed per label", 2.9, 3.2, coach},
		{"nearest centre when nothing overlaps", 4.0, 4.1, coach},
		{"nearest centre later segment", 4.5, 4.9, diarize.OtherLabel(2)},
		{"after last segment", 9, 10, diarize.OtherLabel(2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AssignLabel(tt.start, tt.end, diar))
		})
	}
}

func TestAssignLabel_Ties(t *testing.T) {
	diar := []diarize.Segment{seg(0, 1, primary), seg(1, 2, coach)}

	assert.Equal(t, primary, AssignLabel(0.5, 1.5, diar), "equal overlap goes to first seen label")
	assert.Equal(t, coach, AssignLabel(1.5, 2.5, []diarize.Segment{seg(0, 1, primary), seg(1, 2, coach)}))

	gap := []diarize.Segment{seg(0, 1, primary), seg(2, 3, coach)}
	assert.Equal(t, primary, AssignLabel(1.25, 1.75, gap), "equidistant centres go to the earliest segment")
}

func TestAssignLabel_NoDiarization(t *testing.T) {
	assert.Equal(t, unknown, AssignLabel(0, 1, nil))
}

func TestAlign_HiThere(t *testing.T) {
	diar := []diarize.Segment{seg(0, 1, coach)}
	segments := []transcript.Segment{{
		Text: " hi there", Start: 0.1, End: 0.9,
		Words: []transcript.Word{word(" hi", 0.1, 0.4), word(" there", 0.5, 0.9)},
	}}

	got := Align(diar, segments, Options{MergeGap: 0.2, MinTurnDur: 0.5})
	require.Len(t, got, 1)

	u := got[0]
	assert.Equal(t, 0.1, u.Start)
	assert.Equal(t, 0.9, u.End)
	assert.Equal(t, coach, u.Speaker)
	assert.Equal(t, "hi there", u.Text)
	assert.Equal(t, []LabeledWord{
		{Text: "hi", Start: 0.1, End: 0.4, Speaker: coach},
		{Text: "there", Start: 0.5, End: 0.9, Speaker: coach},
	}, u.Words)
}

func TestAlign_EmptyTranscript(t *testing.T) {
	diar := []diarize.Segment{seg(0, 1, coach), seg(1, 2, primary)}

	assert.Empty(t, Align(diar, nil, DefaultOptions()))
	assert.Empty(t, Align(diar, []transcript.Segment{}, DefaultOptions()))
	assert.Empty(t, Align(nil, nil, DefaultOptions()))
}

func TestAlign_NoDiarizationIsUnknown(t *testing.T) {
	segments := []transcript.Segment{
		{Text: "hello", Start: 0, End: 1, Words: []transcript.Word{word("hello", 0, 1)}},
		{Text: "again", Start: 3, End: 4, Words: []transcript.Word{word("again", 3, 4)}},
	}

	got := Align(nil, segments, DefaultOptions())
	require.NotEmpty(t, got)
	for _, u := range got {
		assert.Equal(t, unknown, u.Speaker)
		for _, w := range u.Words {
			assert.Equal(t, unknown, w.Speaker)
		}
	}
}

func TestAlign_WordModeSplitsOnSpeakerAndGap(t *testing.T) {
	diar := []diarize.Segment{seg(0, 2, coach), seg(2, 4, primary), seg(4, 8, coach)}
	segments := []transcript.Segment{
		{Text: "a b c", Start: 0, End: 3, Words: []transcript.Word{
			word("how", 0.0, 0.6),
			word("are", 0.7, 1.5),
			word("fine", 2.1, 3.0),
		}},
		{Text: "good", Start: 4.2, End: 8, Words: []transcript.Word{
			word("good", 4.2, 5.0),
			word("so", 6.0, 6.8),
		}},
	}

	got := Align(diar, segments, Options{MergeGap: 0.2, MinTurnDur: 0.5})
	require.Len(t, got, 4)

	assert.Equal(t, "how are", got[0].Text)
	assert.Equal(t, coach, got[0].Speaker)
	assert.Equal(t, "fine", got[1].Text)
	assert.Equal(t, primary, got[1].Speaker)
	assert.Equal(t, "good", got[2].Text)
	assert.Equal(t, coach, got[2].Speaker)
	assert.Equal(t, "so", got[3].Text, "gap larger than merge gap starts a new turn")
	assert.Equal(t, coach, got[3].Speaker)
}

func TestAlign_WordsOrderedByStart(t *testing.T) {
	diar := []diarize.Segment{seg(0, 2, coach)}
	segments := []transcript.Segment{
		{Text: "second", Start: 0.5, End: 1, Words: []transcript.Word{word("second", 0.5, 1.0)}},
		{Text: "first", Start: 0, End: 0.4, Words: []transcript.Word{word("first", 0.0, 0.4)}},
	}

	got := Align(diar, segments, DefaultOptions())
	require.Len(t, got, 1)
	assert.Equal(t, "first second", got[0].Text)
}

func TestAlign_SegmentMode(t *testing.T) {
	diar := []diarize.Segment{seg(0, 2, coach), seg(2, 5, primary)}
	segments := []transcript.Segment{
		{Text: " Hoe gaat het? ", Start: 0, End: 1.8},
		{Text: "Goed.", Start: 2.0, End: 3.0},
		{Text: "En met jou?", Start: 3.1, End: 5.0},
	}

	got := Align(diar, segments, Options{MergeGap: 0.2, MinTurnDur: 0.5})
	require.Len(t, got, 2)

	assert.Equal(t, Utterance{Start: 0, End: 1.8, Speaker: coach, Text: "Hoe gaat het?", Words: []LabeledWord{}}, got[0])
	assert.Equal(t, primary, got[1].Speaker)
	assert.Equal(t, 2.0, got[1].Start)
	assert.Equal(t, 5.0, got[1].End)
	assert.Equal(t, "Goed. En met jou?", got[1].Text)
	assert.Empty(t, got[1].Words)
}

func TestAlign_ShortTurnAbsorbedBackward(t *testing.T) {
	diar := []diarize.Segment{seg(0, 10, coach)}
	segments := []transcript.Segment{
		{Text: "long turn", Start: 0, End: 2},
		{Text: "hm", Start: 3, End: 3.2},
	}

	got := Align(diar, segments, Options{MergeGap: 0.2, MinTurnDur: 0.5})
	require.Len(t, got, 1)
	assert.Equal(t, "long turn hm", got[0].Text)
	assert.Equal(t, 0.0, got[0].Start)
	assert.Equal(t, 3.2, got[0].End)
}

func TestAlign_ShortTurnWithDifferentNeighbourKept(t *testing.T) {
	diar := []diarize.Segment{seg(0, 2, coach), seg(2, 3, primary)}
	segments := []transcript.Segment{
		{Text: "long turn", Start: 0, End: 2},
		{Text: "ja", Start: 2.4, End: 2.6},
	}

	got := Align(diar, segments, Options{MergeGap: 0.2, MinTurnDur: 0.5})
	require.Len(t, got, 2)
	assert.Equal(t, primary, got[1].Speaker)
	assert.Equal(t, "ja", got[1].Text)
}

func TestAlign_WordListsMatchText(t *testing.T) {
	diar := []diarize.Segment{seg(0, 1, coach), seg(1, 2.5, primary), seg(2.5, 4, coach)}
	segments := []transcript.Segment{{
		Text: "x", Start: 0, End: 4,
		Words: []transcript.Word{
			word(" we ", 0.0, 0.3), word("gaan", 0.35, 0.8), word("beginnen", 0.9, 1.4),
			word("oké", 1.5, 2.2), word("dan", 2.6, 2.9), word("nu", 3.0, 3.05),
		},
	}}

	for _, u := range Align(diar, segments, Options{MergeGap: 0.2, MinTurnDur: 0.5}) {
		parts := make([]string, len(u.Words))
		for i, w := range u.Words {
			parts[i] = w.Text
		}
		assert.Equal(t, strings.TrimSpace(strings.Join(parts, " ")), u.Text)
		assert.LessOrEqual(t, u.Start, u.End)
	}
}

func TestConcat(t *testing.T) {
	a := Utterance{Start: 0, End: 2, Speaker: coach, Text: "one", Words: []LabeledWord{{Text: "one", Start: 0, End: 2}}}
	b := Utterance{Start: 1, End: 1.5, Speaker: coach, Text: "two", Words: []LabeledWord{{Text: "two", Start: 1, End: 1.5}}}

	got := concat(a, b)
	assert.Equal(t, 2.0, got.End, "end never shrinks")
	assert.Equal(t, "one two", got.Text)
	assert.Len(t, got.Words, 2)

	got.Words[0].Text = "changed"
	assert.Equal(t, "one", a.Words[0].Text, "word slices are not shared")

	noWords := concat(Utterance{Text: "left"}, Utterance{Text: "right"})
	assert.Equal(t, "left right", noWords.Text)
}
