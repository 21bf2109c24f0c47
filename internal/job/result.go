package job

import (
	"fmt"

	"github.com/maauso/coachscribe/internal/align"
	"github.com/maauso/coachscribe/internal/diarize"
)

// Result is the transcript document of one session. It is returned by the
// API, written by the batch command and archived to S3 as JSON.
type Result struct {
	SessionID     string      `json:"session_id" yaml:"session_id"`
	Language      string      `json:"language" yaml:"language"`
	Speakers      []Speaker   `json:"speakers" yaml:"speakers"`
	Utterances    []Utterance `json:"utterances" yaml:"utterances"`
	Metrics       Metrics     `json:"metrics" yaml:"metrics"`
	TranscriptURL string      `json:"transcript_url,omitempty" yaml:"transcript_url,omitempty"`
}

// Speaker is an entry of the speaker legend.
type Speaker struct {
	ID      string `json:"id" yaml:"id"`
	Display string `json:"display" yaml:"display"`
}

// Utterance is one speaker turn.
type Utterance struct {
	Start   float64 `json:"start" yaml:"start"`
	End     float64 `json:"end" yaml:"end"`
	Speaker string  `json:"speaker" yaml:"speaker"`
	Text    string  `json:"text" yaml:"text"`
	Words   []Word  `json:"words" yaml:"words"`
}

// Word is a transcribed word inside an utterance.
type Word struct {
	W       string  `json:"w" yaml:"w"`
	Start   float64 `json:"start" yaml:"start"`
	End     float64 `json:"end" yaml:"end"`
	Speaker string  `json:"speaker" yaml:"speaker"`
}

// Metrics describes how the transcript was produced.
type Metrics struct {
	ProcessingSec float64 `json:"processing_sec" yaml:"processing_sec"`
	Model         string  `json:"model" yaml:"model"`
}

// Clone returns a deep copy of r. A nil result clones to nil.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	c.Speakers = append([]Speaker(nil), r.Speakers...)
	c.Utterances = make([]Utterance, len(r.Utterances))
	for i, u := range r.Utterances {
		u.Words = append([]Word{}, u.Words...)
		c.Utterances[i] = u
	}
	return &c
}

// toUtterances converts aligned turns to their document form. Word lists
// are never nil so they serialise as [].
func toUtterances(utts []align.Utterance) []Utterance {
	out := make([]Utterance, len(utts))
	for i, u := range utts {
		words := make([]Word, len(u.Words))
		for j, w := range u.Words {
			words[j] = Word{W: w.Text, Start: w.Start, End: w.End, Speaker: w.Speaker.String()}
		}
		out[i] = Utterance{
			Start:   u.Start,
			End:     u.End,
			Speaker: u.Speaker.String(),
			Text:    u.Text,
			Words:   words,
		}
	}
	return out
}

// DisplayName returns the human-readable name of a speaker label.
func DisplayName(l diarize.Label) string {
	switch l {
	case diarize.LabelCoach:
		return "Coach"
	case diarize.LabelPrimaryNonCoach:
		return "Jongere"
	case diarize.LabelUnknown:
		return "Onbekend"
	}
	if k, ok := l.ClusterIndex(); ok {
		return fmt.Sprintf("Spreker %d", k)
	}
	return l.String()
}

// speakerLegend lists COACH and PRIMARY_NONCOACH first, followed by every
// other label found in the diarization or the utterances, in order of
// appearance.
func speakerLegend(diar []diarize.Segment, utts []align.Utterance) []Speaker {
	labels := []diarize.Label{diarize.LabelCoach, diarize.LabelPrimaryNonCoach}
	seen := map[diarize.Label]bool{
		diarize.LabelCoach:           true,
		diarize.LabelPrimaryNonCoach: true,
	}
	add := func(l diarize.Label) {
		if !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}
	for _, l := range diarize.SpeakerLabels(diar) {
		add(l)
	}
	for _, u := range utts {
		add(u.Speaker)
	}

	out := make([]Speaker, len(labels))
	for i, l := range labels {
		out[i] = Speaker{ID: l.String(), Display: DisplayName(l)}
	}
	return out
}
