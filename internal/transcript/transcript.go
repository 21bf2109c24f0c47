// Package transcript defines the read-only transcript types produced by the
// transcription capability and consumed by the turn aligner.
package transcript

// Word is a single recognised word with its time span in seconds.
type Word struct {
	Text  string
	Start float64
	End   float64
}

// Segment is a coarse transcript unit. Words is empty when the transcription
// capability did not produce word-level timestamps.
type Segment struct {
	Text  string
	Start float64
	End   float64
	Words []Word
}

// HasWords reports whether any segment carries word-level tokens.
func HasWords(segments []Segment) bool {
	for _, s := range segments {
		if len(s.Words) > 0 {
			return true
		}
	}
	return false
}
