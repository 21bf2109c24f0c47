// Package asr defines the speech-recognition capability.
package asr

import (
	"context"

	"github.com/maauso/coachscribe/internal/transcript"
)

// DefaultLanguage is the recognition language when a request names none.
const DefaultLanguage = "nl"

// Options controls a transcription run.
type Options struct {
	// Language is an ISO 639-1 code such as "nl" or "en".
	Language string
	// WordTimestamps requests per-word timing.
	WordTimestamps bool
}

// Transcriber turns a recording into timestamped transcript segments.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string, opts Options) ([]transcript.Segment, error)
	// Model names the recognition model, for response metrics.
	Model() string
}
