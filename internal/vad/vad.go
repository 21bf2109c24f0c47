// Package vad segments a mono signal into voiced time intervals.
//
// A Detector classifies fixed-size 16-bit PCM frames as speech or non-speech.
// The Segmenter frames the signal, run-length encodes consecutive speech
// frames, merges runs separated by short gaps and drops intervals that are
// too short to carry a speaker identity.
package vad

import (
	"errors"
	"fmt"
)

// Static errors for segmenter configuration and input.
var (
	// ErrInvalidFrameDuration is returned when the frame duration is not 10, 20 or 30 ms.
	ErrInvalidFrameDuration = errors.New("vad: frame duration must be 10, 20 or 30 ms")
	// ErrInvalidAggressiveness is returned when aggressiveness is outside 0..3.
	ErrInvalidAggressiveness = errors.New("vad: aggressiveness must be between 0 and 3")
	// ErrInvalidSampleRate is returned when the sample rate is not positive.
	ErrInvalidSampleRate = errors.New("vad: sample rate must be positive")
	// ErrInvalidFrame is returned when a frame is not whole 16-bit samples.
	ErrInvalidFrame = errors.New("vad: frame must contain whole 16-bit samples")
)

// Interval is a voiced time span in seconds. End is always greater than Start.
type Interval struct {
	Start float64
	End   float64
}

// Duration returns the interval length in seconds.
func (i Interval) Duration() float64 {
	if i.End < i.Start {
		return 0
	}
	return i.End - i.Start
}

// Detector decides whether a single PCM frame contains speech.
// Frames are 16-bit signed little-endian mono samples.
type Detector interface {
	IsSpeech(frame []byte, sampleRate int) (bool, error)
}

// DetectorFunc adapts an ordinary function to the Detector interface.
type DetectorFunc func(frame []byte, sampleRate int) (bool, error)

// IsSpeech calls f(frame, sampleRate).
func (f DetectorFunc) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	return f(frame, sampleRate)
}

// Options configures the segmenter.
type Options struct {
	// FrameMs is the frame duration in milliseconds: 10, 20 or 30.
	FrameMs int
	// Aggressiveness is the detector strictness, 0 (permissive) to 3 (strict).
	Aggressiveness int
	// MinSegmentDur drops merged intervals shorter than this many seconds.
	MinSegmentDur float64
	// MergeGap joins consecutive runs separated by at most this many seconds.
	MergeGap float64
}

// DefaultOptions returns the defaults used by the service.
func DefaultOptions() Options {
	return Options{
		FrameMs:        30,
		Aggressiveness: 2,
		MinSegmentDur:  0.5,
		MergeGap:       0.2,
	}
}

// Validate checks the options before any processing starts.
func (o Options) Validate() error {
	switch o.FrameMs {
	case 10, 20, 30:
	default:
		return fmt.Errorf("%w: got %d", ErrInvalidFrameDuration, o.FrameMs)
	}
	if o.Aggressiveness < 0 || o.Aggressiveness > 3 {
		return fmt.Errorf("%w: got %d", ErrInvalidAggressiveness, o.Aggressiveness)
	}
	return nil
}
