// Package audio decodes, converts and resamples recordings into the mono
// float signal the diarization engine works on.
package audio

import (
	"errors"
	"math"
)

// Sentinel errors for audio decoding.
var (
	// ErrUnsupportedFormat is returned for input that is not PCM WAV.
	ErrUnsupportedFormat = errors.New("audio: unsupported format, expected PCM WAV")
	// ErrInvalidSampleRate is returned for a non-positive sample rate.
	ErrInvalidSampleRate = errors.New("audio: invalid sample rate")
	// ErrFFmpegFailed is returned when the ffmpeg process exits with an error.
	ErrFFmpegFailed = errors.New("audio: ffmpeg failed")
)

// DefaultSampleRate is the rate the engine and the inference services expect.
const DefaultSampleRate = 16000

// Signal is a mono recording with samples in [-1, 1].
type Signal struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the length of the signal in seconds.
func (s Signal) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// Slice returns the samples in [start, end) seconds, clamped to the signal.
// The result shares memory with s.
func (s Signal) Slice(start, end float64) []float32 {
	if s.SampleRate <= 0 || end <= start {
		return nil
	}
	i0 := clampIndex(int(start*float64(s.SampleRate)), len(s.Samples))
	i1 := clampIndex(int(end*float64(s.SampleRate)), len(s.Samples))
	if i1 <= i0 {
		return nil
	}
	return s.Samples[i0:i1]
}

func clampIndex(i, n int) int {
	return max(0, min(i, n))
}

// Resample converts sig to rate using linear interpolation. Samples are
// clipped to [-1, 1]. A signal already at rate is returned unchanged.
func Resample(sig Signal, rate int) (Signal, error) {
	if rate <= 0 || sig.SampleRate <= 0 {
		return Signal{}, ErrInvalidSampleRate
	}
	if sig.SampleRate == rate || len(sig.Samples) == 0 {
		return Signal{Samples: sig.Samples, SampleRate: rate}, nil
	}

	ratio := float64(sig.SampleRate) / float64(rate)
	n := int(math.Floor(float64(len(sig.Samples)) / ratio))
	out := make([]float32, n)
	last := len(sig.Samples) - 1

	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = clip(sig.Samples[last])
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = clip(sig.Samples[j]*(1-frac) + sig.Samples[j+1]*frac)
	}
	return Signal{Samples: out, SampleRate: rate}, nil
}

func clip(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
