package vad

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Segmenter turns a mono signal into ordered, non-overlapping voiced intervals.
type Segmenter struct {
	detector Detector
	opts     Options
}

// NewSegmenter validates opts and creates a Segmenter.
// If detector is nil, an EnergyDetector with opts.Aggressiveness is used.
func NewSegmenter(detector Detector, opts Options) (*Segmenter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if detector == nil {
		detector = NewEnergyDetector(opts.Aggressiveness)
	}
	return &Segmenter{detector: detector, opts: opts}, nil
}

// Options returns the segmenter configuration.
func (s *Segmenter) Options() Options {
	return s.opts
}

// run is a span of consecutive speech frames, end exclusive.
type run struct {
	start int
	end   int
}

// Segment classifies every whole frame of samples and returns the voiced intervals.
// An empty signal, a signal shorter than one frame, or an all-silence signal
// yields an empty result.
func (s *Segmenter) Segment(samples []float32, sampleRate int) ([]Interval, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSampleRate, sampleRate)
	}

	flags, err := s.classify(samples, sampleRate)
	if err != nil {
		return nil, err
	}

	runs := mergeRuns(encodeRuns(flags), s.gapFrames())

	intervals := make([]Interval, 0, len(runs))
	for _, r := range runs {
		iv := Interval{Start: s.frameTime(r.start), End: s.frameTime(r.end)}
		if s.frameTime(r.end-r.start) < s.opts.MinSegmentDur {
			continue
		}
		intervals = append(intervals, iv)
	}
	return intervals, nil
}

// classify returns one speech flag per whole frame.
func (s *Segmenter) classify(samples []float32, sampleRate int) ([]bool, error) {
	frameSamples := sampleRate * s.opts.FrameMs / 1000
	if frameSamples == 0 {
		return nil, nil
	}
	nFrames := len(samples) / frameSamples
	if nFrames == 0 {
		return nil, nil
	}

	pcm := FloatToPCM16(samples[:nFrames*frameSamples])
	frameBytes := frameSamples * 2

	flags := make([]bool, nFrames)
	for i := 0; i < nFrames; i++ {
		frame := pcm[i*frameBytes : (i+1)*frameBytes]
		speech, err := s.detector.IsSpeech(frame, sampleRate)
		if err != nil {
			return nil, fmt.Errorf("classify frame %d: %w", i, err)
		}
		flags[i] = speech
	}
	return flags, nil
}

// gapFrames converts MergeGap to a whole number of frames, rounding down.
func (s *Segmenter) gapFrames() int {
	if s.opts.MergeGap <= 0 {
		return 0
	}
	// A small epsilon keeps exact multiples such as 0.2s at 10ms from rounding to 19.
	return int(math.Floor(s.opts.MergeGap*1000/float64(s.opts.FrameMs) + 1e-9))
}

func (s *Segmenter) frameTime(frames int) float64 {
	return float64(frames*s.opts.FrameMs) / 1000.0
}

// encodeRuns run-length encodes consecutive speech flags.
func encodeRuns(flags []bool) []run {
	var runs []run
	i := 0
	for i < len(flags) {
		if !flags[i] {
			i++
			continue
		}
		start := i
		for i < len(flags) && flags[i] {
			i++
		}
		runs = append(runs, run{start: start, end: i})
	}
	return runs
}

// mergeRuns joins runs whose gap in frames is at most maxGap.
func mergeRuns(runs []run, maxGap int) []run {
	merged := make([]run, 0, len(runs))
	for _, r := range runs {
		if n := len(merged); n > 0 && r.start-merged[n-1].end <= maxGap {
			merged[n-1].end = r.end
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// FloatToPCM16 converts float samples in [-1, 1] to 16-bit little-endian PCM.
// Samples outside the range are clipped.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32767)))
	}
	return out
}
