package diarize

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/coachscribe/internal/vad"
)

// Sentinel errors for diarizer configuration and input.
var (
	ErrLengthMismatch     = errors.New("diarize: intervals and embeddings differ in length")
	ErrInvalidThreshold   = errors.New("diarize: coach threshold must be within [-1, 1]")
	ErrInvalidMaxSpeakers = errors.New("diarize: max speakers must be at least 1")
)

// Options configures a Diarizer.
type Options struct {
	// Threshold is the minimum cosine similarity to the coach reference.
	Threshold float64
	// SmoothWindow is the odd median filter width, 1 disables smoothing.
	SmoothWindow int
	// MaxSpeakers caps the number of non-coach clusters.
	MaxSpeakers int
	Linkage     Linkage
}

// DefaultOptions returns the options the service runs with.
func DefaultOptions() Options {
	return Options{
		Threshold:    0.72,
		SmoothWindow: 3,
		MaxSpeakers:  2,
		Linkage:      LinkageWard,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.Threshold < -1 || o.Threshold > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, o.Threshold)
	}
	if o.SmoothWindow < 1 || o.SmoothWindow%2 == 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSmoothWindow, o.SmoothWindow)
	}
	if o.MaxSpeakers < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxSpeakers, o.MaxSpeakers)
	}
	if _, err := ParseLinkage(string(o.Linkage)); err != nil {
		return err
	}
	return nil
}

// Diarizer labels voiced intervals given their embeddings and an optional
// coach reference.
type Diarizer struct {
	opts   Options
	logger *slog.Logger
}

// Option configures a Diarizer.
type Option func(*Diarizer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Diarizer) {
		d.logger = l
	}
}

// New validates opts and creates a Diarizer.
func New(opts Options, options ...Option) (*Diarizer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	d := &Diarizer{opts: opts, logger: slog.Default()}
	for _, o := range options {
		o(d)
	}
	return d, nil
}

// Options returns the diarizer configuration.
func (d *Diarizer) Options() Options {
	return d.opts
}

// Diarize returns one labelled segment per interval, in input order.
// A nil reference means no coach is enrolled: every interval is clustered as
// a non-coach speaker.
func (d *Diarizer) Diarize(intervals []vad.Interval, embs [][]float32, ref []float32) ([]Segment, error) {
	if len(intervals) != len(embs) {
		return nil, fmt.Errorf("%w: %d intervals, %d embeddings", ErrLengthMismatch, len(intervals), len(embs))
	}
	if len(intervals) == 0 {
		return []Segment{}, nil
	}

	labels := LabelByReference(embs, ref, d.opts.Threshold)
	labels, err := MedianSmooth(labels, d.opts.SmoothWindow)
	if err != nil {
		return nil, err
	}

	labels, err = ClusterUnknowns(labels, embs, d.opts.MaxSpeakers, d.opts.Linkage)
	if err != nil {
		return nil, fmt.Errorf("cluster unknowns: %w", err)
	}

	segments := make([]Segment, len(intervals))
	for i, iv := range intervals {
		segments[i] = Segment{Start: iv.Start, End: iv.End, Label: labels[i]}
	}
	segments = Promote(segments)

	d.logger.Debug("Diarization complete",
		"segments", len(segments),
		"coach_enrolled", len(ref) > 0,
		"speakers", len(SpeakerLabels(segments)),
	)
	return segments, nil
}

// SpeakerLabels returns the distinct labels of segments in first-appearance order.
func SpeakerLabels(segments []Segment) []Label {
	seen := make(map[Label]bool)
	var labels []Label
	for _, s := range segments {
		if !seen[s.Label] {
			seen[s.Label] = true
			labels = append(labels, s.Label)
		}
	}
	return labels
}
