// Package pipeline runs the diarization engine over a decoded recording:
// voice activity segmentation, per-interval speaker embeddings, coach
// labelling with clustering of the remaining speech, and alignment of the
// resulting speaker segments with a transcript.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/coachscribe/internal/align"
	"github.com/maauso/coachscribe/internal/audio"
	"github.com/maauso/coachscribe/internal/diarize"
	"github.com/maauso/coachscribe/internal/embedding"
	"github.com/maauso/coachscribe/internal/profile"
	"github.com/maauso/coachscribe/internal/transcript"
	"github.com/maauso/coachscribe/internal/vad"
)

// Sentinel errors for engine operations.
var (
	// ErrNoVoicedSpeech is returned by Enroll when the recording has no voiced intervals.
	ErrNoVoicedSpeech = errors.New("pipeline: no voiced segments detected")
	// ErrEmbedderRequired is returned by New without an embedder.
	ErrEmbedderRequired = errors.New("pipeline: embedder is required")
	// ErrProfileDimension is returned when a reference profile does not match
	// the embedder's dimension.
	ErrProfileDimension = errors.New("pipeline: profile embedding dimension mismatch")
)

// Options configures every stage of the engine.
type Options struct {
	VAD     vad.Options
	Diarize diarize.Options
	Align   align.Options
}

// DefaultOptions returns the options the service runs with.
func DefaultOptions() Options {
	return Options{
		VAD:     vad.DefaultOptions(),
		Diarize: diarize.DefaultOptions(),
		Align:   align.DefaultOptions(),
	}
}

// Engine is built once at startup and shared by requests. It holds no
// per-request state.
type Engine struct {
	segmenter *vad.Segmenter
	embedder  embedding.Embedder
	opts      Options
	logger    *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	detector vad.Detector
	logger   *slog.Logger
}

// WithDetector replaces the default energy detector.
func WithDetector(d vad.Detector) EngineOption {
	return func(c *engineConfig) {
		c.detector = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(c *engineConfig) {
		c.logger = l
	}
}

// New validates opts and creates an Engine.
func New(embedder embedding.Embedder, opts Options, options ...EngineOption) (*Engine, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	cfg := engineConfig{logger: slog.Default()}
	for _, o := range options {
		o(&cfg)
	}

	segmenter, err := vad.NewSegmenter(cfg.detector, opts.VAD)
	if err != nil {
		return nil, fmt.Errorf("create segmenter: %w", err)
	}
	if err := opts.Diarize.Validate(); err != nil {
		return nil, fmt.Errorf("diarize options: %w", err)
	}

	return &Engine{
		segmenter: segmenter,
		embedder:  embedder,
		opts:      opts,
		logger:    cfg.logger,
	}, nil
}

// Options returns the engine configuration.
func (e *Engine) Options() Options {
	return e.opts
}

// DiarizeOption overrides diarizer options for a single call.
type DiarizeOption func(*diarize.Options)

// WithThreshold overrides the coach similarity threshold.
func WithThreshold(t float64) DiarizeOption {
	return func(o *diarize.Options) {
		o.Threshold = t
	}
}

// WithMaxSpeakers overrides the non-coach speaker cap.
func WithMaxSpeakers(n int) DiarizeOption {
	return func(o *diarize.Options) {
		o.MaxSpeakers = n
	}
}

// Diarize labels the voiced speech of sig. coach may be nil when no coach is
// enrolled, in which case every interval is clustered as a non-coach speaker.
// A recording without voiced intervals yields an empty result.
func (e *Engine) Diarize(ctx context.Context, sig audio.Signal, coach *profile.Profile, overrides ...DiarizeOption) ([]diarize.Segment, error) {
	opts := e.opts.Diarize
	for _, o := range overrides {
		o(&opts)
	}
	d, err := diarize.New(opts, diarize.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}

	var ref []float32
	if coach != nil {
		if coach.Dimension() != e.embedder.Dimension() {
			return nil, fmt.Errorf("%w: profile %q has %d, embedder produces %d",
				ErrProfileDimension, coach.Name, coach.Dimension(), e.embedder.Dimension())
		}
		ref = coach.Embedding
	}

	start := time.Now()
	intervals, err := e.segmenter.Segment(sig.Samples, sig.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	if len(intervals) == 0 {
		e.logger.Info("No voiced speech detected", slog.Float64("duration_sec", sig.Duration()))
		return []diarize.Segment{}, nil
	}

	embs, err := embedding.EmbedIntervals(ctx, e.embedder, sig, intervals)
	if err != nil {
		return nil, err
	}

	segments, err := d.Diarize(intervals, embs, ref)
	if err != nil {
		return nil, err
	}

	coachCount := 0
	for _, s := range segments {
		if s.Label == diarize.LabelCoach {
			coachCount++
		}
	}
	e.logger.Info("Diarization finished",
		slog.Int("segments", len(segments)),
		slog.Int("coach", coachCount),
		slog.Int("noncoach", len(segments)-coachCount),
		slog.Duration("elapsed", time.Since(start)),
	)
	return segments, nil
}

// Enroll computes a reference embedding for the single speaker in sig: the
// mean of the embeddings of its voiced intervals.
// Returns ErrNoVoicedSpeech when nothing in sig is voiced.
func (e *Engine) Enroll(ctx context.Context, sig audio.Signal) (embedding.Vector, error) {
	intervals, err := e.segmenter.Segment(sig.Samples, sig.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	if len(intervals) == 0 {
		return nil, ErrNoVoicedSpeech
	}

	embs, err := embedding.EmbedIntervals(ctx, e.embedder, sig, intervals)
	if err != nil {
		return nil, err
	}
	ref, err := embedding.MeanPool(embs, e.embedder.Dimension())
	if err != nil {
		return nil, fmt.Errorf("pool embeddings: %w", err)
	}

	e.logger.Info("Enrollment embedding computed",
		slog.Int("segments", len(intervals)),
		slog.Int("dim", len(ref)),
	)
	return ref, nil
}

// Align fuses diarized segments with a transcript into speaker turns.
func (e *Engine) Align(diar []diarize.Segment, segments []transcript.Segment) []align.Utterance {
	return align.Align(diar, segments, e.opts.Align)
}
