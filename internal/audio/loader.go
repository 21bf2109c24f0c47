package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Loader reads recordings from disk as mono signals at a fixed sample rate.
// With a Converter configured, any format ffmpeg understands is accepted;
// without one, only PCM WAV is.
type Loader struct {
	sampleRate int
	converter  Converter
	tempDir    string
	logger     *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConverter normalises input through c before decoding.
func WithConverter(c Converter) LoaderOption {
	return func(l *Loader) {
		l.converter = c
	}
}

// WithTempDir sets the directory for intermediate files.
func WithTempDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.tempDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a Loader producing signals at sampleRate.
// A non-positive sampleRate means DefaultSampleRate.
func NewLoader(sampleRate int, opts ...LoaderOption) *Loader {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	l := &Loader{sampleRate: sampleRate, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SampleRate returns the output sample rate.
func (l *Loader) SampleRate() int {
	return l.sampleRate
}

// Load decodes the recording at path.
func (l *Loader) Load(ctx context.Context, path string) (Signal, error) {
	src := path
	if l.converter != nil {
		tmp, err := os.CreateTemp(l.tempDir, "normalized_*.wav")
		if err != nil {
			return Signal{}, fmt.Errorf("create normalized file: %w", err)
		}
		_ = tmp.Close()
		defer func() { _ = os.Remove(tmp.Name()) }()

		if err := l.converter.Convert(ctx, path, tmp.Name(), l.sampleRate); err != nil {
			return Signal{}, fmt.Errorf("normalize audio: %w", err)
		}
		src = tmp.Name()
	}

	f, err := os.Open(src) // #nosec G304 - path comes from storage or the CLI
	if err != nil {
		return Signal{}, fmt.Errorf("open audio: %w", err)
	}
	defer func() { _ = f.Close() }()

	sig, err := DecodeWAV(f)
	if err != nil {
		return Signal{}, fmt.Errorf("decode audio: %w", err)
	}

	if sig.SampleRate != l.sampleRate {
		l.logger.Debug("Resampling audio",
			slog.Int("from", sig.SampleRate),
			slog.Int("to", l.sampleRate),
		)
		sig, err = Resample(sig, l.sampleRate)
		if err != nil {
			return Signal{}, fmt.Errorf("resample audio: %w", err)
		}
	}

	l.logger.Debug("Audio loaded",
		slog.String("path", path),
		slog.Float64("duration_sec", sig.Duration()),
	)
	return sig, nil
}
