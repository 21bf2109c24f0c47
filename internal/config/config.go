// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrEmbeddingURLRequired is returned when EMBEDDING_URL is not set.
	ErrEmbeddingURLRequired = errors.New("config: EMBEDDING_URL is required")
	// ErrASRURLRequired is returned when ASR_URL is not set.
	ErrASRURLRequired = errors.New("config: ASR_URL is required")
	// ErrInvalidConfig is returned when a value is out of range.
	ErrInvalidConfig = errors.New("config: invalid value")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`

	// Storage settings
	TempDir       string `env:"TEMP_DIR, default=/tmp/coachscribe" json:"temp_dir"`
	ProfileDBPath string `env:"PROFILE_DB_PATH, default=data/speaker_db.json" json:"profile_db_path"`

	// Processing settings
	MaxConcurrentJobs int    `env:"MAX_CONCURRENT_JOBS, default=2" json:"max_concurrent_jobs" validate:"min=1"`
	SampleRate        int    `env:"SAMPLE_RATE, default=16000" json:"sample_rate" validate:"min=8000"`
	FFmpegPath        string `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"` // Empty disables conversion

	// Voice activity detection
	VADFrameMs        int     `env:"VAD_FRAME_MS, default=30" json:"vad_frame_ms" validate:"oneof=10 20 30"`
	VADAggressiveness int     `env:"VAD_AGGRESSIVENESS, default=2" json:"vad_aggressiveness" validate:"min=0,max=3"`
	MinSegDur         float64 `env:"MIN_SEG_DUR, default=0.5" json:"min_seg_dur" validate:"gte=0"`
	MergeGap          float64 `env:"MERGE_GAP, default=0.2" json:"merge_gap" validate:"gte=0"`

	// Diarization
	CoachThreshold   float64 `env:"COACH_THRESHOLD, default=0.72" json:"coach_threshold" validate:"gte=-1,lte=1"`
	MaxSpeakers      int     `env:"MAX_SPEAKERS, default=2" json:"max_speakers" validate:"min=1"`
	SmoothWindow     int     `env:"SMOOTH_WINDOW, default=3" json:"smooth_window" validate:"min=1"`
	ClusterLinkage   string  `env:"CLUSTER_LINKAGE, default=ward" json:"cluster_linkage" validate:"oneof=ward average-cosine"`
	Language         string  `env:"LANGUAGE, default=nl" json:"language" validate:"required"`
	CoachProfileName string  `env:"COACH_PROFILE_NAME, default=COACH" json:"coach_profile_name" validate:"required"`

	// Model servers
	EmbeddingURL    string `env:"EMBEDDING_URL, required" json:"embedding_url" validate:"url"`
	EmbeddingDim    int    `env:"EMBEDDING_DIM, default=192" json:"embedding_dim" validate:"min=1"`
	ASRURL          string `env:"ASR_URL, required" json:"asr_url" validate:"url"`
	ASRModel        string `env:"ASR_MODEL, default=large-v3" json:"asr_model"`
	InferenceAPIKey string `env:"INFERENCE_API_KEY" json:"-"` // Masked in JSON

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON
	S3ProfilePrefix    string `env:"S3_PROFILE_PREFIX, default=profiles" json:"s3_profile_prefix"`
	S3TranscriptPrefix string `env:"S3_TRANSCRIPT_PREFIX, default=transcripts" json:"s3_transcript_prefix"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=text json"`
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"` // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return load(envconfig.OsLookuper())
}

func load(lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "EMBEDDING_URL") {
			return nil, ErrEmbeddingURLRequired
		}
		if strings.Contains(err.Error(), "ASR_URL") {
			return nil, ErrASRURLRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	if c.EmbeddingURL == "" {
		return ErrEmbeddingURLRequired
	}
	if c.ASRURL == "" {
		return ErrASRURLRequired
	}
	if c.SmoothWindow%2 == 0 {
		return fmt.Errorf("%w: SMOOTH_WINDOW must be odd, got %d", ErrInvalidConfig, c.SmoothWindow)
	}

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q (got %v)", ErrInvalidConfig, fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, ProfileDBPath: %s, MaxConcurrentJobs: %d, SampleRate: %d, "+
			"CoachThreshold: %.2f, MaxSpeakers: %d, SmoothWindow: %d, ClusterLinkage: %s, Language: %s, "+
			"EmbeddingURL: %s, ASRURL: %s, ASRModel: %s, InferenceAPIKey: %s, "+
			"S3Bucket: %s, S3Region: %s, S3Endpoint: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.ProfileDBPath,
		c.MaxConcurrentJobs,
		c.SampleRate,
		c.CoachThreshold,
		c.MaxSpeakers,
		c.SmoothWindow,
		c.ClusterLinkage,
		c.Language,
		c.EmbeddingURL,
		c.ASRURL,
		c.ASRModel,
		mask(c.InferenceAPIKey),
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
