// Package bootstrap wires the application's dependencies from configuration.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/coachscribe/internal/audio"
	"github.com/maauso/coachscribe/internal/config"
	"github.com/maauso/coachscribe/internal/diarize"
	"github.com/maauso/coachscribe/internal/inference"
	"github.com/maauso/coachscribe/internal/job"
	"github.com/maauso/coachscribe/internal/pipeline"
	"github.com/maauso/coachscribe/internal/profile"
	"github.com/maauso/coachscribe/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server and CLI.
type Dependencies struct {
	Service  *job.Service
	Engine   *pipeline.Engine
	Profiles profile.Store
	Storage  storage.Storage
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize storage
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}
	profiles := initProfiles(cfg, store, logger)

	// Initialize model server clients
	clientOpts := []inference.ClientOption{
		inference.WithAPIKey(cfg.InferenceAPIKey),
		inference.WithLogger(logger),
	}
	embedder, err := inference.NewEmbeddingClient(cfg.EmbeddingURL, cfg.EmbeddingDim, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	transcriber, err := inference.NewASRClient(cfg.ASRURL, cfg.ASRModel, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create ASR client: %w", err)
	}

	engineOpts, err := EngineOptions(cfg)
	if err != nil {
		return nil, err
	}
	engine, err := pipeline.New(embedder, engineOpts, pipeline.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	svc := job.NewService(
		job.NewMemoryRepository(),
		engine,
		transcriber,
		NewLoader(cfg, logger),
		profiles,
		store,
		logger,
		job.WithMaxConcurrentJobs(cfg.MaxConcurrentJobs),
		job.WithCoachProfileName(cfg.CoachProfileName),
		job.WithDefaultLanguage(cfg.Language),
		job.WithTranscriptPrefix(cfg.S3TranscriptPrefix),
	)

	return &Dependencies{
		Service:  svc,
		Engine:   engine,
		Profiles: profiles,
		Storage:  store,
	}, nil
}

// EngineOptions maps configuration onto the pipeline stages.
func EngineOptions(cfg *config.Config) (pipeline.Options, error) {
	linkage, err := diarize.ParseLinkage(cfg.ClusterLinkage)
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("cluster linkage: %w", err)
	}

	opts := pipeline.DefaultOptions()
	opts.VAD.FrameMs = cfg.VADFrameMs
	opts.VAD.Aggressiveness = cfg.VADAggressiveness
	opts.VAD.MinSegmentDur = cfg.MinSegDur
	opts.VAD.MergeGap = cfg.MergeGap
	opts.Diarize.Threshold = cfg.CoachThreshold
	opts.Diarize.MaxSpeakers = cfg.MaxSpeakers
	opts.Diarize.SmoothWindow = cfg.SmoothWindow
	opts.Diarize.Linkage = linkage
	opts.Align.MergeGap = cfg.MergeGap
	opts.Align.MinTurnDur = cfg.MinSegDur
	return opts, nil
}

// NewLoader creates the audio loader. Recordings are normalised through
// ffmpeg when FFMPEG_PATH is set.
func NewLoader(cfg *config.Config, logger *slog.Logger) *audio.Loader {
	opts := []audio.LoaderOption{
		audio.WithTempDir(cfg.TempDir),
		audio.WithLogger(logger),
	}
	if cfg.FFmpegPath != "" {
		opts = append(opts, audio.WithConverter(audio.NewFFmpegConverter(cfg.FFmpegPath)))
	}
	return audio.NewLoader(cfg.SampleRate, opts...)
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("endpoint", cfg.S3Endpoint),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}

// initProfiles keeps speaker profiles in the bucket when S3 is configured,
// and in a JSON document on disk otherwise.
func initProfiles(cfg *config.Config, store storage.Storage, logger *slog.Logger) profile.Store {
	if objects, ok := store.(storage.ObjectStorage); ok && cfg.S3Enabled() {
		logger.Info("speaker profiles stored in S3",
			slog.String("prefix", cfg.S3ProfilePrefix),
		)
		return profile.NewObjectStore(objects, cfg.S3ProfilePrefix)
	}
	logger.Info("speaker profiles stored on disk",
		slog.String("path", cfg.ProfileDBPath),
	)
	return profile.NewFileStore(cfg.ProfileDBPath, logger)
}
