package job

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/maauso/coachscribe/internal/asr"
	"github.com/maauso/coachscribe/internal/audio"
	"github.com/maauso/coachscribe/internal/job/id"
	"github.com/maauso/coachscribe/internal/pipeline"
	"github.com/maauso/coachscribe/internal/profile"
	"github.com/maauso/coachscribe/internal/storage"
)

// Service errors.
var (
	// ErrAudioPathRequired is returned when an input names no recording.
	ErrAudioPathRequired = errors.New("job: audio path is required")
	// ErrProfileNotFound is returned when a speaker has not been enrolled.
	ErrProfileNotFound = errors.New("job: profile not found")
)

// AudioLoader decodes a recording into a mono signal at the engine's rate.
type AudioLoader interface {
	Load(ctx context.Context, path string) (audio.Signal, error)
}

// EnrollInput contains the parameters of an enrollment.
type EnrollInput struct {
	// AudioPath is the reference recording of the speaker.
	AudioPath string
	// SpeakerName is the profile key, defaulting to the coach profile name.
	SpeakerName string
}

// EnrollOutput describes a saved profile.
type EnrollOutput struct {
	Speaker      string
	DurationSec  float64
	EmbeddingDim int
	Saved        bool
}

// TranscribeInput contains the parameters of a transcription.
type TranscribeInput struct {
	// AudioPath is the session recording.
	AudioPath string
	// Language is the transcription language, defaulting to the service language.
	Language string
	// CoachThreshold overrides the coach similarity threshold when set.
	CoachThreshold *float64
	// MaxSpeakers overrides the non-coach speaker cap when positive.
	MaxSpeakers int
	// UseWordTimestamps requests word-level alignment.
	UseWordTimestamps bool
	// PushToS3 archives the transcript to S3.
	PushToS3 bool
}

// Service runs enrollments and transcriptions. The coach profile is read
// once per run, so a concurrent re-enrollment never changes a transcript
// midway.
type Service struct {
	repo        Repository
	engine      *pipeline.Engine
	transcriber asr.Transcriber
	loader      AudioLoader
	profiles    profile.Store
	store       storage.Storage
	logger      *slog.Logger

	coachName        string
	language         string
	transcriptPrefix string
	// sem limits concurrent transcriptions.
	sem chan struct{}
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMaxConcurrentJobs sets the number of transcriptions allowed to run at once.
func WithMaxConcurrentJobs(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.sem = make(chan struct{}, n)
		}
	}
}

// WithCoachProfileName sets the profile used as the coach reference.
func WithCoachProfileName(name string) ServiceOption {
	return func(s *Service) {
		if name != "" {
			s.coachName = name
		}
	}
}

// WithDefaultLanguage sets the language used when a request names none.
func WithDefaultLanguage(lang string) ServiceOption {
	return func(s *Service) {
		if lang != "" {
			s.language = lang
		}
	}
}

// WithTranscriptPrefix sets the S3 key prefix of archived transcripts.
func WithTranscriptPrefix(prefix string) ServiceOption {
	return func(s *Service) {
		s.transcriptPrefix = prefix
	}
}

// NewService creates a new Service.
func NewService(
	repo Repository,
	engine *pipeline.Engine,
	transcriber asr.Transcriber,
	loader AudioLoader,
	profiles profile.Store,
	store storage.Storage,
	logger *slog.Logger,
	opts ...ServiceOption,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:             repo,
		engine:           engine,
		transcriber:      transcriber,
		loader:           loader,
		profiles:         profiles,
		store:            store,
		logger:           logger,
		coachName:        profile.DefaultName,
		language:         asr.DefaultLanguage,
		transcriptPrefix: "transcripts",
		sem:              make(chan struct{}, 2),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CoachProfileName returns the profile used as the coach reference.
func (s *Service) CoachProfileName() string {
	return s.coachName
}

// SaveUpload stores an uploaded recording in scratch storage and returns its path.
func (s *Service) SaveUpload(ctx context.Context, name string, data io.Reader) (string, error) {
	p, err := s.store.SaveTemp(ctx, name, data)
	if err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return p, nil
}

// Discard removes scratch recordings, logging failures.
func (s *Service) Discard(ctx context.Context, paths ...string) {
	if err := s.store.CleanupTemp(ctx, paths); err != nil {
		s.logger.Warn("failed to clean up temp files",
			slog.Any("paths", paths),
			slog.String("error", err.Error()),
		)
	}
}

// Enroll computes the reference embedding of a single-speaker recording and
// saves it as a profile. A recording without voiced speech is rejected with
// pipeline.ErrNoVoicedSpeech.
func (s *Service) Enroll(ctx context.Context, in EnrollInput) (*EnrollOutput, error) {
	if in.AudioPath == "" {
		return nil, ErrAudioPathRequired
	}
	name := strings.TrimSpace(in.SpeakerName)
	if name == "" {
		name = s.coachName
	}

	sig, err := s.loader.Load(ctx, in.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("load audio: %w", err)
	}
	s.logger.Info("enrolling speaker",
		slog.String("speaker", name),
		slog.Float64("duration_sec", sig.Duration()),
		slog.Int("sample_rate", sig.SampleRate),
	)

	emb, err := s.engine.Enroll(ctx, sig)
	if err != nil {
		return nil, fmt.Errorf("enroll %s: %w", name, err)
	}

	p := &profile.Profile{
		Name:        name,
		Embedding:   emb,
		SampleRate:  sig.SampleRate,
		DurationSec: sig.Duration(),
		UpdatedAt:   time.Now(),
	}
	if err := s.profiles.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}

	return &EnrollOutput{
		Speaker:      name,
		DurationSec:  sig.Duration(),
		EmbeddingDim: len(emb),
		Saved:        true,
	}, nil
}

// GetProfile returns the enrolled profile for name.
// Returns ErrProfileNotFound if the speaker was never enrolled.
func (s *Service) GetProfile(ctx context.Context, name string) (*profile.Profile, error) {
	p, err := s.profiles.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

// Transcribe diarizes and transcribes a recording synchronously.
func (s *Service) Transcribe(ctx context.Context, in TranscribeInput) (*Result, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	return s.transcribe(ctx, in, func(int) {})
}

// CreateJob creates a new job and persists it to the repository.
// The job is created in IN_QUEUE status, ready for processing.
func (s *Service) CreateJob(ctx context.Context, in TranscribeInput) (*Job, error) {
	job := New()
	job.InputAudioPath = in.AudioPath
	job.Language = s.languageFor(in)
	job.PushToS3 = in.PushToS3

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("language", job.Language),
		slog.Bool("push_to_s3", in.PushToS3),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return job, nil
}

// ProcessExistingJob runs a job created by CreateJob. It waits for a free
// processing slot, records progress in the repository and removes the input
// recording when done.
func (s *Service) ProcessExistingJob(ctx context.Context, jobID string, in TranscribeInput) (*Result, error) {
	defer s.Discard(context.WithoutCancel(ctx), in.AudioPath)

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := s.acquire(ctx); err != nil {
		s.finish(ctx, job, nil, err)
		return nil, err
	}
	defer s.release()

	if err := job.Start(); err != nil {
		return nil, fmt.Errorf("start job %s: %w", jobID, err)
	}
	s.save(ctx, job)

	result, err := s.transcribe(ctx, in, func(p int) {
		job.UpdateProgress(p)
		s.save(ctx, job)
	})
	s.finish(ctx, job, result, err)
	return result, err
}

// finish moves job to its terminal state and persists it.
func (s *Service) finish(ctx context.Context, job *Job, result *Result, err error) {
	switch {
	case err == nil:
		_ = job.Complete(result)
		s.logger.Info("job completed",
			slog.String("job_id", job.ID),
			slog.Int("utterances", len(result.Utterances)),
		)
	case errors.Is(err, context.DeadlineExceeded):
		_ = job.Timeout()
	case errors.Is(err, context.Canceled):
		_ = job.Cancel()
	default:
		_ = job.Fail(err.Error())
		s.logger.Error("job failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
	s.save(context.WithoutCancel(ctx), job)
}

func (s *Service) save(ctx context.Context, job *Job) {
	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all known jobs.
func (s *Service) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// DeleteJob forgets a finished job. Running jobs cannot be deleted.
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsTerminal() {
		return fmt.Errorf("delete job %s in state %s: %w", id, job.Status, ErrInvalidTransition)
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) release() {
	<-s.sem
}

func (s *Service) languageFor(in TranscribeInput) string {
	if in.Language != "" {
		return in.Language
	}
	return s.language
}

// transcribe runs the full session workflow:
//  1. Decode the recording
//  2. Load the coach profile
//  3. Diarize the voiced speech
//  4. Transcribe the recording
//  5. Align speakers with the transcript
//  6. Optionally archive the transcript to S3
func (s *Service) transcribe(ctx context.Context, in TranscribeInput, progress func(int)) (*Result, error) {
	if in.AudioPath == "" {
		return nil, ErrAudioPathRequired
	}
	start := time.Now()
	language := s.languageFor(in)

	sig, err := s.loader.Load(ctx, in.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("load audio: %w", err)
	}
	progress(10)

	coach, err := s.profiles.Load(ctx, s.coachName)
	if err != nil {
		return nil, fmt.Errorf("load coach profile: %w", err)
	}
	if coach == nil {
		s.logger.Warn("no coach profile enrolled, labelling all speech as non-coach",
			slog.String("profile", s.coachName),
		)
	}

	var overrides []pipeline.DiarizeOption
	if in.CoachThreshold != nil {
		overrides = append(overrides, pipeline.WithThreshold(*in.CoachThreshold))
	}
	if in.MaxSpeakers > 0 {
		overrides = append(overrides, pipeline.WithMaxSpeakers(in.MaxSpeakers))
	}
	diar, err := s.engine.Diarize(ctx, sig, coach, overrides...)
	if err != nil {
		return nil, fmt.Errorf("diarize: %w", err)
	}
	progress(40)

	segments, err := s.transcriber.Transcribe(ctx, in.AudioPath, asr.Options{
		Language:       language,
		WordTimestamps: in.UseWordTimestamps,
	})
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	progress(80)

	utts := s.engine.Align(diar, segments)
	result := &Result{
		SessionID:  id.Session(),
		Language:   language,
		Speakers:   speakerLegend(diar, utts),
		Utterances: toUtterances(utts),
		Metrics: Metrics{
			ProcessingSec: time.Since(start).Seconds(),
			Model:         s.transcriber.Model(),
		},
	}

	if in.PushToS3 {
		url, err := s.archive(ctx, result)
		if err != nil {
			return nil, err
		}
		result.TranscriptURL = url
	}

	s.logger.Info("transcription finished",
		slog.String("session_id", result.SessionID),
		slog.Float64("duration_sec", sig.Duration()),
		slog.Int("segments", len(diar)),
		slog.Int("utterances", len(result.Utterances)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// archive uploads the transcript document and returns its URL.
func (s *Service) archive(ctx context.Context, result *Result) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}
	key := path.Join(s.transcriptPrefix, result.SessionID+".json")
	url, err := s.store.UploadToS3(ctx, key, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("archive transcript: %w", err)
	}
	return url, nil
}
