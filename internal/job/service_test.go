package job

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/coachscribe/internal/asr"
	"github.com/maauso/coachscribe/internal/audio"
	"github.com/maauso/coachscribe/internal/embedding"
	"github.com/maauso/coachscribe/internal/pipeline"
	"github.com/maauso/coachscribe/internal/profile"
	"github.com/maauso/coachscribe/internal/storage"
	"github.com/maauso/coachscribe/internal/transcript"
	"github.com/maauso/coachscribe/internal/vad"
)

const (
	rate     = 16000
	frameLen = rate * 30 / 1000
)

// levelEmbedder returns one of two voices depending on signal amplitude.
type levelEmbedder struct{}

func (levelEmbedder) Embed(_ context.Context, samples []float32, _ int) (embedding.Vector, error) {
	var sum float32
	for _, s := range samples {
		sum += s
	}
	if len(samples) > 0 && sum/float32(len(samples)) > 0.375 {
		return embedding.Vector{0.9, 0.4359}, nil
	}
	return embedding.Vector{0.3, 0.9539}, nil
}

func (levelEmbedder) Dimension() int { return 2 }

var nonZero = vad.DetectorFunc(func(frame []byte, _ int) (bool, error) {
	for _, b := range frame {
		if b != 0 {
			return true, nil
		}
	}
	return false, nil
})

// frames builds a signal from (frame count, level) pairs.
func frames(pairs ...float32) audio.Signal {
	var samples []float32
	for i := 0; i+1 < len(pairs); i += 2 {
		n := int(pairs[i]) * frameLen
		for j := 0; j < n; j++ {
			samples = append(samples, pairs[i+1])
		}
	}
	return audio.Signal{Samples: samples, SampleRate: rate}
}

var (
	coachOnly = frames(40, 0.5)
	silence   = frames(60, 0)
	session   = frames(34, 0.5, 15, 0, 34, 0.25, 15, 0, 34, 0.5)
)

// fakeLoader serves signals by file name.
type fakeLoader map[string]audio.Signal

func (l fakeLoader) Load(_ context.Context, path string) (audio.Signal, error) {
	sig, ok := l[filepath.Base(path)]
	if !ok {
		return audio.Signal{}, os.ErrNotExist
	}
	return sig, nil
}

type mockTranscriber struct {
	mock.Mock
}

func (m *mockTranscriber) Transcribe(ctx context.Context, wavPath string, opts asr.Options) ([]transcript.Segment, error) {
	args := m.Called(ctx, wavPath, opts)
	segs, _ := args.Get(0).([]transcript.Segment)
	return segs, args.Error(1)
}

func (m *mockTranscriber) Model() string {
	return "faster-whisper test"
}

type mockStorage struct {
	mock.Mock
	*storage.LocalStorage
}

func (m *mockStorage) UploadToS3(ctx context.Context, key string, data io.Reader) (string, error) {
	body, _ := io.ReadAll(data)
	args := m.Called(ctx, key, string(body))
	return args.String(0), args.Error(1)
}

var sessionWords = []transcript.Segment{
	{Text: "goedemorgen", Start: 0.1, End: 0.9, Words: []transcript.Word{{Text: " goedemorgen", Start: 0.1, End: 0.9}}},
	{Text: "hoi", Start: 1.6, End: 2.4, Words: []transcript.Word{{Text: " hoi", Start: 1.6, End: 2.4}}},
	{Text: "fijn", Start: 3.0, End: 3.8, Words: []transcript.Word{{Text: " fijn", Start: 3.0, End: 3.8}}},
}

type fixture struct {
	svc         *Service
	repo        *MemoryRepository
	transcriber *mockTranscriber
	profiles    *profile.FileStore
	local       *storage.LocalStorage
}

func newFixture(t *testing.T, store storage.Storage, opts ...ServiceOption) *fixture {
	t.Helper()

	engineOpts := pipeline.DefaultOptions()
	engineOpts.Diarize.SmoothWindow = 1
	engine, err := pipeline.New(levelEmbedder{}, engineOpts, pipeline.WithDetector(nonZero))
	require.NoError(t, err)

	local, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "scratch"))
	require.NoError(t, err)
	if store == nil {
		store = local
	}

	f := &fixture{
		repo:        NewMemoryRepository(),
		transcriber: &mockTranscriber{},
		profiles:    profile.NewFileStore(filepath.Join(t.TempDir(), "speaker_db.json"), nil),
		local:       local,
	}
	loader := fakeLoader{"coach.wav": coachOnly, "silence.wav": silence, "session.wav": session}
	f.svc = NewService(f.repo, engine, f.transcriber, loader, f.profiles, store, nil, opts...)
	return f
}

func (f *fixture) enrollCoach(t *testing.T) {
	t.Helper()
	_, err := f.svc.Enroll(context.Background(), EnrollInput{AudioPath: "coach.wav"})
	require.NoError(t, err)
}

func TestNewService_Defaults(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, profile.DefaultName, f.svc.CoachProfileName())
	assert.Equal(t, asr.DefaultLanguage, f.svc.language)
	assert.Equal(t, 2, cap(f.svc.sem))

	f = newFixture(t, nil,
		WithMaxConcurrentJobs(5),
		WithMaxConcurrentJobs(0),
		WithCoachProfileName("TRAINER"),
		WithDefaultLanguage("en"),
		WithTranscriptPrefix("archive"),
	)
	assert.Equal(t, 5, cap(f.svc.sem))
	assert.Equal(t, "TRAINER", f.svc.CoachProfileName())
	assert.Equal(t, "en", f.svc.language)
	assert.Equal(t, "archive", f.svc.transcriptPrefix)
}

func TestService_Enroll(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out, err := f.svc.Enroll(ctx, EnrollInput{AudioPath: "coach.wav"})
	require.NoError(t, err)

	assert.Equal(t, "COACH", out.Speaker)
	assert.Equal(t, 2, out.EmbeddingDim)
	assert.True(t, out.Saved)
	assert.InDelta(t, 1.2, out.DurationSec, 1e-9)

	p, err := f.svc.GetProfile(ctx, "COACH")
	require.NoError(t, err)
	assert.Equal(t, rate, p.SampleRate)
	assert.InDeltaSlice(t, []float32{0.9, 0.4359}, p.Embedding, 1e-6)
}

func TestService_EnrollNamedSpeaker(t *testing.T) {
	f := newFixture(t, nil)

	out, err := f.svc.Enroll(context.Background(), EnrollInput{AudioPath: "coach.wav", SpeakerName: " ASSISTANT "})
	require.NoError(t, err)
	assert.Equal(t, "ASSISTANT", out.Speaker)

	_, err = f.svc.GetProfile(context.Background(), "COACH")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestService_EnrollErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, EnrollInput{})
	assert.ErrorIs(t, err, ErrAudioPathRequired)

	_, err = f.svc.Enroll(ctx, EnrollInput{AudioPath: "silence.wav"})
	assert.ErrorIs(t, err, pipeline.ErrNoVoicedSpeech)

	_, err = f.svc.Enroll(ctx, EnrollInput{AudioPath: "missing.wav"})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestService_Transcribe(t *testing.T) {
	f := newFixture(t, nil)
	f.enrollCoach(t)
	f.transcriber.On("Transcribe", mock.Anything, "session.wav", asr.Options{Language: "nl", WordTimestamps: true}).
		Return(sessionWords, nil).Once()

	result, err := f.svc.Transcribe(context.Background(), TranscribeInput{
		AudioPath:         "session.wav",
		UseWordTimestamps: true,
	})
	require.NoError(t, err)
	f.transcriber.AssertExpectations(t)

	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, "nl", result.Language)
	assert.Equal(t, "faster-whisper test", result.Metrics.Model)
	assert.GreaterOrEqual(t, result.Metrics.ProcessingSec, 0.0)
	assert.Equal(t, []Speaker{{ID: "COACH", Display: "Coach"}, {ID: "PRIMARY_NONCOACH", Display: "Jongere"}}, result.Speakers)

	require.Len(t, result.Utterances, 3)
	assert.Equal(t, "COACH", result.Utterances[0].Speaker)
	assert.Equal(t, "goedemorgen", result.Utterances[0].Text)
	assert.Equal(t, "PRIMARY_NONCOACH", result.Utterances[1].Speaker)
	assert.Equal(t, "hoi", result.Utterances[1].Words[0].W)
	assert.Equal(t, "COACH", result.Utterances[2].Speaker)
	assert.Empty(t, result.TranscriptURL)
}

func TestService_TranscribeWithoutProfile(t *testing.T) {
	f := newFixture(t, nil)
	f.transcriber.On("Transcribe", mock.Anything, "session.wav", mock.Anything).Return(sessionWords, nil)

	result, err := f.svc.Transcribe(context.Background(), TranscribeInput{AudioPath: "session.wav", Language: "en"})
	require.NoError(t, err)

	assert.Equal(t, "en", result.Language)
	for _, u := range result.Utterances {
		assert.NotEqual(t, "COACH", u.Speaker)
	}
}

func TestService_TranscribeThresholdOverride(t *testing.T) {
	f := newFixture(t, nil)
	f.enrollCoach(t)
	f.transcriber.On("Transcribe", mock.Anything, "session.wav", mock.Anything).Return(sessionWords, nil)

	low := 0.5
	result, err := f.svc.Transcribe(context.Background(), TranscribeInput{AudioPath: "session.wav", CoachThreshold: &low})
	require.NoError(t, err)

	// both voices clear the lower threshold
	require.Len(t, result.Utterances, 3)
	for _, u := range result.Utterances {
		assert.Equal(t, "COACH", u.Speaker)
	}
}

func TestService_TranscribeErrors(t *testing.T) {
	f := newFixture(t, nil)
	boom := errors.New("asr offline")
	f.transcriber.On("Transcribe", mock.Anything, "session.wav", mock.Anything).Return(nil, boom)
	ctx := context.Background()

	_, err := f.svc.Transcribe(ctx, TranscribeInput{})
	assert.ErrorIs(t, err, ErrAudioPathRequired)

	_, err = f.svc.Transcribe(ctx, TranscribeInput{AudioPath: "session.wav"})
	assert.ErrorIs(t, err, boom)

	_, err = f.svc.Transcribe(ctx, TranscribeInput{AudioPath: "session.wav", MaxSpeakers: -1})
	assert.ErrorIs(t, err, boom, "non-positive overrides fall back to defaults")
}

func TestService_TranscribeArchivesToS3(t *testing.T) {
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := &mockStorage{LocalStorage: local}
	store.On("UploadToS3", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "archive/") && strings.HasSuffix(key, ".json")
	}), mock.MatchedBy(func(body string) bool {
		var doc map[string]any
		return json.Unmarshal([]byte(body), &doc) == nil && doc["session_id"] != ""
	})).Return("https://bucket.s3.eu-west-1.amazonaws.com/archive/x.json", nil).Once()

	f := newFixture(t, store, WithTranscriptPrefix("archive"))
	f.transcriber.On("Transcribe", mock.Anything, "session.wav", mock.Anything).Return(sessionWords, nil)

	result, err := f.svc.Transcribe(context.Background(), TranscribeInput{AudioPath: "session.wav", PushToS3: true})
	require.NoError(t, err)
	store.AssertExpectations(t)
	assert.Equal(t, "https://bucket.s3.eu-west-1.amazonaws.com/archive/x.json", result.TranscriptURL)
}

func TestService_TranscribeArchiveWithoutS3(t *testing.T) {
	f := newFixture(t, nil)
	f.transcriber.On("Transcribe", mock.Anything, "session.wav", mock.Anything).Return(sessionWords, nil)

	_, err := f.svc.Transcribe(context.Background(), TranscribeInput{AudioPath: "session.wav", PushToS3: true})
	assert.ErrorIs(t, err, storage.ErrS3NotConfigured)
}

func TestService_CreateJob(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	job, err := f.svc.CreateJob(ctx, TranscribeInput{AudioPath: "session.wav", PushToS3: true})
	require.NoError(t, err)

	assert.Equal(t, StatusInQueue, job.Status)
	assert.Equal(t, "nl", job.Language)
	assert.True(t, job.PushToS3)

	found, err := f.svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, found.ID)

	_, err = f.svc.GetJob(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestService_ProcessExistingJob(t *testing.T) {
	f := newFixture(t, nil)
	f.enrollCoach(t)
	ctx := context.Background()

	path, err := f.svc.SaveUpload(ctx, "session.wav", strings.NewReader("RIFF"))
	require.NoError(t, err)
	f.transcriber.On("Transcribe", mock.Anything, path, mock.Anything).Return(sessionWords, nil)

	in := TranscribeInput{AudioPath: path, UseWordTimestamps: true}
	created, err := f.svc.CreateJob(ctx, in)
	require.NoError(t, err)

	// fakeLoader resolves by base name, so map the scratch file to the session
	f.svc.loader = fakeLoader{filepath.Base(path): session}

	result, err := f.svc.ProcessExistingJob(ctx, created.ID, in)
	require.NoError(t, err)
	require.NotNil(t, result)

	done, err := f.svc.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.Result)
	assert.Equal(t, result.SessionID, done.Result.SessionID)
	assert.False(t, done.StartedAt.IsZero())

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "input recording should be removed")
}

func TestService_ProcessExistingJobFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.transcriber.On("Transcribe", mock.Anything, "session.wav", mock.Anything).Return(nil, errors.New("asr offline"))

	in := TranscribeInput{AudioPath: "session.wav"}
	created, _ := f.svc.CreateJob(ctx, in)

	_, err := f.svc.ProcessExistingJob(ctx, created.ID, in)
	require.Error(t, err)

	failed, _ := f.svc.GetJob(ctx, created.ID)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "asr offline")
	assert.Nil(t, failed.Result)
}

func TestService_ProcessExistingJobCancelledWhileQueued(t *testing.T) {
	f := newFixture(t, nil, WithMaxConcurrentJobs(1))
	in := TranscribeInput{AudioPath: "session.wav"}
	created, _ := f.svc.CreateJob(context.Background(), in)

	// occupy the only slot
	f.svc.sem <- struct{}{}
	defer f.svc.release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.ProcessExistingJob(ctx, created.ID, in)
	assert.ErrorIs(t, err, context.Canceled)

	job, _ := f.svc.GetJob(context.Background(), created.ID)
	assert.Equal(t, StatusCancelled, job.Status)
	f.transcriber.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_ProcessExistingJobUnknownID(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.ProcessExistingJob(context.Background(), "nonexistent", TranscribeInput{})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestService_ListAndDeleteJobs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	queued, _ := f.svc.CreateJob(ctx, TranscribeInput{AudioPath: "a.wav"})
	jobs, err := f.svc.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	assert.ErrorIs(t, f.svc.DeleteJob(ctx, queued.ID), ErrInvalidTransition)

	queued.Status = StatusCancelled
	require.NoError(t, f.repo.Save(ctx, queued))
	require.NoError(t, f.svc.DeleteJob(ctx, queued.ID))
	assert.ErrorIs(t, f.svc.DeleteJob(ctx, queued.ID), ErrJobNotFound)
}
