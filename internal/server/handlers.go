package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/coachscribe/internal/audio"
	"github.com/maauso/coachscribe/internal/job"
	"github.com/maauso/coachscribe/internal/pipeline"
	"github.com/maauso/coachscribe/internal/storage"
)

const (
	// DefaultMaxUploadBytes bounds the size of an uploaded recording.
	DefaultMaxUploadBytes = 512 << 20
	multipartMemory       = 32 << 20
)

// acceptedAudioTypes are the upload content types treated as WAV.
var acceptedAudioTypes = map[string]bool{
	"audio/wav":                true,
	"audio/x-wav":              true,
	"audio/wave":               true,
	"application/octet-stream": true,
}

var (
	errMissingFile      = errors.New("file is required")
	errUnsupportedMedia = errors.New("unsupported media type, expected WAV audio")
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.Service
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
	maxUploadBytes     int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithMaxUploadBytes limits the request body size of uploads.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.Service, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true,
		maxUploadBytes:     DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Enroll handles POST /enroll requests. The multipart form carries the
// reference recording as "file" and an optional "speaker_name".
func (h *Handlers) Enroll(w http.ResponseWriter, r *http.Request) {
	path, ok := h.receiveUpload(w, r)
	if !ok {
		return
	}
	defer h.service.Discard(context.WithoutCancel(r.Context()), path)

	req := EnrollRequest{SpeakerName: strings.TrimSpace(r.FormValue("speaker_name"))}
	if !h.validate(w, req) {
		return
	}

	out, err := h.service.Enroll(r.Context(), job.EnrollInput{
		AudioPath:   path,
		SpeakerName: req.SpeakerName,
	})
	if err != nil {
		h.writeServiceError(w, "enrollment failed", err)
		return
	}

	h.logger.Info("speaker enrolled",
		slog.String("speaker", out.Speaker),
		slog.Float64("duration_sec", out.DurationSec),
		slog.Int("embedding_dim", out.EmbeddingDim),
	)

	writeJSON(w, http.StatusOK, EnrollResponse{
		Speaker:      out.Speaker,
		DurationSec:  out.DurationSec,
		EmbeddingDim: out.EmbeddingDim,
		Saved:        out.Saved,
	})
}

// Transcribe handles POST /transcribe requests and answers with the full
// transcript once processing is done.
func (h *Handlers) Transcribe(w http.ResponseWriter, r *http.Request) {
	path, ok := h.receiveUpload(w, r)
	if !ok {
		return
	}
	defer h.service.Discard(context.WithoutCancel(r.Context()), path)

	req, ok := h.transcribeRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.Transcribe(r.Context(), toTranscribeInput(path, req))
	if err != nil {
		h.writeServiceError(w, "transcription failed", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// CreateJob handles POST /jobs requests. It accepts the same form as
// Transcribe and processes the recording in the background.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	path, ok := h.receiveUpload(w, r)
	if !ok {
		return
	}

	req, ok := h.transcribeRequest(w, r)
	if !ok {
		h.service.Discard(r.Context(), path)
		return
	}
	input := toTranscribeInput(path, req)

	// Create job first (synchronously)
	createdJob, err := h.service.CreateJob(r.Context(), input)
	if err != nil {
		h.service.Discard(r.Context(), path)
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	// Start processing in background with a detached context
	// Use context.WithoutCancel to prevent cancellation when the request ends
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string, inp job.TranscribeInput) {
			_, processErr := h.service.ProcessExistingJob(ctx, jobID, inp)
			if processErr != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", processErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID, input)
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.String("language", createdJob.Language),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.Status),
	})
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, "failed to get job", err)
		return
	}

	writeJSON(w, http.StatusOK, newJobResponse(foundJob, true))
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.writeServiceError(w, "failed to list jobs", err)
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, newJobResponse(j, false))
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteJob handles DELETE /jobs/{id} requests for finished jobs.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	if err := h.service.DeleteJob(r.Context(), jobID); err != nil {
		h.writeServiceError(w, "failed to delete job", err)
		return
	}

	h.logger.Info("job deleted", slog.String("job_id", jobID))
	w.WriteHeader(http.StatusNoContent)
}

// GetProfile handles GET /profiles/{name} requests.
func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "profile name is required", "MISSING_PROFILE_NAME")
		return
	}

	p, err := h.service.GetProfile(r.Context(), name)
	if err != nil {
		h.writeServiceError(w, "failed to get profile", err)
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{
		Name:         p.Name,
		EmbeddingDim: p.Dimension(),
		SampleRate:   p.SampleRate,
		DurationSec:  p.DurationSec,
		UpdatedAt:    p.UpdatedAt,
	})
}

// receiveUpload parses the multipart form and stores the "file" part in
// scratch storage. On failure it writes the error response and returns false.
func (h *Handlers) receiveUpload(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.logger.Warn("failed to parse upload",
			slog.String("error", err.Error()),
		)
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, http.ErrNotMultipart):
			writeError(w, http.StatusUnsupportedMediaType, "expected multipart/form-data", "UNSUPPORTED_MEDIA_TYPE")
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large", "UPLOAD_TOO_LARGE")
		default:
			writeError(w, http.StatusBadRequest, "invalid multipart form", "INVALID_FORM")
		}
		return "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errMissingFile.Error(), "MISSING_FILE")
		return "", false
	}
	defer file.Close()

	if !isWAV(header) {
		h.logger.Warn("rejected upload",
			slog.String("filename", header.Filename),
			slog.String("content_type", header.Header.Get("Content-Type")),
		)
		writeError(w, http.StatusUnsupportedMediaType, errUnsupportedMedia.Error(), "UNSUPPORTED_MEDIA_TYPE")
		return "", false
	}

	path, err := h.service.SaveUpload(r.Context(), header.Filename, file)
	if err != nil {
		h.logger.Error("failed to store upload",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to store upload", "UPLOAD_FAILED")
		return "", false
	}
	return path, true
}

// transcribeRequest reads and validates the transcription form fields.
func (h *Handlers) transcribeRequest(w http.ResponseWriter, r *http.Request) (TranscribeRequest, bool) {
	req, err := parseTranscribeForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_FORM")
		return req, false
	}
	return req, h.validate(w, req)
}

func (h *Handlers) validate(w http.ResponseWriter, req any) bool {
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeServiceError maps service errors to HTTP status codes.
func (h *Handlers) writeServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
	case errors.Is(err, job.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "profile not found", "PROFILE_NOT_FOUND")
	case errors.Is(err, job.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "job is still running", "JOB_NOT_FINISHED")
	case errors.Is(err, pipeline.ErrNoVoicedSpeech):
		writeError(w, http.StatusBadRequest, "no voiced speech in recording", "NO_VOICED_SPEECH")
	case errors.Is(err, audio.ErrUnsupportedFormat), errors.Is(err, audio.ErrInvalidSampleRate):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_AUDIO")
	case errors.Is(err, storage.ErrS3NotConfigured):
		writeError(w, http.StatusBadRequest, "S3 is not configured", "S3_NOT_CONFIGURED")
	default:
		h.logger.Error(message,
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, message, "INTERNAL_ERROR")
	}
}

func isWAV(header *multipart.FileHeader) bool {
	ct := header.Header.Get("Content-Type")
	if ct == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return acceptedAudioTypes[strings.ToLower(mediaType)]
}

func parseTranscribeForm(r *http.Request) (TranscribeRequest, error) {
	req := TranscribeRequest{
		Language:          strings.TrimSpace(r.FormValue("language")),
		UseWordTimestamps: true,
	}

	if v := r.FormValue("coach_threshold"); v != "" {
		thr, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, fmt.Errorf("coach_threshold: %w", err)
		}
		req.CoachThreshold = &thr
	}
	if v := r.FormValue("max_speakers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("max_speakers: %w", err)
		}
		req.MaxSpeakers = n
	}
	if v := r.FormValue("use_word_timestamps"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("use_word_timestamps: %w", err)
		}
		req.UseWordTimestamps = b
	}
	if v := r.FormValue("push_to_s3"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("push_to_s3: %w", err)
		}
		req.PushToS3 = b
	}
	return req, nil
}

func toTranscribeInput(path string, req TranscribeRequest) job.TranscribeInput {
	return job.TranscribeInput{
		AudioPath:         path,
		Language:          req.Language,
		CoachThreshold:    req.CoachThreshold,
		MaxSpeakers:       req.MaxSpeakers,
		UseWordTimestamps: req.UseWordTimestamps,
		PushToS3:          req.PushToS3,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
