// Package server provides the HTTP API of the transcription service.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/coachscribe/internal/job"
)

// EnrollRequest holds the form fields of an enrollment upload.
type EnrollRequest struct {
	// SpeakerName is the profile key, defaulting to the coach profile.
	SpeakerName string `validate:"omitempty,max=64,excludesall=/"`
}

// EnrollResponse is the HTTP response after saving a profile.
type EnrollResponse struct {
	Speaker      string  `json:"speaker"`
	DurationSec  float64 `json:"duration_sec"`
	EmbeddingDim int     `json:"embedding_dim"`
	Saved        bool    `json:"saved"`
}

// TranscribeRequest holds the form fields of a transcription upload.
type TranscribeRequest struct {
	// Language is an ISO 639-1 code; empty means the service default.
	Language string `validate:"omitempty,alpha,min=2,max=3"`
	// CoachThreshold overrides the coach similarity threshold.
	CoachThreshold *float64 `validate:"omitempty,gte=-1,lte=1"`
	// MaxSpeakers overrides the non-coach speaker cap.
	MaxSpeakers int `validate:"omitempty,min=1,max=10"`
	// UseWordTimestamps requests word-level alignment. Defaults to true.
	UseWordTimestamps bool
	// PushToS3 archives the transcript and returns its URL.
	PushToS3 bool
}

// TranscribeResponse is the transcript document.
type TranscribeResponse = job.Result

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Status is the current job status.
	Status string `json:"status"`
	// Progress is the percentage of completion (0-100).
	Progress int `json:"progress"`
	// Error contains any error message if the job failed.
	Error     string    `json:"error,omitempty"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// Result is the transcript, present once the job completed.
	Result *job.Result `json:"result,omitempty"`
}

// JobListResponse lists known jobs, oldest first. Results are omitted.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ProfileResponse describes an enrolled speaker without the embedding itself.
type ProfileResponse struct {
	Name         string    `json:"name"`
	EmbeddingDim int       `json:"embedding_dim"`
	SampleRate   int       `json:"sr"`
	DurationSec  float64   `json:"duration_sec"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

func newJobResponse(j *job.Job, withResult bool) JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		Status:    string(j.Status),
		Progress:  j.Progress,
		Error:     j.Error,
		Language:  j.Language,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	if withResult && j.Status == job.StatusCompleted {
		resp.Result = j.Result
	}
	return resp
}
