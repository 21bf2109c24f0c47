// Package id provides unique identifier generation for jobs and sessions.
package id

import "github.com/google/uuid"

// Generate creates a new unique job ID.
// Format: job-<uuid>
func Generate() string {
	return "job-" + uuid.NewString()
}

// Session creates a transcription session ID, a random UUID.
func Session() string {
	return uuid.NewString()
}
