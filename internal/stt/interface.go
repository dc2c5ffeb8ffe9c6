package stt

import (
	"context"
	"io"

	"meetscribe/internal/model"
)

// Provider job statuses as reported by the speech-to-text API
const (
	JobAccepted = "accepted"
	JobRunning  = "running"
	JobDone     = "done"
	JobRejected = "rejected"
	JobExpired  = "expired"
)

// Job is the provider-side view of a submitted transcription job
type Job struct {
	ID              string
	Status          string
	DurationSeconds float64
	Errors          []string
}

// Transcript is the parsed recognition result for a finished job
type Transcript struct {
	Events          []model.RecognitionEvent
	DurationSeconds float64
	Raw             map[string]any
}

// Provider defines the interface for speech-to-text providers
type Provider interface {
	// Submit uploads an audio file with a transcription configuration and
	// returns the provider-assigned job id
	Submit(ctx context.Context, audio io.Reader, filename string, cfg Config) (string, error)

	// GetJob fetches the current job status
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// GetTranscript fetches the recognition event stream for a done job
	GetTranscript(ctx context.Context, jobID string) (*Transcript, error)

	// GetText fetches the provider's plain-text rendering, "" if unsupported
	GetText(ctx context.Context, jobID string) (string, error)

	// GetSRT fetches the provider's SubRip rendering, "" if unsupported
	GetSRT(ctx context.Context, jobID string) (string, error)

	// Name returns the name of the provider (e.g., "speechmatics")
	Name() string
}
