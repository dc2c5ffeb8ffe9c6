package repository

import (
	"context"
	"time"

	"meetscribe/internal/model"

	"github.com/google/uuid"
)

// JobUpdate carries the fields applied when a job reaches a terminal state
type JobUpdate struct {
	ProviderJobID   *string
	ErrorMessage    *string
	DurationSeconds *float64
	Metadata        *model.JobMetadata
}

// MonthlyUsage is the raw aggregation over one user's jobs in the current
// calendar month
type MonthlyUsage struct {
	TranscriptionCount   int
	TotalDurationSeconds float64
	TotalFileSizeBytes   int64
}

// JobRepository defines the interface for transcription job data access
type JobRepository interface {
	// CreateJob creates a new processing job row
	CreateJob(ctx context.Context, job *model.TranscriptionJob) error

	// GetJobByID retrieves a job by ID
	GetJobByID(ctx context.Context, id uuid.UUID) (*model.TranscriptionJob, error)

	// GetJobByUserFilename retrieves the most recent job for user+filename
	GetJobByUserFilename(ctx context.Context, userID uuid.UUID, filename string) (*model.TranscriptionJob, error)

	// UpdateJobStatus transitions the most recent processing job for
	// user+filename to a terminal state. Idempotent: rows already in a
	// terminal state are left untouched.
	UpdateJobStatus(ctx context.Context, userID uuid.UUID, filename, status string, update JobUpdate) error

	// ListByUser retrieves jobs for a user with pagination
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.TranscriptionJob, error)

	// MonthlyUsage aggregates the user's jobs in the calendar month of now
	MonthlyUsage(ctx context.Context, userID uuid.UUID, now time.Time) (*MonthlyUsage, error)

	// GetTierLimits looks up the quota ceilings for a tier
	GetTierLimits(ctx context.Context, tier string) (*model.TierLimits, error)

	// SeedTierLimits inserts the default tier rows if absent (bootstrap only)
	SeedTierLimits(ctx context.Context) error
}
