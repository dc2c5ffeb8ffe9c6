package usage

import (
	"context"
	"log"
	"time"

	"meetscribe/internal/model"
	"meetscribe/internal/repository"

	"github.com/google/uuid"
)

// Policy decides how a persistence failure is handled at a call site.
// Quota accounting is secondary to the user's ability to act, so most
// writes log and continue; Propagate is for callers that must observe the
// failure.
type Policy int

const (
	LogAndContinue Policy = iota
	Propagate
)

// Resolve applies a failure policy to the outcome of a persistence write
func Resolve(p Policy, op string, err error) error {
	if err == nil {
		return nil
	}
	log.Printf("[Usage] %s failed: %v", op, err)
	if p == Propagate {
		return err
	}
	return nil
}

// Recorder persists the job lifecycle: create on accept, transition to a
// terminal state on resolution. Writes are idempotent with respect to job
// identity (user+filename) for the status transition.
type Recorder struct {
	repo repository.JobRepository
}

// NewRecorder creates a usage recorder. repo may be nil when the service
// runs without a database; every method is then a no-op.
func NewRecorder(repo repository.JobRepository) *Recorder {
	return &Recorder{repo: repo}
}

// Enabled reports whether a backing store is configured
func (r *Recorder) Enabled() bool {
	return r.repo != nil
}

// RecordStart creates a processing job row for an accepted upload
func (r *Recorder) RecordStart(ctx context.Context, userID uuid.UUID, tier, filename string, sizeBytes int64) (*model.TranscriptionJob, error) {
	if r.repo == nil {
		return nil, nil
	}
	job := &model.TranscriptionJob{
		ID:            uuid.New(),
		UserID:        userID,
		Filename:      filename,
		FileSizeBytes: sizeBytes,
		Status:        model.StatusProcessing,
		Tier:          tier,
		UsageCost:     1,
		CreatedAt:     time.Now(),
	}
	if err := r.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Complete transitions the job to completed and stores its artifacts
func (r *Recorder) Complete(ctx context.Context, userID uuid.UUID, filename string, durationSeconds *float64, md *model.JobMetadata) error {
	if r.repo == nil {
		return nil
	}
	return r.repo.UpdateJobStatus(ctx, userID, filename, model.StatusCompleted, repository.JobUpdate{
		DurationSeconds: durationSeconds,
		Metadata:        md,
	})
}

// Fail transitions the job to failed with the error message
func (r *Recorder) Fail(ctx context.Context, userID uuid.UUID, filename, message string) error {
	if r.repo == nil {
		return nil
	}
	return r.repo.UpdateJobStatus(ctx, userID, filename, model.StatusFailed, repository.JobUpdate{
		ErrorMessage: &message,
	})
}
