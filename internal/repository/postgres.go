package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"meetscribe/internal/model"

	"github.com/google/uuid"
)

type postgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) JobRepository {
	return &postgresRepository{db: db}
}

const jobColumns = `
	id, user_id, filename, file_size_bytes, duration_seconds,
	status, tier, usage_cost, error_message, metadata, created_at, completed_at`

// CreateJob creates a new transcription job record
func (r *postgresRepository) CreateJob(ctx context.Context, job *model.TranscriptionJob) error {
	if err := job.Metadata.Validate(); err != nil {
		return fmt.Errorf("invalid job metadata: %w", err)
	}

	metadataJSON, err := marshalMetadata(job.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO transcription_jobs (
			id, user_id, filename, file_size_bytes, duration_seconds,
			status, tier, usage_cost, error_message, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.ExecContext(ctx, query,
		job.ID,
		job.UserID,
		job.Filename,
		job.FileSizeBytes,
		job.DurationSeconds,
		job.Status,
		job.Tier,
		job.UsageCost,
		job.ErrorMessage,
		metadataJSON,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transcription job: %w", err)
	}
	return nil
}

// GetJobByID retrieves a transcription job by ID
func (r *postgresRepository) GetJobByID(ctx context.Context, id uuid.UUID) (*model.TranscriptionJob, error) {
	query := `SELECT ` + jobColumns + ` FROM transcription_jobs WHERE id = $1`
	return r.scanJob(r.db.QueryRowContext(ctx, query, id))
}

// GetJobByUserFilename retrieves the most recent job for a user+filename pair
func (r *postgresRepository) GetJobByUserFilename(ctx context.Context, userID uuid.UUID, filename string) (*model.TranscriptionJob, error) {
	query := `SELECT ` + jobColumns + `
		FROM transcription_jobs
		WHERE user_id = $1 AND filename = $2
		ORDER BY created_at DESC
		LIMIT 1`
	return r.scanJob(r.db.QueryRowContext(ctx, query, userID, filename))
}

// UpdateJobStatus transitions the most recent processing job for
// user+filename to a terminal state. A job already in a terminal state is
// never touched, so repeated status polls stay idempotent.
func (r *postgresRepository) UpdateJobStatus(ctx context.Context, userID uuid.UUID, filename, status string, update JobUpdate) error {
	if update.Metadata != nil {
		if err := update.Metadata.Validate(); err != nil {
			return fmt.Errorf("invalid job metadata: %w", err)
		}
	}

	var metadataJSON []byte
	if update.Metadata != nil {
		var err error
		metadataJSON, err = marshalMetadata(update.Metadata)
		if err != nil {
			return err
		}
	}

	query := `
		UPDATE transcription_jobs
		SET
			status = $3,
			error_message = COALESCE($4, error_message),
			duration_seconds = COALESCE($5, duration_seconds),
			metadata = COALESCE($6::jsonb, metadata),
			completed_at = $7
		WHERE id = (
			SELECT id FROM transcription_jobs
			WHERE user_id = $1 AND filename = $2 AND status = 'processing'
			ORDER BY created_at DESC
			LIMIT 1
		)
	`
	completedAt := time.Now()
	res, err := r.db.ExecContext(ctx, query,
		userID,
		filename,
		status,
		update.ErrorMessage,
		update.DurationSeconds,
		metadataJSON,
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Already terminal or never recorded; both are fine for the
		// idempotent transition.
		return nil
	}
	return nil
}

// ListByUser retrieves transcription jobs for a user with pagination
func (r *postgresRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.TranscriptionJob, error) {
	query := `SELECT ` + jobColumns + `
		FROM transcription_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcription jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.TranscriptionJob
	for rows.Next() {
		job, err := r.scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return jobs, nil
}

// MonthlyUsage aggregates the user's job costs, duration and file size over
// the calendar month containing now. Failed and cancelled jobs do not count
// against the quota.
func (r *postgresRepository) MonthlyUsage(ctx context.Context, userID uuid.UUID, now time.Time) (*MonthlyUsage, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	monthEnd := monthStart.AddDate(0, 1, 0)

	query := `
		SELECT
			COALESCE(SUM(usage_cost), 0),
			COALESCE(SUM(duration_seconds), 0),
			COALESCE(SUM(file_size_bytes), 0)
		FROM transcription_jobs
		WHERE user_id = $1
		  AND status IN ('processing', 'completed')
		  AND created_at >= $2 AND created_at < $3
	`

	var usage MonthlyUsage
	err := r.db.QueryRowContext(ctx, query, userID, monthStart, monthEnd).Scan(
		&usage.TranscriptionCount,
		&usage.TotalDurationSeconds,
		&usage.TotalFileSizeBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly usage: %w", err)
	}
	return &usage, nil
}

// GetTierLimits looks up the quota ceilings for a tier
func (r *postgresRepository) GetTierLimits(ctx context.Context, tier string) (*model.TierLimits, error) {
	query := `
		SELECT tier, monthly_limit, max_file_size_mb, max_duration_minutes,
		       allow_summarization, allow_translation
		FROM tier_limits
		WHERE tier = $1
	`
	var limits model.TierLimits
	err := r.db.QueryRowContext(ctx, query, tier).Scan(
		&limits.Tier,
		&limits.MonthlyLimit,
		&limits.MaxFileSizeMB,
		&limits.MaxDurationMinutes,
		&limits.AllowSummarization,
		&limits.AllowTranslation,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tier limits not found for %q: %w", tier, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tier limits: %w", err)
	}
	return &limits, nil
}

// SeedTierLimits inserts the default tier rows if they do not exist yet.
// Called once at startup, never from request handling.
func (r *postgresRepository) SeedTierLimits(ctx context.Context) error {
	query := `
		INSERT INTO tier_limits (
			tier, monthly_limit, max_file_size_mb, max_duration_minutes,
			allow_summarization, allow_translation
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tier) DO NOTHING
	`
	for _, limits := range model.DefaultTierLimits() {
		_, err := r.db.ExecContext(ctx, query,
			limits.Tier,
			limits.MonthlyLimit,
			limits.MaxFileSizeMB,
			limits.MaxDurationMinutes,
			limits.AllowSummarization,
			limits.AllowTranslation,
		)
		if err != nil {
			return fmt.Errorf("failed to seed tier limits for %s: %w", limits.Tier, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *postgresRepository) scanJob(row *sql.Row) (*model.TranscriptionJob, error) {
	job, err := r.scanJobRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transcription job not found: %w", err)
	}
	return job, err
}

func (r *postgresRepository) scanJobRow(row rowScanner) (*model.TranscriptionJob, error) {
	var job model.TranscriptionJob
	var metadataJSON []byte

	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Filename,
		&job.FileSizeBytes,
		&job.DurationSeconds,
		&job.Status,
		&job.Tier,
		&job.UsageCost,
		&job.ErrorMessage,
		&metadataJSON,
		&job.CreatedAt,
		&job.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transcription job: %w", err)
	}

	if len(metadataJSON) > 0 {
		var md model.JobMetadata
		if err := json.Unmarshal(metadataJSON, &md); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job metadata: %w", err)
		}
		job.Metadata = &md
	}
	return &job, nil
}

func marshalMetadata(md *model.JobMetadata) ([]byte, error) {
	if md == nil {
		return nil, nil
	}
	out, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job metadata: %w", err)
	}
	return out, nil
}
