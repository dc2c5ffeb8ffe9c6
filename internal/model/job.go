package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job statuses. A job is created as processing and moves to exactly one
// terminal status; terminal rows are never mutated again.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Tiers known to the quota system.
const (
	TierFree  = "free"
	TierPro   = "pro"
	TierAdmin = "admin"
)

// Unlimited is the sentinel disabling a quota dimension.
const Unlimited = -1

// TranscriptionJob represents one upload attempt
type TranscriptionJob struct {
	ID              uuid.UUID    `json:"id"`
	UserID          uuid.UUID    `json:"user_id"`
	Filename        string       `json:"filename"`
	FileSizeBytes   int64        `json:"file_size_bytes"`
	DurationSeconds *float64     `json:"duration_seconds,omitempty"`
	Status          string       `json:"status"`
	Tier            string       `json:"tier"`
	UsageCost       int          `json:"usage_cost"`
	ErrorMessage    *string      `json:"error_message,omitempty"`
	Metadata        *JobMetadata `json:"metadata,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
}

// JobMetadata holds the artifacts attached to a job once processing resolves.
// All fields are optional; Validate runs at the persistence boundary.
type JobMetadata struct {
	TranscriptText *string          `json:"transcript_text,omitempty"`
	Minutes        *string          `json:"minutes,omitempty"`
	Segments       []SpeakerSegment `json:"segments,omitempty"`
	ProviderJobID  *string          `json:"provider_job_id,omitempty"`
	ProviderJob    map[string]any   `json:"provider_job,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
}

// Validate checks metadata consistency before it is written to storage
func (m *JobMetadata) Validate() error {
	if m == nil {
		return nil
	}
	for i, seg := range m.Segments {
		if seg.EndTime < seg.StartTime {
			return fmt.Errorf("segment %d: end time %.3f before start time %.3f", i, seg.EndTime, seg.StartTime)
		}
		if seg.SpeakerLabel == "" {
			return fmt.Errorf("segment %d: missing speaker label", i)
		}
	}
	return nil
}

// TierLimits holds per-tier quota ceilings. A value of Unlimited (-1)
// disables that particular check.
type TierLimits struct {
	Tier                string `json:"tier"`
	MonthlyLimit        int    `json:"monthly_limit"`
	MaxFileSizeMB       int    `json:"max_file_size_mb"`
	MaxDurationMinutes  int    `json:"max_duration_minutes"`
	AllowSummarization  bool   `json:"allow_summarization"`
	AllowTranslation    bool   `json:"allow_translation"`
}

// DefaultTierLimits seeds the tier table on bootstrap
func DefaultTierLimits() []TierLimits {
	return []TierLimits{
		{Tier: TierFree, MonthlyLimit: 10, MaxFileSizeMB: 25, MaxDurationMinutes: 120, AllowSummarization: false, AllowTranslation: false},
		{Tier: TierPro, MonthlyLimit: 200, MaxFileSizeMB: 250, MaxDurationMinutes: 3000, AllowSummarization: true, AllowTranslation: true},
		{Tier: TierAdmin, MonthlyLimit: Unlimited, MaxFileSizeMB: Unlimited, MaxDurationMinutes: Unlimited, AllowSummarization: true, AllowTranslation: true},
	}
}

// UsageStats is derived per request from the current month's jobs.
// It is never stored or cached beyond one request.
type UsageStats struct {
	TranscriptionsUsed   int     `json:"transcriptionsUsed"`
	TranscriptionsLimit  int     `json:"transcriptionsLimit"`
	TotalDurationMinutes float64 `json:"totalDurationMinutes"`
	TotalFileSizeMB      float64 `json:"totalFileSizeMB"`
	IsLimitExceeded      bool    `json:"isLimitExceeded"`
}

// SpeakerSegment is a contiguous run of text attributed to one speaker.
// Lives in memory only; persisted solely inside JobMetadata.
type SpeakerSegment struct {
	SpeakerID    string  `json:"speaker_id"`
	SpeakerLabel string  `json:"speaker_label"`
	StartTime    float64 `json:"start_time"`
	EndTime      float64 `json:"end_time"`
	Text         string  `json:"text"`
}
