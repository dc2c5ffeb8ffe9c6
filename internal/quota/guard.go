package quota

import (
	"context"
	"fmt"
	"log"
	"time"

	"meetscribe/internal/model"
	"meetscribe/internal/repository"

	"github.com/google/uuid"
)

// UpgradeURL is attached to quota rejections and warnings as an upgrade hint
const UpgradeURL = "/account/upgrade"

// CheckInput carries the optional request dimensions evaluated before a job
// is accepted
type CheckInput struct {
	FileSizeMB      float64
	DurationMinutes float64
}

// Decision is the outcome of a quota pre-check
type Decision struct {
	CanProceed bool
	Reason     string
	Stats      *model.UsageStats
}

// LimitWarning is the non-blocking notice attached after a finished job
// pushed the user over a limit
type LimitWarning struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	UpgradeURL string `json:"upgradeUrl"`
}

// Guard evaluates tier limits against current-month usage
type Guard struct {
	repo repository.JobRepository
	now  func() time.Time
}

// NewGuard creates a quota guard backed by the job repository
func NewGuard(repo repository.JobRepository) *Guard {
	return &Guard{repo: repo, now: time.Now}
}

// CheckLimits decides whether a user may start a job. It blocks only when a
// limit is already met or exceeded; a request that would merely cross the
// duration limit is allowed through and surfaced later as a post-completion
// warning.
//
// When usage cannot be computed (storage down, tier profile missing) the
// guard fails open rather than false-denying a legitimate user.
func (g *Guard) CheckLimits(ctx context.Context, userID uuid.UUID, tier string, in CheckInput) Decision {
	limits, usage, err := g.lookup(ctx, userID, tier)
	if err != nil {
		log.Printf("[Quota] Failing open for user %s: %v", userID, err)
		return Decision{CanProceed: true, Reason: fmt.Sprintf("usage could not be verified: %v", err)}
	}

	stats := buildStats(usage, limits)

	if limits.MonthlyLimit != model.Unlimited && usage.TranscriptionCount >= limits.MonthlyLimit {
		return Decision{
			CanProceed: false,
			Reason:     fmt.Sprintf("monthly transcription limit reached (%d/%d)", usage.TranscriptionCount, limits.MonthlyLimit),
			Stats:      stats,
		}
	}

	if limits.MaxFileSizeMB != model.Unlimited && in.FileSizeMB > float64(limits.MaxFileSizeMB) {
		return Decision{
			CanProceed: false,
			Reason:     fmt.Sprintf("file size %.1f MB exceeds the %d MB limit for the %s tier", in.FileSizeMB, limits.MaxFileSizeMB, tier),
			Stats:      stats,
		}
	}

	if limits.MaxDurationMinutes != model.Unlimited && stats.TotalDurationMinutes >= float64(limits.MaxDurationMinutes) {
		return Decision{
			CanProceed: false,
			Reason:     fmt.Sprintf("monthly duration limit reached (%.0f/%d minutes)", stats.TotalDurationMinutes, limits.MaxDurationMinutes),
			Stats:      stats,
		}
	}

	return Decision{CanProceed: true, Stats: stats}
}

// CurrentStats computes the user's usage stats for the current month
func (g *Guard) CurrentStats(ctx context.Context, userID uuid.UUID, tier string) (*model.UsageStats, error) {
	limits, usage, err := g.lookup(ctx, userID, tier)
	if err != nil {
		return nil, err
	}
	return buildStats(usage, limits), nil
}

// PostCheck re-queries usage after a job finished and returns a warning when
// the just-finished job left the user at or over a limit. The pre-check
// rejects at the limit, so the job that consumes the last slot (or the last
// minutes) is the one that must surface the warning. Errors here are
// swallowed: the warning is best-effort.
func (g *Guard) PostCheck(ctx context.Context, userID uuid.UUID, tier string) *LimitWarning {
	limits, usage, err := g.lookup(ctx, userID, tier)
	if err != nil {
		log.Printf("[Quota] Post-check skipped for user %s: %v", userID, err)
		return nil
	}

	stats := buildStats(usage, limits)
	if limits.MonthlyLimit != model.Unlimited && usage.TranscriptionCount >= limits.MonthlyLimit {
		return &LimitWarning{
			Type:       "transcription_count",
			Message:    fmt.Sprintf("You have used %d of %d monthly transcriptions.", usage.TranscriptionCount, limits.MonthlyLimit),
			UpgradeURL: UpgradeURL,
		}
	}
	if limits.MaxDurationMinutes != model.Unlimited && stats.TotalDurationMinutes >= float64(limits.MaxDurationMinutes) {
		return &LimitWarning{
			Type:       "duration",
			Message:    fmt.Sprintf("You have used %.0f of %d monthly audio minutes.", stats.TotalDurationMinutes, limits.MaxDurationMinutes),
			UpgradeURL: UpgradeURL,
		}
	}
	return nil
}

func (g *Guard) lookup(ctx context.Context, userID uuid.UUID, tier string) (*model.TierLimits, *repository.MonthlyUsage, error) {
	if g.repo == nil {
		return nil, nil, fmt.Errorf("no usage store configured")
	}
	limits, err := g.repo.GetTierLimits(ctx, tier)
	if err != nil {
		return nil, nil, fmt.Errorf("tier profile unavailable: %w", err)
	}
	usage, err := g.repo.MonthlyUsage(ctx, userID, g.now())
	if err != nil {
		return nil, nil, fmt.Errorf("usage aggregation unavailable: %w", err)
	}
	return limits, usage, nil
}

func buildStats(usage *repository.MonthlyUsage, limits *model.TierLimits) *model.UsageStats {
	stats := &model.UsageStats{
		TranscriptionsUsed:   usage.TranscriptionCount,
		TranscriptionsLimit:  limits.MonthlyLimit,
		TotalDurationMinutes: usage.TotalDurationSeconds / 60,
		TotalFileSizeMB:      float64(usage.TotalFileSizeBytes) / (1024 * 1024),
	}
	if limits.MonthlyLimit != model.Unlimited && stats.TranscriptionsUsed >= limits.MonthlyLimit {
		stats.IsLimitExceeded = true
	}
	if limits.MaxDurationMinutes != model.Unlimited && stats.TotalDurationMinutes >= float64(limits.MaxDurationMinutes) {
		stats.IsLimitExceeded = true
	}
	return stats
}
