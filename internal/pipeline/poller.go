package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"meetscribe/internal/stt"
	"meetscribe/internal/usage"
)

// Client-facing job statuses returned by the status endpoint
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusUnknown    = "unknown"
)

// StatusResult is the outcome of one status poll
type StatusResult struct {
	Status       string
	ErrorMessage string
	Result       *Result
}

// CheckStatus advances a job submitted to an asynchronous provider. It is
// re-entrant: clients call it repeatedly with the same jobId+filename and
// the terminal persistence stays idempotent.
//
// Provider statuses map to: accepted/running -> processing, done ->
// completed (running the same finish sequence as the synchronous path),
// rejected/expired -> failed. Anything else is surfaced as unknown without
// touching stored job state so the client may poll again.
func (s *Service) CheckStatus(ctx context.Context, user User, jobID, filename string) (*StatusResult, *Error) {
	if jobID == "" || filename == "" {
		return nil, clientErr(400, CodeBadUpload, "jobId and filename are required")
	}

	job, err := s.provider.GetJob(ctx, jobID)
	if err != nil {
		return nil, providerError(err)
	}

	switch job.Status {
	case stt.JobAccepted, stt.JobRunning:
		return &StatusResult{Status: StatusProcessing}, nil

	case stt.JobDone:
		result, perr := s.finishJob(ctx, user, filename, jobID, job.DurationSeconds, "")
		if perr != nil {
			// A transient finish failure leaves the row processing so the
			// next poll can run the finish sequence again.
			if !perr.transient {
				s.failJob(ctx, user, filename, perr.Message)
			}
			return nil, perr
		}
		return &StatusResult{Status: StatusCompleted, Result: result}, nil

	case stt.JobRejected, stt.JobExpired:
		msg := fmt.Sprintf("provider %s the job", job.Status)
		if len(job.Errors) > 0 {
			msg += ": " + strings.Join(job.Errors, "; ")
		}
		_ = usage.Resolve(usage.LogAndContinue, "persist failed job",
			s.recorder.Fail(ctx, user.ID, filename, msg))
		return &StatusResult{Status: StatusFailed, ErrorMessage: msg}, nil

	default:
		log.Printf("[Pipeline] Unknown provider status %q for job %s", job.Status, jobID)
		return &StatusResult{Status: StatusUnknown}, nil
	}
}
