package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"reflect"
	"strings"
	"time"

	"meetscribe/internal/ai"
	"meetscribe/internal/model"
	"meetscribe/internal/quota"
	"meetscribe/internal/retry"
	"meetscribe/internal/stt"
	"meetscribe/internal/transcript"
	"meetscribe/internal/usage"

	"github.com/google/uuid"
)

// MaxUploadBytes is the hard ceiling for one upload, independent of tier
const MaxUploadBytes = 250 << 20

// allowedContentTypes is the upload allow-list
var allowedContentTypes = map[string]bool{
	"audio/wav":    true,
	"audio/x-wav":  true,
	"audio/wave":   true,
	"audio/mpeg":   true,
	"audio/mp3":    true,
	"audio/mp4":    true,
	"audio/m4a":    true,
	"audio/x-m4a":  true,
	"audio/aac":    true,
	"audio/ogg":    true,
	"audio/flac":   true,
	"audio/webm":   true,
}

// User is the authenticated identity supplied by the upstream authenticator
type User struct {
	ID   uuid.UUID
	Tier string
}

// Request is one transcription submission
type Request struct {
	User           User
	Filename       string
	SizeBytes      int64
	ContentType    string
	Audio          io.Reader
	Config         stt.Config
	MeetingContext string
}

// Result is the successful pipeline outcome
type Result struct {
	Segments       []model.SpeakerSegment
	Minutes        string
	TranscriptText string
	TranscriptSRT  string
	ProviderJobID  string
	ProviderJob    map[string]any
	Warnings       []string
	LimitExceeded  *quota.LimitWarning
}

// Service coordinates the transcription pipeline: quota gate, provider
// calls with configuration degradation, segment building, minutes
// generation and usage recording.
type Service struct {
	provider     stt.Provider
	minutes      *ai.Generator
	guard        *quota.Guard
	recorder     *usage.Recorder
	pollInterval time.Duration
	submitPolicy retry.Policy
}

// NewService wires the pipeline from its collaborators
func NewService(provider stt.Provider, minutes *ai.Generator, guard *quota.Guard, recorder *usage.Recorder) *Service {
	return &Service{
		provider:     provider,
		minutes:      minutes,
		guard:        guard,
		recorder:     recorder,
		pollInterval: 2 * time.Second,
		submitPolicy: retry.Policy{
			MaxAttempts: 3,
			Backoff:     retry.ExponentialBackoff(time.Second),
			Retryable:   stt.IsTransient,
		},
	}
}

// SetPollInterval overrides the provider poll interval. Used by tests.
func (s *Service) SetPollInterval(d time.Duration) {
	s.pollInterval = d
	s.submitPolicy.Backoff = retry.FixedBackoff(d)
}

// Transcribe runs the full synchronous pipeline for one upload
func (s *Service) Transcribe(ctx context.Context, req Request) (*Result, *Error) {
	if err := validateUpload(req); err != nil {
		return nil, err
	}

	// Quota pre-check. The guard blocks only on limits already reached;
	// the current job is always allowed to complete once accepted.
	decision := s.guard.CheckLimits(ctx, req.User.ID, req.User.Tier, quota.CheckInput{
		FileSizeMB: float64(req.SizeBytes) / (1024 * 1024),
	})
	if !decision.CanProceed {
		return nil, &Error{
			Status:  http.StatusTooManyRequests,
			Code:    CodeUsageLimit,
			Message: decision.Reason,
			Stats:   decision.Stats,
		}
	}

	// Record the processing row. Accounting failures never abort the
	// transcription; the user's ability to act comes first.
	_, recErr := s.recorder.RecordStart(ctx, req.User.ID, req.User.Tier, req.Filename, req.SizeBytes)
	_ = usage.Resolve(usage.LogAndContinue, "record job start", recErr)

	warnings := []string{}
	if decision.Reason != "" {
		warnings = append(warnings, decision.Reason)
	}

	// The upload is buffered once so each degraded submission can replay it
	audio, readErr := io.ReadAll(req.Audio)
	if readErr != nil {
		perr := clientErr(http.StatusBadRequest, CodeBadUpload, "failed to read audio upload: "+readErr.Error())
		s.failJob(ctx, req.User, req.Filename, perr.Message)
		return nil, perr
	}

	jobID, degradeWarnings, perr := s.submitWithDegradation(ctx, req, audio)
	warnings = append(warnings, degradeWarnings...)
	if perr != nil {
		s.failJob(ctx, req.User, req.Filename, perr.Message)
		return nil, perr
	}

	job, perr := s.waitForJob(ctx, jobID)
	if perr != nil {
		s.failJob(ctx, req.User, req.Filename, perr.Message)
		return nil, perr
	}

	result, perr := s.finishJob(ctx, req.User, req.Filename, jobID, job.DurationSeconds, req.MeetingContext)
	if perr != nil {
		s.failJob(ctx, req.User, req.Filename, perr.Message)
		return nil, perr
	}
	result.Warnings = append(warnings, result.Warnings...)
	return result, nil
}

// submitWithDegradation drives the provider through the degrading
// configuration sequence: full options, then auxiliary analysis dropped,
// then language only. Only configuration rejections trigger degradation;
// transient errors are retried in place and anything else is fatal.
func (s *Service) submitWithDegradation(ctx context.Context, req Request, audio []byte) (string, []string, *Error) {
	var warnings []string
	seq := req.Config.DegradeSequence()

	var lastErr error
	for i, cfg := range seq {
		if i > 0 && reflect.DeepEqual(cfg, seq[i-1]) {
			continue
		}

		var jobID string
		err := s.submitPolicy.Do(ctx, func(int) error {
			var submitErr error
			jobID, submitErr = s.provider.Submit(ctx, bytes.NewReader(audio), req.Filename, cfg)
			return submitErr
		})
		if err == nil {
			return jobID, warnings, nil
		}
		lastErr = err

		if stt.IsConfigRejected(err) && i < len(seq)-1 {
			next := seq[i+1]
			msg := fmt.Sprintf("provider rejected the %s configuration, retrying with %s", cfg.Describe(), next.Describe())
			log.Printf("[Pipeline] %s", msg)
			warnings = append(warnings, msg)
			continue
		}
		break
	}

	return "", warnings, providerError(lastErr)
}

// waitForJob polls the provider until the job reaches a terminal status or
// the request context expires
func (s *Service) waitForJob(ctx context.Context, jobID string) (*stt.Job, *Error) {
	const maxPollFailures = 5
	failures := 0
	for {
		job, err := s.provider.GetJob(ctx, jobID)
		if err != nil && stt.IsTransient(err) {
			failures++
			log.Printf("[Pipeline] Transient error polling job %s (%d/%d): %v", jobID, failures, maxPollFailures, err)
			if failures >= maxPollFailures {
				return nil, providerError(err)
			}
		} else if err != nil {
			return nil, providerError(err)
		} else {
			failures = 0
			switch job.Status {
			case stt.JobDone:
				return job, nil
			case stt.JobRejected, stt.JobExpired:
				msg := fmt.Sprintf("provider %s the job", job.Status)
				if len(job.Errors) > 0 {
					msg += ": " + strings.Join(job.Errors, "; ")
				}
				return nil, clientErr(http.StatusInternalServerError, CodeProviderFailure, msg)
			}
		}

		select {
		case <-ctx.Done():
			return nil, clientErr(http.StatusInternalServerError, CodeProviderFailure, "timed out waiting for the transcription provider")
		case <-time.After(s.pollInterval):
		}
	}
}

// finishJob runs the shared completion sequence: fetch the transcript,
// build segments, render text and SRT, generate minutes, run the quota
// post-check and persist the completed job. Both the synchronous path and
// the status poller advance through here.
func (s *Service) finishJob(ctx context.Context, user User, filename, jobID string, durationSeconds float64, meetingContext string) (*Result, *Error) {
	// The provider reported done, so a failed fetch here is usually a blip;
	// it gets the same bounded retry as the submit path.
	var tr *stt.Transcript
	if err := s.submitPolicy.Do(ctx, func(int) error {
		var trErr error
		tr, trErr = s.provider.GetTranscript(ctx, jobID)
		return trErr
	}); err != nil {
		return nil, providerError(err)
	}

	segments := transcript.BuildSegments(tr.Events)
	if tr.DurationSeconds > durationSeconds {
		durationSeconds = tr.DurationSeconds
	}

	// The provider's own renderings are preferred; synthesized fallbacks
	// keep the documented response shape available either way.
	text, textErr := s.provider.GetText(ctx, jobID)
	if textErr != nil || text == "" {
		text = transcript.PlainText(segments)
	}
	srt, srtErr := s.provider.GetSRT(ctx, jobID)
	if srtErr != nil || srt == "" {
		srt = transcript.SRT(segments)
	}

	minutes := s.minutes.Generate(ctx, segments, meetingContext)

	result := &Result{
		Segments:       segments,
		Minutes:        minutes.Text,
		TranscriptText: text,
		TranscriptSRT:  srt,
		ProviderJobID:  jobID,
		ProviderJob:    tr.Raw,
		Warnings:       minutes.Warnings,
	}

	md := &model.JobMetadata{
		TranscriptText: &result.TranscriptText,
		Minutes:        &result.Minutes,
		Segments:       segments,
		ProviderJobID:  &result.ProviderJobID,
		ProviderJob:    result.ProviderJob,
		Warnings:       result.Warnings,
	}
	var dur *float64
	if durationSeconds > 0 {
		dur = &durationSeconds
	}
	_ = usage.Resolve(usage.LogAndContinue, "persist completed job",
		s.recorder.Complete(ctx, user.ID, filename, dur, md))

	// Post-completion check: a job that pushed the user over a limit yields
	// a warning, never a rejection. It runs after the completed row is
	// persisted so the aggregate includes this job's duration.
	result.LimitExceeded = s.guard.PostCheck(ctx, user.ID, user.Tier)

	return result, nil
}

// failJob persists the failed terminal state; the HTTP response being
// returned is never changed by a failure here
func (s *Service) failJob(ctx context.Context, user User, filename, message string) {
	_ = usage.Resolve(usage.LogAndContinue, "persist failed job",
		s.recorder.Fail(ctx, user.ID, filename, message))
}

func validateUpload(req Request) *Error {
	if req.Audio == nil || req.SizeBytes == 0 {
		return clientErr(http.StatusBadRequest, CodeBadUpload, "audio file is required")
	}
	if req.SizeBytes > MaxUploadBytes {
		return clientErr(http.StatusRequestEntityTooLarge, CodeFileTooLarge,
			fmt.Sprintf("file exceeds the %d MB upload limit", MaxUploadBytes>>20))
	}
	ct := req.ContentType
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(strings.ToLower(ct))
	if !allowedContentTypes[ct] {
		return clientErr(http.StatusUnsupportedMediaType, CodeUnsupportedType,
			fmt.Sprintf("unsupported content type %q", req.ContentType))
	}
	return nil
}

func providerError(err error) *Error {
	var perr *Error
	switch {
	case err == nil:
		perr = clientErr(http.StatusInternalServerError, CodeInternal, "transcription failed")
	case stt.IsConfigRejected(err):
		perr = clientErr(http.StatusInternalServerError, CodeProviderFailure,
			fmt.Sprintf("provider rejected every configuration: %v", err))
	case errors.Is(err, stt.ErrBadPayload):
		perr = clientErr(http.StatusBadGateway, CodeBadResult, err.Error())
	default:
		perr = clientErr(http.StatusInternalServerError, CodeProviderFailure, err.Error())
	}
	perr.transient = stt.IsTransient(err)
	return perr
}
