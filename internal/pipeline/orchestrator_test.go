package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"meetscribe/internal/ai"
	"meetscribe/internal/model"
	"meetscribe/internal/quota"
	"meetscribe/internal/repository"
	"meetscribe/internal/stt"
	"meetscribe/internal/usage"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

// fakeProvider is a scripted stt.Provider
type fakeProvider struct {
	submitErrs []error
	submits    []stt.Config
	jobStatus  string
	jobErrors  []string
	duration   float64
	events     []model.RecognitionEvent
	text       string
	srt        string
	getJobErr  error
	trErrs     []error
	trCalls    int
}

func (f *fakeProvider) Submit(_ context.Context, audio io.Reader, _ string, cfg stt.Config) (string, error) {
	io.Copy(io.Discard, audio)
	idx := len(f.submits)
	f.submits = append(f.submits, cfg)
	if idx < len(f.submitErrs) && f.submitErrs[idx] != nil {
		return "", f.submitErrs[idx]
	}
	return "job-1", nil
}

func (f *fakeProvider) GetJob(context.Context, string) (*stt.Job, error) {
	if f.getJobErr != nil {
		return nil, f.getJobErr
	}
	status := f.jobStatus
	if status == "" {
		status = stt.JobDone
	}
	return &stt.Job{ID: "job-1", Status: status, DurationSeconds: f.duration, Errors: f.jobErrors}, nil
}

func (f *fakeProvider) GetTranscript(context.Context, string) (*stt.Transcript, error) {
	idx := f.trCalls
	f.trCalls++
	if idx < len(f.trErrs) && f.trErrs[idx] != nil {
		return nil, f.trErrs[idx]
	}
	return &stt.Transcript{Events: f.events, DurationSeconds: f.duration, Raw: map[string]any{"id": "job-1"}}, nil
}

func (f *fakeProvider) GetText(context.Context, string) (string, error) { return f.text, nil }

func (f *fakeProvider) GetSRT(context.Context, string) (string, error) { return f.srt, nil }

func (f *fakeProvider) Name() string { return "fake" }

// fakeRepo tracks job writes and aggregates usage the way the SQL
// repository does: processing rows count, completed rows add duration
type fakeRepo struct {
	usageCount    int
	usageDuration float64 // seconds
	created       []*model.TranscriptionJob
	updates       []string
	lastUpdate    repository.JobUpdate
}

func (f *fakeRepo) CreateJob(_ context.Context, job *model.TranscriptionJob) error {
	f.created = append(f.created, job)
	f.usageCount++
	return nil
}
func (f *fakeRepo) GetJobByID(context.Context, uuid.UUID) (*model.TranscriptionJob, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeRepo) GetJobByUserFilename(context.Context, uuid.UUID, string) (*model.TranscriptionJob, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeRepo) UpdateJobStatus(_ context.Context, _ uuid.UUID, _ string, status string, update repository.JobUpdate) error {
	f.updates = append(f.updates, status)
	f.lastUpdate = update
	if status == model.StatusCompleted && update.DurationSeconds != nil {
		f.usageDuration += *update.DurationSeconds
	}
	return nil
}
func (f *fakeRepo) ListByUser(context.Context, uuid.UUID, int, int) ([]model.TranscriptionJob, error) {
	return nil, nil
}
func (f *fakeRepo) MonthlyUsage(context.Context, uuid.UUID, time.Time) (*repository.MonthlyUsage, error) {
	return &repository.MonthlyUsage{
		TranscriptionCount:   f.usageCount,
		TotalDurationSeconds: f.usageDuration,
	}, nil
}
func (f *fakeRepo) GetTierLimits(_ context.Context, tier string) (*model.TierLimits, error) {
	return &model.TierLimits{Tier: tier, MonthlyLimit: 10, MaxFileSizeMB: 25, MaxDurationMinutes: 120}, nil
}
func (f *fakeRepo) SeedTierLimits(context.Context) error { return nil }

// fixedChat returns the same completion every call
type fixedChat struct {
	text string
	err  error
}

func (f *fixedChat) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.text}},
		},
	}, nil
}

func conversationEvents() []model.RecognitionEvent {
	return []model.RecognitionEvent{
		{Type: model.EventWord, Text: "Hello", Speaker: "spk1", StartTime: 0, EndTime: 0.4},
		{Type: model.EventWord, Text: "there", Speaker: "spk1", StartTime: 0.5, EndTime: 0.9},
		{Type: model.EventSpeakerChange, StartTime: 1.0, EndTime: 1.0},
		{Type: model.EventWord, Text: "Hi", Speaker: "spk2", StartTime: 1.1, EndTime: 1.3},
	}
}

func newTestService(provider stt.Provider, repo repository.JobRepository, chat ai.ChatCompleter) *Service {
	gen := ai.NewGenerator(chat, "primary", "backup")
	gen.SetDelays(0, 0)
	svc := NewService(provider, gen, quota.NewGuard(repo), usage.NewRecorder(repo))
	svc.SetPollInterval(time.Millisecond)
	return svc
}

func wavRequest(size int64) Request {
	return Request{
		User:        User{ID: uuid.New(), Tier: model.TierFree},
		Filename:    "standup.wav",
		SizeBytes:   size,
		ContentType: "audio/wav",
		Audio:       strings.NewReader(strings.Repeat("x", int(size))),
		Config:      stt.DefaultConfig(),
	}
}

func TestTranscribeSuccess(t *testing.T) {
	provider := &fakeProvider{events: conversationEvents(), duration: 1.3}
	repo := &fakeRepo{usageCount: 9}
	svc := newTestService(provider, repo, &fixedChat{text: "The minutes."})

	result, perr := svc.Transcribe(context.Background(), wavRequest(2<<20))
	if perr != nil {
		t.Fatalf("unexpected error: %+v", perr)
	}

	if len(result.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(result.Segments))
	}
	if result.Segments[0].SpeakerLabel != "Speaker 1" || result.Segments[0].Text != "Hello there" {
		t.Errorf("segment 0 = %+v", result.Segments[0])
	}
	if result.Segments[1].SpeakerLabel != "Speaker 2" || result.Segments[1].Text != "Hi" {
		t.Errorf("segment 1 = %+v", result.Segments[1])
	}
	if result.Minutes != "The minutes." {
		t.Errorf("minutes = %q", result.Minutes)
	}
	// No provider text rendering: the synthesized fallback fills the shape.
	if !strings.Contains(result.TranscriptText, "Speaker 1: Hello there") {
		t.Errorf("transcript text = %q", result.TranscriptText)
	}
	if result.TranscriptSRT == "" {
		t.Error("transcript SRT should be synthesized when the provider has none")
	}

	if len(repo.created) != 1 || repo.created[0].Status != model.StatusProcessing {
		t.Errorf("expected one processing row, got %+v", repo.created)
	}
	if len(repo.updates) != 1 || repo.updates[0] != model.StatusCompleted {
		t.Errorf("expected one completed transition, got %v", repo.updates)
	}
	if repo.lastUpdate.Metadata == nil || repo.lastUpdate.Metadata.Minutes == nil {
		t.Error("completed job should persist its minutes")
	}
	// This was the tenth job on a ten-job tier, so the post-completion
	// check must flag the exhausted allotment.
	if result.LimitExceeded == nil || result.LimitExceeded.Type != "transcription_count" {
		t.Errorf("limitExceeded = %+v", result.LimitExceeded)
	}
}

func TestTranscribeWarnsWhenJobCrossesDurationLimit(t *testing.T) {
	// 118 of 120 monthly minutes used; this 5 minute recording crosses the
	// ceiling. The pre-check lets it through and the post-check must see
	// the persisted duration and warn.
	provider := &fakeProvider{events: conversationEvents(), duration: 300}
	repo := &fakeRepo{usageDuration: 118 * 60}
	svc := newTestService(provider, repo, &fixedChat{text: "Minutes."})

	result, perr := svc.Transcribe(context.Background(), wavRequest(1<<20))
	if perr != nil {
		t.Fatalf("unexpected error: %+v", perr)
	}
	if repo.lastUpdate.DurationSeconds == nil || *repo.lastUpdate.DurationSeconds != 300 {
		t.Fatalf("persisted duration = %v, want 300", repo.lastUpdate.DurationSeconds)
	}
	if result.LimitExceeded == nil {
		t.Fatal("job that crossed the duration limit must carry a warning")
	}
	if result.LimitExceeded.Type != "duration" || result.LimitExceeded.UpgradeURL == "" {
		t.Errorf("limitExceeded = %+v", result.LimitExceeded)
	}
}

func TestTranscribeQuotaRejected(t *testing.T) {
	provider := &fakeProvider{}
	repo := &fakeRepo{usageCount: 10}
	svc := newTestService(provider, repo, &fixedChat{text: "unused"})

	_, perr := svc.Transcribe(context.Background(), wavRequest(2<<20))
	if perr == nil {
		t.Fatal("expected a quota rejection")
	}
	if perr.Status != http.StatusTooManyRequests || perr.Code != CodeUsageLimit {
		t.Errorf("error = %d %s, want 429 %s", perr.Status, perr.Code, CodeUsageLimit)
	}
	if perr.Stats == nil || perr.Stats.TranscriptionsUsed != 10 {
		t.Errorf("stats = %+v", perr.Stats)
	}
	if len(provider.submits) != 0 {
		t.Error("rejected request must not reach the provider")
	}
	if len(repo.created) != 0 {
		t.Error("rejected request must not create a job row")
	}
}

func TestTranscribeDegradesConfiguration(t *testing.T) {
	provider := &fakeProvider{
		submitErrs: []error{fmt.Errorf("%w: summarization unavailable", stt.ErrConfigRejected)},
		events:     conversationEvents(),
	}
	repo := &fakeRepo{}
	svc := newTestService(provider, repo, &fixedChat{text: "Minutes."})

	req := wavRequest(1 << 20)
	req.Config.EnableSummarization = true
	req.Config.SummaryType = "bullets"

	result, perr := svc.Transcribe(context.Background(), req)
	if perr != nil {
		t.Fatalf("unexpected error: %+v", perr)
	}

	if len(provider.submits) != 2 {
		t.Fatalf("submits = %d, want 2", len(provider.submits))
	}
	if provider.submits[1].HasAuxiliary() {
		t.Error("second submission should have dropped auxiliary analysis")
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "rejected") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a degradation warning, got %v", result.Warnings)
	}
}

func TestTranscribeDegradationExhausted(t *testing.T) {
	reject := fmt.Errorf("%w: bad config", stt.ErrConfigRejected)
	provider := &fakeProvider{submitErrs: []error{reject, reject, reject}}
	repo := &fakeRepo{}
	svc := newTestService(provider, repo, &fixedChat{text: "unused"})

	req := wavRequest(1 << 20)
	req.Config.EnableSummarization = true

	_, perr := svc.Transcribe(context.Background(), req)
	if perr == nil {
		t.Fatal("expected failure after every degradation was rejected")
	}
	if perr.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", perr.Status)
	}
	if len(provider.submits) != 3 {
		t.Errorf("submits = %d, want 3", len(provider.submits))
	}
	if len(repo.updates) != 1 || repo.updates[0] != model.StatusFailed {
		t.Errorf("expected a failed transition, got %v", repo.updates)
	}
}

func TestTranscribeRetriesTransientSubmit(t *testing.T) {
	provider := &fakeProvider{
		submitErrs: []error{fmt.Errorf("%w: gateway hiccup", stt.ErrTransient)},
		events:     conversationEvents(),
	}
	svc := newTestService(provider, &fakeRepo{}, &fixedChat{text: "Minutes."})

	_, perr := svc.Transcribe(context.Background(), wavRequest(1<<20))
	if perr != nil {
		t.Fatalf("unexpected error: %+v", perr)
	}
	if len(provider.submits) != 2 {
		t.Errorf("submits = %d, want a transient retry with the same config", len(provider.submits))
	}
}

func TestTranscribeGenerationFallback(t *testing.T) {
	provider := &fakeProvider{events: conversationEvents()}
	repo := &fakeRepo{}
	svc := newTestService(provider, repo, &fixedChat{err: &openai.APIError{HTTPStatusCode: 503}})

	result, perr := svc.Transcribe(context.Background(), wavRequest(1<<20))
	if perr != nil {
		t.Fatalf("unexpected error: %+v", perr)
	}
	if result.Minutes == "" {
		t.Fatal("minutes must never be empty for a non-empty transcript")
	}
	if !strings.Contains(result.Minutes, ai.FallbackNotice) {
		t.Errorf("minutes should carry the fallback notice:\n%s", result.Minutes)
	}
	if len(result.Warnings) == 0 {
		t.Error("fallback minutes must surface a warning")
	}
}

func TestTranscribeRetriesTransientTranscriptFetch(t *testing.T) {
	blip := fmt.Errorf("%w: gateway timeout", stt.ErrTransient)
	provider := &fakeProvider{
		trErrs: []error{blip, blip},
		events: conversationEvents(),
	}
	repo := &fakeRepo{}
	svc := newTestService(provider, repo, &fixedChat{text: "Minutes."})

	result, perr := svc.Transcribe(context.Background(), wavRequest(1<<20))
	if perr != nil {
		t.Fatalf("unexpected error: %+v", perr)
	}
	if provider.trCalls != 3 {
		t.Errorf("transcript fetches = %d, want 3", provider.trCalls)
	}
	if len(result.Segments) != 2 {
		t.Errorf("segments = %d, want 2", len(result.Segments))
	}
	if len(repo.updates) != 1 || repo.updates[0] != model.StatusCompleted {
		t.Errorf("expected a completed transition, got %v", repo.updates)
	}
}

func TestTranscribeBadProviderPayload(t *testing.T) {
	provider := &fakeProvider{trErrs: []error{fmt.Errorf("%w: not json", stt.ErrBadPayload)}}
	repo := &fakeRepo{}
	svc := newTestService(provider, repo, &fixedChat{text: "unused"})

	_, perr := svc.Transcribe(context.Background(), wavRequest(1<<20))
	if perr == nil {
		t.Fatal("expected failure")
	}
	if perr.Status != http.StatusBadGateway || perr.Code != CodeBadResult {
		t.Errorf("error = %d %s, want 502 %s", perr.Status, perr.Code, CodeBadResult)
	}
	if provider.trCalls != 1 {
		t.Errorf("transcript fetches = %d, bad payloads must not be retried", provider.trCalls)
	}
}

func TestTranscribeValidation(t *testing.T) {
	svc := newTestService(&fakeProvider{}, &fakeRepo{}, &fixedChat{text: "unused"})

	cases := []struct {
		name   string
		mutate func(*Request)
		status int
		code   string
	}{
		{"missing audio", func(r *Request) { r.Audio = nil; r.SizeBytes = 0 }, http.StatusBadRequest, CodeBadUpload},
		{"too large", func(r *Request) { r.SizeBytes = MaxUploadBytes + 1 }, http.StatusRequestEntityTooLarge, CodeFileTooLarge},
		{"bad type", func(r *Request) { r.ContentType = "application/pdf" }, http.StatusUnsupportedMediaType, CodeUnsupportedType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := wavRequest(1 << 20)
			tc.mutate(&req)
			_, perr := svc.Transcribe(context.Background(), req)
			if perr == nil {
				t.Fatal("expected a validation error")
			}
			if perr.Status != tc.status || perr.Code != tc.code {
				t.Errorf("error = %d %s, want %d %s", perr.Status, perr.Code, tc.status, tc.code)
			}
		})
	}
}

func TestCheckStatusProcessing(t *testing.T) {
	for _, status := range []string{stt.JobAccepted, stt.JobRunning} {
		provider := &fakeProvider{jobStatus: status}
		repo := &fakeRepo{}
		svc := newTestService(provider, repo, &fixedChat{text: "unused"})

		res, perr := svc.CheckStatus(context.Background(), User{ID: uuid.New(), Tier: model.TierFree}, "job-1", "standup.wav")
		if perr != nil {
			t.Fatalf("%s: unexpected error: %+v", status, perr)
		}
		if res.Status != StatusProcessing {
			t.Errorf("%s -> %s, want %s", status, res.Status, StatusProcessing)
		}
		if len(repo.updates) != 0 {
			t.Errorf("%s: processing poll must not mutate stored state", status)
		}
	}
}

func TestCheckStatusDone(t *testing.T) {
	provider := &fakeProvider{jobStatus: stt.JobDone, events: conversationEvents(), duration: 1.3}
	repo := &fakeRepo{}
	svc := newTestService(provider, repo, &fixedChat{text: "Minutes."})

	res, perr := svc.CheckStatus(context.Background(), User{ID: uuid.New(), Tier: model.TierFree}, "job-1", "standup.wav")
	if perr != nil {
		t.Fatalf("unexpected error: %+v", perr)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s", res.Status, StatusCompleted)
	}
	if res.Result == nil || len(res.Result.Segments) != 2 || res.Result.Minutes == "" {
		t.Errorf("completed poll should carry the artifacts: %+v", res.Result)
	}
	if len(repo.updates) != 1 || repo.updates[0] != model.StatusCompleted {
		t.Errorf("expected a completed transition, got %v", repo.updates)
	}
}

func TestCheckStatusTransientFinishKeepsJobAlive(t *testing.T) {
	blip := fmt.Errorf("%w: gateway timeout", stt.ErrTransient)
	provider := &fakeProvider{
		jobStatus: stt.JobDone,
		trErrs:    []error{blip, blip, blip},
		events:    conversationEvents(),
	}
	repo := &fakeRepo{}
	svc := newTestService(provider, repo, &fixedChat{text: "Minutes."})
	user := User{ID: uuid.New(), Tier: model.TierFree}

	_, perr := svc.CheckStatus(context.Background(), user, "job-1", "standup.wav")
	if perr == nil {
		t.Fatal("expected an error after the retries were exhausted")
	}
	if len(repo.updates) != 0 {
		t.Fatalf("transient finish failure must not persist a terminal state, got %v", repo.updates)
	}

	// The blips cleared; the next poll completes the job.
	res, perr := svc.CheckStatus(context.Background(), user, "job-1", "standup.wav")
	if perr != nil {
		t.Fatalf("unexpected error on the second poll: %+v", perr)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s", res.Status, StatusCompleted)
	}
	if len(repo.updates) != 1 || repo.updates[0] != model.StatusCompleted {
		t.Errorf("expected a completed transition, got %v", repo.updates)
	}
}

func TestCheckStatusRejected(t *testing.T) {
	provider := &fakeProvider{jobStatus: stt.JobRejected, jobErrors: []string{"unsupported sample rate"}}
	repo := &fakeRepo{}
	svc := newTestService(provider, repo, &fixedChat{text: "unused"})

	res, perr := svc.CheckStatus(context.Background(), User{ID: uuid.New(), Tier: model.TierFree}, "job-1", "standup.wav")
	if perr != nil {
		t.Fatalf("unexpected error: %+v", perr)
	}
	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want %s", res.Status, StatusFailed)
	}
	if !strings.Contains(res.ErrorMessage, "unsupported sample rate") {
		t.Errorf("error message = %q", res.ErrorMessage)
	}
	if len(repo.updates) != 1 || repo.updates[0] != model.StatusFailed {
		t.Errorf("expected a failed transition, got %v", repo.updates)
	}
}

func TestCheckStatusUnknown(t *testing.T) {
	provider := &fakeProvider{jobStatus: "deleting"}
	repo := &fakeRepo{}
	svc := newTestService(provider, repo, &fixedChat{text: "unused"})

	res, perr := svc.CheckStatus(context.Background(), User{ID: uuid.New(), Tier: model.TierFree}, "job-1", "standup.wav")
	if perr != nil {
		t.Fatalf("unexpected error: %+v", perr)
	}
	if res.Status != StatusUnknown {
		t.Fatalf("status = %s, want %s", res.Status, StatusUnknown)
	}
	if len(repo.updates) != 0 {
		t.Error("unknown status must not mutate stored state")
	}
}

func TestCheckStatusRequiresIdentifiers(t *testing.T) {
	svc := newTestService(&fakeProvider{}, &fakeRepo{}, &fixedChat{text: "unused"})
	_, perr := svc.CheckStatus(context.Background(), User{ID: uuid.New()}, "", "")
	if perr == nil || perr.Status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", perr)
	}
}
