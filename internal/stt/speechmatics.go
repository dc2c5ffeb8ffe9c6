package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"meetscribe/internal/model"
)

// SpeechmaticsProvider implements STT using the Speechmatics batch API
type SpeechmaticsProvider struct {
	apiKey string
	url    string
	client *http.Client
}

// NewSpeechmaticsProvider creates a new Speechmatics STT provider
func NewSpeechmaticsProvider(apiKey, url string) *SpeechmaticsProvider {
	return &SpeechmaticsProvider{
		apiKey: apiKey,
		url:    strings.TrimSuffix(url, "/"),
		client: &http.Client{Timeout: 90 * time.Second},
	}
}

// Name returns the provider name
func (p *SpeechmaticsProvider) Name() string {
	return "speechmatics"
}

type submitResponse struct {
	ID string `json:"id"`
}

type jobResponse struct {
	Job struct {
		ID       string  `json:"id"`
		Status   string  `json:"status"`
		Duration float64 `json:"duration"`
		Errors   []struct {
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"job"`
}

type transcriptResponse struct {
	Job struct {
		Duration float64 `json:"duration"`
	} `json:"job"`
	Results []struct {
		Type         string  `json:"type"`
		StartTime    float64 `json:"start_time"`
		EndTime      float64 `json:"end_time"`
		Alternatives []struct {
			Content string `json:"content"`
			Speaker string `json:"speaker"`
		} `json:"alternatives"`
	} `json:"results"`
}

// Submit uploads the audio file and configuration, returning the job id
func (p *SpeechmaticsProvider) Submit(ctx context.Context, audio io.Reader, filename string, cfg Config) (string, error) {
	configJSON, err := json.Marshal(cfg.wire())
	if err != nil {
		return "", fmt.Errorf("failed to marshal job config: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("data_file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return "", fmt.Errorf("failed to copy audio into request: %w", err)
	}
	if err := mw.WriteField("config", string(configJSON)); err != nil {
		return "", fmt.Errorf("failed to write config field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	log.Printf("[Speechmatics] Submitting job: file=%s, config=%s", filename, string(configJSON))

	body, err := p.do(ctx, "POST", p.url+"/jobs", &buf, mw.FormDataContentType())
	if err != nil {
		return "", err
	}

	var resp submitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%w: submit response carried no job id", ErrBadPayload)
	}

	log.Printf("[Speechmatics] Job submitted: id=%s", resp.ID)
	return resp.ID, nil
}

// GetJob fetches the current status of a job
func (p *SpeechmaticsProvider) GetJob(ctx context.Context, jobID string) (*Job, error) {
	body, err := p.do(ctx, "GET", p.url+"/jobs/"+jobID, nil, "")
	if err != nil {
		return nil, err
	}

	var resp jobResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	job := &Job{
		ID:              resp.Job.ID,
		Status:          resp.Job.Status,
		DurationSeconds: resp.Job.Duration,
	}
	for _, e := range resp.Job.Errors {
		job.Errors = append(job.Errors, e.Message)
	}
	return job, nil
}

// GetTranscript fetches and parses the json-v2 recognition results
func (p *SpeechmaticsProvider) GetTranscript(ctx context.Context, jobID string) (*Transcript, error) {
	body, err := p.do(ctx, "GET", p.url+"/jobs/"+jobID+"/transcript?format=json-v2", nil, "")
	if err != nil {
		return nil, err
	}

	var resp transcriptResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Printf("[Speechmatics] Failed to parse transcript for job %s: %v", jobID, err)
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		raw = nil
	}

	events := make([]model.RecognitionEvent, 0, len(resp.Results))
	for _, r := range resp.Results {
		ev := model.RecognitionEvent{
			Type:      r.Type,
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
		}
		if len(r.Alternatives) > 0 {
			ev.Text = r.Alternatives[0].Content
			ev.Speaker = r.Alternatives[0].Speaker
		}
		events = append(events, ev)
	}

	log.Printf("[Speechmatics] Transcript fetched: job=%s, events=%d, duration=%.1fs",
		jobID, len(events), resp.Job.Duration)

	return &Transcript{
		Events:          events,
		DurationSeconds: resp.Job.Duration,
		Raw:             raw,
	}, nil
}

// GetText fetches the provider's plain-text transcript rendering
func (p *SpeechmaticsProvider) GetText(ctx context.Context, jobID string) (string, error) {
	body, err := p.do(ctx, "GET", p.url+"/jobs/"+jobID+"/transcript?format=txt", nil, "")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// GetSRT fetches the provider's SubRip transcript rendering
func (p *SpeechmaticsProvider) GetSRT(ctx context.Context, jobID string) (string, error) {
	body, err := p.do(ctx, "GET", p.url+"/jobs/"+jobID+"/transcript?format=srt", nil, "")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// do executes one API request and classifies failures
func (p *SpeechmaticsProvider) do(ctx context.Context, method, url string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		preview := string(respBody)
		if len(preview) > 500 {
			preview = preview[:500] + "..."
		}
		log.Printf("[Speechmatics] API error: %s %s -> status %d, body: %s", method, url, resp.StatusCode, preview)
		if class := classifyStatus(resp.StatusCode); class != nil {
			return nil, fmt.Errorf("%w: status %d: %s", class, resp.StatusCode, preview)
		}
		return nil, fmt.Errorf("speechmatics API returned status %d: %s", resp.StatusCode, preview)
	}

	return respBody, nil
}
