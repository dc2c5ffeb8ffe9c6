package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"meetscribe/internal/model"
	"meetscribe/internal/retry"

	"github.com/sashabaranov/go-openai"
)

// FallbackNotice is the literal marker embedded in a synthesized summary so
// clients can tell it apart from model-written minutes.
const FallbackNotice = "[automated fallback summary]"

// errEmptyCompletion marks an attempt that succeeded at the HTTP level but
// produced no usable content
var errEmptyCompletion = errors.New("model returned empty content")

// ChatCompleter is the slice of the OpenAI client the generator needs.
// *openai.Client satisfies it; tests substitute fakes.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Minutes is the generation result. Text is always non-empty for a
// non-empty segment list; Warnings records degradations.
type Minutes struct {
	Text     string
	Warnings []string
}

// Generator turns speaker segments into meeting minutes via a chat model,
// degrading to a synthesized summary when the provider is unavailable
type Generator struct {
	client       ChatCompleter
	primaryModel string
	backupModel  string
	attemptDelay time.Duration
	retryBackoff time.Duration
}

// NewGenerator creates a minutes generator. client may be nil when no API
// key is configured; every call then resolves to the fallback summary.
func NewGenerator(client ChatCompleter, primaryModel, backupModel string) *Generator {
	return &Generator{
		client:       client,
		primaryModel: primaryModel,
		backupModel:  backupModel,
		attemptDelay: time.Second,
		retryBackoff: 2 * time.Second,
	}
}

// SetDelays overrides the inter-attempt delays. Used by tests to keep the
// chain fast.
func (g *Generator) SetDelays(attemptDelay, retryBackoff time.Duration) {
	g.attemptDelay = attemptDelay
	g.retryBackoff = retryBackoff
}

// Generate produces meeting minutes for the segments. It never fails: if
// every provider attempt errors or returns empty content, a deterministic
// summary synthesized from segment statistics is returned with a warning.
//
// Attempt chain: primary model twice, then the backup model. A transient
// failure or an all-empty chain earns one extra retry with backoff before
// the fallback synthesis takes over.
func (g *Generator) Generate(ctx context.Context, segments []model.SpeakerSegment, contextText string) Minutes {
	if len(segments) == 0 {
		return Minutes{Text: ""}
	}

	if g.client == nil {
		log.Printf("[Minutes] No generation client configured, using fallback summary")
		return g.fallback(segments, "minutes generation is not configured")
	}

	systemPrompt, userPrompt := BuildMinutesPrompt(segments, contextText)
	models := []string{g.primaryModel, g.primaryModel, g.backupModel}

	var text string
	policy := retry.Policy{
		MaxAttempts: len(models),
		Backoff:     retry.FixedBackoff(g.attemptDelay),
		Retryable: func(err error) bool {
			return errors.Is(err, errEmptyCompletion) || isTransient(err)
		},
	}
	err := policy.Do(ctx, func(attempt int) error {
		mdl := models[attempt-1]
		out, err := g.complete(ctx, mdl, systemPrompt, userPrompt)
		if err != nil {
			log.Printf("[Minutes] Attempt %d (model %s) failed: %v", attempt, mdl, err)
			return err
		}
		if out == "" {
			log.Printf("[Minutes] Attempt %d (model %s) returned empty content", attempt, mdl)
			return errEmptyCompletion
		}
		text = out
		return nil
	})
	if err == nil {
		return Minutes{Text: text}
	}
	if ctx.Err() != nil {
		return g.fallback(segments, "minutes generation cancelled")
	}

	// One extra retry with backoff when the chain was exhausted by
	// transient failures or empty completions.
	if errors.Is(err, errEmptyCompletion) || isTransient(err) {
		if sleepErr := sleepCtx(ctx, g.retryBackoff); sleepErr == nil {
			out, retryErr := g.complete(ctx, g.backupModel, systemPrompt, userPrompt)
			if retryErr == nil && out != "" {
				return Minutes{
					Text:     out,
					Warnings: []string{"minutes were produced after repeated generation failures"},
				}
			}
			if retryErr != nil {
				err = retryErr
			}
		}
	}

	return g.fallback(segments, fmt.Sprintf("minutes generation failed: %v", err))
}

// complete runs one chat completion and returns trimmed content
func (g *Generator) complete(ctx context.Context, mdl, systemPrompt, userPrompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: mdl,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// fallback synthesizes a deterministic summary from segment statistics
func (g *Generator) fallback(segments []model.SpeakerSegment, reason string) Minutes {
	speakers := make(map[string]bool)
	wordCount := 0
	var start, end float64
	for i, seg := range segments {
		speakers[seg.SpeakerLabel] = true
		wordCount += len(strings.Fields(seg.Text))
		if i == 0 || seg.StartTime < start {
			start = seg.StartTime
		}
		if seg.EndTime > end {
			end = seg.EndTime
		}
	}
	duration := time.Duration((end - start) * float64(time.Second)).Round(time.Second)

	text := fmt.Sprintf(`%s
These minutes could not be written by the AI model and were synthesized from the transcript.

- Participants: %d
- Duration: %s
- Approximate word count: %d
- Segments: %d

Please review the full transcript for details.`,
		FallbackNotice, len(speakers), duration, wordCount, len(segments))

	return Minutes{
		Text:     text,
		Warnings: []string{fmt.Sprintf("automated fallback summary used: %s", reason)},
	}
}

// isTransient reports whether a generation error is worth retrying
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500 ||
			apiErr.HTTPStatusCode == 408 ||
			apiErr.HTTPStatusCode == 429
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
