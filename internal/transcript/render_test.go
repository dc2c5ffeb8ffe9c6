package transcript

import (
	"strings"
	"testing"

	"meetscribe/internal/model"
)

func TestPlainText(t *testing.T) {
	segments := []model.SpeakerSegment{
		{SpeakerLabel: "Speaker 1", Text: "Hello there."},
		{SpeakerLabel: "Speaker 2", Text: "Hi."},
	}
	got := PlainText(segments)
	want := "Speaker 1: Hello there.\nSpeaker 2: Hi."
	if got != want {
		t.Errorf("PlainText = %q, want %q", got, want)
	}
}

func TestSRT(t *testing.T) {
	segments := []model.SpeakerSegment{
		{SpeakerLabel: "Speaker 1", Text: "Hello.", StartTime: 0, EndTime: 1.5},
		{SpeakerLabel: "Speaker 2", Text: "Hi.", StartTime: 61.25, EndTime: 62},
	}
	got := SRT(segments)

	for _, want := range []string{
		"1\n00:00:00,000 --> 00:00:01,500\nSpeaker 1: Hello.",
		"2\n00:01:01,250 --> 00:01:02,000\nSpeaker 2: Hi.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("SRT output missing %q:\n%s", want, got)
		}
	}
}

func TestSRTEmpty(t *testing.T) {
	if got := SRT(nil); got != "" {
		t.Errorf("SRT(nil) = %q, want empty", got)
	}
}
