package ai

import (
	"fmt"
	"strings"

	"meetscribe/internal/model"
)

// BuildMinutesPrompt builds the system and user prompts for minutes generation.
// contextText is optional organizer-supplied background prepended to the
// transcript.
func BuildMinutesPrompt(segments []model.SpeakerSegment, contextText string) (string, string) {
	systemPrompt := `You are a meeting-minutes writer.
You must be accurate, neutral and grounded in the transcript.
Do NOT invent information. Use ONLY what the transcript contains.
Write well-structured minutes with these sections:
- Attendees (speaker labels as given)
- Summary (short paragraph)
- Key discussion points (bullets)
- Decisions (bullets, may be empty)
- Action items (bullets, may be empty)`

	var b strings.Builder
	if contextText != "" {
		fmt.Fprintf(&b, "Meeting context provided by the organizer:\n%s\n\n", contextText)
	}
	b.WriteString("Transcript:\n\"\"\"\n")
	for _, seg := range segments {
		fmt.Fprintf(&b, "%s: %s\n", seg.SpeakerLabel, seg.Text)
	}
	b.WriteString("\"\"\"\n\nWrite the meeting minutes now.")

	return systemPrompt, b.String()
}
