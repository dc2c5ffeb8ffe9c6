package transcript

import (
	"fmt"
	"strings"

	"meetscribe/internal/model"
)

// PlainText renders segments as "Speaker N: text" lines. An empty segment
// list yields an empty string, never an error.
func PlainText(segments []model.SpeakerSegment) string {
	if len(segments) == 0 {
		return ""
	}
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		lines = append(lines, fmt.Sprintf("%s: %s", seg.SpeakerLabel, seg.Text))
	}
	return strings.Join(lines, "\n")
}

// SRT renders segments as a SubRip subtitle document
func SRT(segments []model.SpeakerSegment) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", srtTimestamp(seg.StartTime), srtTimestamp(seg.EndTime))
		fmt.Fprintf(&b, "%s: %s\n\n", seg.SpeakerLabel, seg.Text)
	}
	return b.String()
}

func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int(seconds*1000 + 0.5)
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
