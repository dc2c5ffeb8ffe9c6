package transcript

import (
	"fmt"

	"meetscribe/internal/model"
)

// UnknownSpeaker is assigned to word events carrying no speaker id when no
// segment is open.
const UnknownSpeaker = "unknown"

// BuildSegments converts a flat recognition-event stream into ordered,
// speaker-grouped segments. Pure function, no I/O.
//
// Speaker labels ("Speaker 1", "Speaker 2", ...) are assigned in first-seen
// order and are stable for the lifetime of one call: a given speaker id
// always maps to the same label.
func BuildSegments(events []model.RecognitionEvent) []model.SpeakerSegment {
	segments := make([]model.SpeakerSegment, 0)
	labels := make(map[string]string)
	var current *model.SpeakerSegment

	labelFor := func(speaker string) string {
		if l, ok := labels[speaker]; ok {
			return l
		}
		l := fmt.Sprintf("Speaker %d", len(labels)+1)
		labels[speaker] = l
		return l
	}

	flush := func() {
		if current != nil {
			segments = append(segments, *current)
			current = nil
		}
	}

	for _, ev := range events {
		switch ev.Type {
		case model.EventSpeakerChange:
			// A change event is a hard boundary: the next word opens a
			// new segment even if the same speaker resumes.
			flush()

		case model.EventWord, model.EventEntity:
			speaker := ev.Speaker
			if speaker == "" && current == nil {
				speaker = UnknownSpeaker
			} else if speaker == "" {
				speaker = current.SpeakerID
			}
			label := labelFor(speaker)

			if current == nil || current.SpeakerID != speaker {
				flush()
				current = &model.SpeakerSegment{
					SpeakerID:    speaker,
					SpeakerLabel: label,
					StartTime:    ev.StartTime,
					EndTime:      ev.EndTime,
					Text:         ev.Text,
				}
				continue
			}
			current.Text += " " + ev.Text
			current.EndTime = ev.EndTime

		case model.EventPunctuation:
			// Punctuation attaches to the trailing text with no space.
			// Before any segment exists it has nothing to attach to.
			if current == nil {
				continue
			}
			current.Text += ev.Text
			if ev.EndTime > current.EndTime {
				current.EndTime = ev.EndTime
			}
		}
	}

	flush()
	return segments
}
