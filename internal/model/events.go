package model

// Recognition event types emitted by the speech-to-text provider
const (
	EventWord          = "word"
	EventPunctuation   = "punctuation"
	EventEntity        = "entity"
	EventSpeakerChange = "speaker_change"
)

// RecognitionEvent is one element of the provider's flat event stream.
// Speaker and Text are empty for speaker_change events.
type RecognitionEvent struct {
	Type      string  `json:"type"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Speaker   string  `json:"speaker,omitempty"`
	Text      string  `json:"content,omitempty"`
}
