package stt

// Diarization modes accepted by the provider
const (
	DiarizationNone    = "none"
	DiarizationSpeaker = "speaker"
	DiarizationChannel = "channel"
)

// Config is the transcription configuration submitted with a job
type Config struct {
	Language             string
	Diarization          string
	SpeakerSensitivity   float64
	EnableSummarization  bool
	SummaryType          string
	SummaryLength        string
	SummaryContentType   string
	EnableSentiment      bool
	EnableTopics         bool
	Topics               []string
	TranslationLanguages []string
}

// DefaultConfig returns the configuration used when the client sends no options
func DefaultConfig() Config {
	return Config{
		Language:    "en",
		Diarization: DiarizationSpeaker,
	}
}

// HasAuxiliary reports whether any optional analysis feature is enabled
func (c Config) HasAuxiliary() bool {
	return c.EnableSummarization || c.EnableSentiment || c.EnableTopics || len(c.TranslationLanguages) > 0
}

// DegradeSequence returns the configurations to try in order when the
// provider rejects a configuration: the original, then the original with all
// auxiliary analysis dropped, then language-only with no diarization.
func (c Config) DegradeSequence() []Config {
	seq := []Config{c}

	noAux := c
	noAux.EnableSummarization = false
	noAux.SummaryType = ""
	noAux.SummaryLength = ""
	noAux.SummaryContentType = ""
	noAux.EnableSentiment = false
	noAux.EnableTopics = false
	noAux.Topics = nil
	noAux.TranslationLanguages = nil
	seq = append(seq, noAux)

	bare := Config{Language: c.Language, Diarization: DiarizationNone}
	return append(seq, bare)
}

// Describe returns a short human-readable summary of the configuration,
// used in degradation warnings
func (c Config) Describe() string {
	if c.HasAuxiliary() {
		return "full options"
	}
	if c.Diarization != DiarizationNone && c.Diarization != "" {
		return "diarization only"
	}
	return "language only"
}

// jobConfig is the wire shape of the job configuration document
type jobConfig struct {
	Type                string                  `json:"type"`
	TranscriptionConfig wireTranscriptionConfig `json:"transcription_config"`
	SummarizationConfig *wireSummarization      `json:"summarization_config,omitempty"`
	SentimentConfig     *struct{}               `json:"sentiment_analysis_config,omitempty"`
	TopicConfig         *wireTopics             `json:"topic_detection_config,omitempty"`
	TranslationConfig   *wireTranslation        `json:"translation_config,omitempty"`
}

type wireTranscriptionConfig struct {
	Language           string           `json:"language"`
	Diarization        string           `json:"diarization,omitempty"`
	SpeakerDiarization *wireSensitivity `json:"speaker_diarization_config,omitempty"`
}

type wireSensitivity struct {
	SpeakerSensitivity float64 `json:"speaker_sensitivity"`
}

type wireSummarization struct {
	ContentType   string `json:"content_type,omitempty"`
	SummaryLength string `json:"summary_length,omitempty"`
	SummaryType   string `json:"summary_type,omitempty"`
}

type wireTopics struct {
	Topics []string `json:"topics,omitempty"`
}

type wireTranslation struct {
	TargetLanguages []string `json:"target_languages"`
}

func (c Config) wire() jobConfig {
	jc := jobConfig{
		Type: "transcription",
		TranscriptionConfig: wireTranscriptionConfig{
			Language: c.Language,
		},
	}
	if c.Diarization != "" && c.Diarization != DiarizationNone {
		jc.TranscriptionConfig.Diarization = c.Diarization
		if c.Diarization == DiarizationSpeaker && c.SpeakerSensitivity > 0 {
			jc.TranscriptionConfig.SpeakerDiarization = &wireSensitivity{SpeakerSensitivity: c.SpeakerSensitivity}
		}
	}
	if c.EnableSummarization {
		jc.SummarizationConfig = &wireSummarization{
			ContentType:   c.SummaryContentType,
			SummaryLength: c.SummaryLength,
			SummaryType:   c.SummaryType,
		}
	}
	if c.EnableSentiment {
		jc.SentimentConfig = &struct{}{}
	}
	if c.EnableTopics {
		jc.TopicConfig = &wireTopics{Topics: c.Topics}
	}
	if len(c.TranslationLanguages) > 0 {
		jc.TranslationConfig = &wireTranslation{TargetLanguages: c.TranslationLanguages}
	}
	return jc
}
