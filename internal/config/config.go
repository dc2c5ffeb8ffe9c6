package config

import (
	"fmt"
	"os"
)

type Config struct {
	Port                string
	DatabaseURL         string
	SpeechmaticsKey     string
	SpeechmaticsURL     string
	OpenAIKey           string
	OpenAIModel         string
	OpenAIFallbackModel string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		SpeechmaticsKey:     os.Getenv("SPEECHMATICS_API_KEY"),
		SpeechmaticsURL:     getEnv("SPEECHMATICS_URL", "https://asr.api.speechmatics.com/v2"),
		OpenAIKey:           os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:         getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIFallbackModel: getEnv("OPENAI_FALLBACK_MODEL", "gpt-3.5-turbo"),
	}

	// Validate required environment variables
	if cfg.SpeechmaticsKey == "" {
		return nil, fmt.Errorf("SPEECHMATICS_API_KEY is required. Please set it as environment variable:\n  Linux/Mac: export SPEECHMATICS_API_KEY=\"your_key\"")
	}

	// OpenAI key is optional; without it the minutes generator always
	// produces the synthesized fallback summary.

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
