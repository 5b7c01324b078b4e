package ai

import (
	"fmt"
	"strings"
	"time"
)

// GeneratorConfig selects and configures a model provider.
type GeneratorConfig struct {
	Provider    string // openai | gemini | ollama
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Retries     int
	RetryDelay  time.Duration
}

// NewGenerator builds the configured TextGenerator, wrapped with retries when Retries > 1.
func NewGenerator(cfg GeneratorConfig) (TextGenerator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "openai"
	}
	var gen TextGenerator
	switch provider {
	case "openai", "openai-compat":
		if strings.TrimSpace(cfg.Model) == "" {
			return nil, fmt.Errorf("generation model required")
		}
		gen = NewOpenAICompatGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Temperature)
	case "gemini":
		client, err := NewGeminiClient(cfg.APIKey, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		gen = NewGeminiGenerator(client, cfg.Model)
	case "ollama":
		if strings.TrimSpace(cfg.Model) == "" {
			return nil, fmt.Errorf("generation model required for ollama")
		}
		gen = NewOllamaGenerator(cfg.BaseURL, cfg.Model, cfg.Temperature)
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", provider)
	}
	return WithRetry(gen, cfg.Retries, cfg.RetryDelay), nil
}
