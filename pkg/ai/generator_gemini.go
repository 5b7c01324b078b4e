package ai

import (
	"context"
	"fmt"
	"strings"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiGenerator binds a GeminiClient to one model.
type GeminiGenerator struct {
	client *GeminiClient
	model  string
}

// NewGeminiGenerator builds a Gemini-based TextGenerator. Empty model uses the default.
func NewGeminiGenerator(client *GeminiClient, model string) *GeminiGenerator {
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiGenerator{client: client, model: model}
}

func (g *GeminiGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.client == nil {
		return "", fmt.Errorf("gemini client not configured")
	}
	return g.client.GenerateText(ctx, g.model, systemPrompt, userPrompt)
}
