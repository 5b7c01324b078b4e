package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/ai"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/domain"
)

// Summarizer turns long descriptive text into a summary with a TextGenerator.
type Summarizer struct {
	generator    ai.TextGenerator
	chunkSize    int
	chunkOverlap int
}

// NewSummarizer builds a summarizer. Non-positive sizes use the defaults.
func NewSummarizer(generator ai.TextGenerator, chunkSize, chunkOverlap int) *Summarizer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = DefaultChunkOverlap
	}
	return &Summarizer{
		generator:    generator,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Summarize sends every chunk to the model in order and joins the outputs.
// A failing chunk aborts the whole call; nothing partial is returned.
func (s *Summarizer) Summarize(ctx context.Context, videoID string, format domain.Format, language domain.Language, description string) (string, error) {
	if s.generator == nil {
		return "", fmt.Errorf("failed to generate summary: text generator not configured")
	}
	systemPrompt := BuildPrompt(format, language)
	chunks := Chunk(description, s.chunkSize, s.chunkOverlap)
	outputs := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		text, err := s.generator.GenerateText(ctx, systemPrompt, UserPrompt(chunk))
		if err != nil {
			return "", fmt.Errorf("failed to generate summary: chunk %d/%d of video %s: %w", i+1, len(chunks), videoID, err)
		}
		outputs = append(outputs, text)
	}
	combined := strings.Join(outputs, "\n\n")
	if format == domain.FormatBullets {
		return FormatBullets(combined), nil
	}
	return strings.TrimSpace(combined), nil
}

// FormatBullets drops blank lines and prefixes every other line with "- "
// unless it already starts with a dash.
func FormatBullets(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "-") {
			line = "- " + line
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
