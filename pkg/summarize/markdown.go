package summarize

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// ToMarkdown converts an HTML summary to Markdown. Plain text passes through.
func ToMarkdown(content string) (string, error) {
	if !looksLikeHTML(content) {
		return strings.TrimSpace(content) + "\n", nil
	}
	md, err := htmltomarkdown.ConvertString(content)
	if err != nil {
		return "", fmt.Errorf("convert summary to markdown: %w", err)
	}
	return strings.TrimSpace(md) + "\n", nil
}

func looksLikeHTML(content string) bool {
	trimmed := strings.TrimSpace(content)
	return strings.HasPrefix(trimmed, "<") && strings.Contains(trimmed, ">")
}
