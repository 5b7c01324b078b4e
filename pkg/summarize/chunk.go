package summarize

import "strings"

const (
	DefaultChunkSize    = 2000
	DefaultChunkOverlap = 200

	// EmptyPlaceholder is the single chunk produced for empty input.
	EmptyPlaceholder = "No content available."
)

// Chunk splits text into rune windows of size that overlap by overlap runes.
// Windows are kept verbatim so that joining them, minus the overlap, gives
// back the input. Empty or whitespace-only input yields one placeholder chunk.
func Chunk(text string, size, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return []string{EmptyPlaceholder}
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}
	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
