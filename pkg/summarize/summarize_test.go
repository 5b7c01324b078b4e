package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/domain"
)

type fakeGenerator struct {
	calls  []string
	system []string
	reply  func(call int, userPrompt string) (string, error)
}

func (f *fakeGenerator) GenerateText(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls = append(f.calls, userPrompt)
	f.system = append(f.system, systemPrompt)
	return f.reply(len(f.calls), userPrompt)
}

func TestChunkEmptyInputReturnsPlaceholder(t *testing.T) {
	for _, in := range []string{"", "   \n\t"} {
		chunks := Chunk(in, 2000, 200)
		if len(chunks) != 1 || chunks[0] != EmptyPlaceholder {
			t.Fatalf("Chunk(%q) = %#v, want single placeholder", in, chunks)
		}
	}
}

func TestChunkCoversInputWithOverlap(t *testing.T) {
	text := strings.Repeat("abcdefghij", 55) + "é tail"
	size, overlap := 100, 20
	chunks := Chunk(text, size, overlap)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	var rebuilt []rune
	for i, chunk := range chunks {
		runes := []rune(chunk)
		if len(runes) > size {
			t.Fatalf("chunk %d has %d runes, want <= %d", i, len(runes), size)
		}
		if i == 0 {
			rebuilt = append(rebuilt, runes...)
			continue
		}
		prev := []rune(chunks[i-1])
		if string(prev[len(prev)-overlap:]) != string(runes[:overlap]) {
			t.Fatalf("chunk %d does not overlap previous by %d runes", i, overlap)
		}
		rebuilt = append(rebuilt, runes[overlap:]...)
	}
	if string(rebuilt) != text {
		t.Fatalf("chunks do not reconstruct input")
	}
}

func TestFormatBullets(t *testing.T) {
	got := FormatBullets("Point A\n\n- Point B\n   \n")
	want := "- Point A\n- Point B"
	if got != want {
		t.Fatalf("FormatBullets = %q, want %q", got, want)
	}
}

func TestBuildPromptMentionsFormatAndLanguage(t *testing.T) {
	prompt := BuildPrompt(domain.FormatTimestamped, domain.LanguageSpanish)
	if !strings.HasPrefix(prompt, "You are an expert content summarizer.") {
		t.Fatalf("unexpected prompt head: %q", prompt)
	}
	if !strings.Contains(prompt, "estimated timestamps") {
		t.Fatalf("prompt missing timestamped task")
	}
	if !strings.Contains(prompt, "Please provide the summary in Spanish.") {
		t.Fatalf("prompt missing language line")
	}
}

func TestSummarizeJoinsChunksInOrder(t *testing.T) {
	gen := &fakeGenerator{reply: func(call int, _ string) (string, error) {
		return []string{"first", "second", "third"}[call-1], nil
	}}
	s := NewSummarizer(gen, 10, 2)
	got, err := s.Summarize(context.Background(), "abc123", domain.FormatParagraph, domain.LanguageEnglish, strings.Repeat("x", 20))
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got != "first\n\nsecond\n\nthird" {
		t.Fatalf("unexpected summary %q", got)
	}
	for i, call := range gen.calls {
		if !strings.HasPrefix(call, "Content to summarize:\n") {
			t.Fatalf("call %d missing content header: %q", i, call)
		}
	}
	if gen.system[0] != gen.system[len(gen.system)-1] {
		t.Fatalf("system prompt must be shared across chunks")
	}
}

func TestSummarizeBulletsPostProcessing(t *testing.T) {
	gen := &fakeGenerator{reply: func(int, string) (string, error) {
		return "Point A\n- Point B", nil
	}}
	s := NewSummarizer(gen, 0, 0)
	got, err := s.Summarize(context.Background(), "abc123", domain.FormatBullets, domain.LanguageEnglish, "short text")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got != "- Point A\n- Point B" {
		t.Fatalf("unexpected bullets %q", got)
	}
}

func TestSummarizeAbortsOnChunkFailure(t *testing.T) {
	gen := &fakeGenerator{reply: func(call int, _ string) (string, error) {
		if call == 2 {
			return "", errors.New("quota exceeded")
		}
		return "ok", nil
	}}
	s := NewSummarizer(gen, 10, 0)
	got, err := s.Summarize(context.Background(), "abc123", domain.FormatParagraph, domain.LanguageEnglish, strings.Repeat("y", 30))
	if err == nil {
		t.Fatalf("expected error, got summary %q", got)
	}
	if got != "" {
		t.Fatalf("partial output leaked: %q", got)
	}
	if !strings.HasPrefix(err.Error(), "failed to generate summary:") || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gen.calls) != 2 {
		t.Fatalf("calls = %d, want 2 (no calls after failure)", len(gen.calls))
	}
}

func TestPreviewStripsHTML(t *testing.T) {
	got := Preview("<h1>Title</h1><p>Hello <b>world</b></p><script>x()</script>", 0)
	if got != "Title Hello world" {
		t.Fatalf("Preview = %q", got)
	}
	long := Preview(strings.Repeat("word ", 100), 12)
	if !strings.HasSuffix(long, "...") || len([]rune(long)) > 15 {
		t.Fatalf("unexpected truncated preview %q", long)
	}
}

func TestToMarkdownPassesPlainTextThrough(t *testing.T) {
	got, err := ToMarkdown("just text")
	if err != nil {
		t.Fatalf("to markdown: %v", err)
	}
	if got != "just text\n" {
		t.Fatalf("ToMarkdown = %q", got)
	}
	md, err := ToMarkdown("<h2>Key points</h2><ul><li>One</li></ul>")
	if err != nil {
		t.Fatalf("to markdown html: %v", err)
	}
	if !strings.Contains(md, "Key points") || !strings.Contains(md, "One") {
		t.Fatalf("unexpected markdown %q", md)
	}
}
