package summarize

import (
	"fmt"

	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/domain"
)

var languageNames = map[domain.Language]string{
	domain.LanguageEnglish: "English",
	domain.LanguageSpanish: "Spanish",
	domain.LanguageFrench:  "French",
}

var formatTasks = map[domain.Format]string{
	domain.FormatParagraph: `Create a comprehensive paragraph summary that captures the main ideas and key insights from the video.
Focus on the most important points while maintaining a clear narrative flow.`,
	domain.FormatBullets: `Create a structured bullet-point summary with:
- Main topic and overall theme
- Key points and major takeaways
- Important details and examples
- Conclusions or final thoughts`,
	domain.FormatTimestamped: `Create a chronological summary that highlights key moments and transitions in the video:
- Start with a brief overview
- List major points with estimated timestamps
- Include transitions between main topics
- End with key takeaways`,
}

// BuildPrompt returns the system prompt shared by every chunk of one summary.
// Unknown values fall back to paragraph and English.
func BuildPrompt(format domain.Format, language domain.Language) string {
	task, ok := formatTasks[format]
	if !ok {
		task = formatTasks[domain.FormatParagraph]
	}
	lang, ok := languageNames[language]
	if !ok {
		lang = languageNames[domain.LanguageEnglish]
	}
	return fmt.Sprintf(`You are an expert content summarizer.

Task: %s

Language: Please provide the summary in %s.

Guidelines:
- Maintain accuracy and objectivity
- Focus on key information and main ideas
- Use clear and concise language
- Ensure the summary is self-contained and understandable
- Length should be appropriate to cover all key points`, task, lang)
}

// UserPrompt wraps one chunk for the model.
func UserPrompt(chunk string) string {
	return "Content to summarize:\n" + chunk
}
