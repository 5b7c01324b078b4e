package summarize

import (
	"strings"

	"golang.org/x/net/html"
)

// DefaultPreviewRunes bounds list previews.
const DefaultPreviewRunes = 200

// PlainText strips markup from an HTML or plain summary.
func PlainText(content string) string {
	if !strings.Contains(content, "<") {
		return collapseSpace(content)
	}
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return collapseSpace(content)
	}
	return collapseSpace(extractText(doc))
}

// Preview returns at most limit runes of plain text, with an ellipsis when cut.
func Preview(content string, limit int) string {
	if limit <= 0 {
		limit = DefaultPreviewRunes
	}
	text := PlainText(content)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}

func extractText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return buf.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
