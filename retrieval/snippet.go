package retrieval

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// Snippet reduces node text to a plain-text excerpt suitable for a citation
// chip: markup is stripped, whitespace collapsed, and the result truncated
// to maxRunes with an ellipsis. Node text from HTML-backed indexes often
// carries leftover tags.
func Snippet(text string, maxRunes int) string {
	plain := text
	if strings.ContainsAny(text, "<>") {
		if doc, err := html.Parse(strings.NewReader(text)); err == nil {
			var sb strings.Builder
			collectText(doc, &sb)
			plain = sb.String()
		}
	}
	plain = strings.TrimSpace(whitespaceRE.ReplaceAllString(plain, " "))
	if maxRunes <= 0 || utf8.RuneCountInString(plain) <= maxRunes {
		return plain
	}
	runes := []rune(plain)
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript":
			return
		}
	}
	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
