package atscheck

import (
	"html"
	"regexp"
	"strings"
)

var boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

// RenderMarkdown converts the backend's analysis text to markup.
// Only bold (**text**) and bullet lists ("* item" or "- item") are recognized;
// everything else, including any HTML in the input, is escaped.
func RenderMarkdown(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var b strings.Builder
	inList := false
	pendingBreak := false
	for _, line := range lines {
		item, isItem := bulletItem(line)
		if isItem {
			if !inList {
				// A list is a block; no line break before it
				pendingBreak = false
				b.WriteString("<ul>")
				inList = true
			}
			b.WriteString("<li>")
			b.WriteString(renderInline(item))
			b.WriteString("</li>")
			continue
		}

		if inList {
			b.WriteString("</ul>")
			inList = false
		} else if pendingBreak {
			b.WriteString("<br>")
		}
		b.WriteString(renderInline(line))
		pendingBreak = true
	}
	if inList {
		b.WriteString("</ul>")
	}

	return b.String()
}

func bulletItem(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	for _, marker := range []string{"* ", "- "} {
		if strings.HasPrefix(trimmed, marker) {
			return strings.TrimSpace(trimmed[len(marker):]), true
		}
	}
	return "", false
}

func renderInline(s string) string {
	escaped := html.EscapeString(s)
	return boldPattern.ReplaceAllString(escaped, "<strong>$1</strong>")
}
