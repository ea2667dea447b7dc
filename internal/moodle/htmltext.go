package moodle

import (
	"html"
	"regexp"
	"strings"
)

// Moodle descriptions arrive as HTML fragments. htmlToText reduces them to
// readable Markdown-ish text: links survive as [text](url), list items as
// dashes, block ends as blank lines, everything else loses its tags.

var (
	brRegex    = regexp.MustCompile(`(?i)<br\s*/?>`)
	liRegex    = regexp.MustCompile(`(?i)<li[^>]*>`)
	blockEnd   = regexp.MustCompile(`(?i)</(p|div|li|h[1-6]|ul|ol|table|tr)>`)
	linkRegex  = regexp.MustCompile(`(?is)<a\s[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)
	imgRegex   = regexp.MustCompile(`(?i)<img\s[^>]*alt="([^"]*)"[^>]*>`)
	tagRegex   = regexp.MustCompile(`(?s)<[^>]*>`)
	blankRegex = regexp.MustCompile(`\n{3,}`)
)

func htmlToText(s string) string {
	if s == "" {
		return ""
	}

	s = brRegex.ReplaceAllString(s, "\n")
	s = liRegex.ReplaceAllString(s, "- ")
	s = blockEnd.ReplaceAllString(s, "\n\n")
	s = linkRegex.ReplaceAllString(s, "[$2]($1)")
	s = imgRegex.ReplaceAllString(s, "$1")
	s = tagRegex.ReplaceAllString(s, "")

	s = html.UnescapeString(s)

	// Per-line trim keeps list indentation from HTML source formatting out.
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = blankRegex.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}
