package course

import (
	"regexp"
	"strings"
)

// maxNameLen caps a single path component. Long Moodle module names would
// otherwise overflow filesystem limits once section and course dirs are added.
const maxNameLen = 200

// forbiddenChars maps characters that are invalid in filenames on at least
// one supported filesystem to their fullwidth lookalikes, so names stay
// readable instead of being stripped.
var forbiddenChars = map[rune]rune{
	'\\': '＼',
	'/':  '／',
	':':  '：',
	'*':  '＊',
	'?':  '？',
	'"':  '＂',
	'<':  '＜',
	'>':  '＞',
	'|':  '｜',
}

// controlRegex matches ASCII control characters.
var controlRegex = regexp.MustCompile(`[\x00-\x1f\x7f]`)

// CleanName turns an arbitrary remote name into a safe single path component.
func CleanName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if mapped, ok := forbiddenChars[r]; ok {
			b.WriteRune(mapped)
			continue
		}
		b.WriteRune(r)
	}

	s := controlRegex.ReplaceAllString(b.String(), "")
	s = strings.TrimSpace(s)
	// Trailing dots are invalid on Windows and confusing everywhere.
	s = strings.TrimRight(s, ". ")

	if len(s) > maxNameLen {
		s = truncateName(s, maxNameLen)
	}
	if s == "" {
		return "unnamed"
	}
	return s
}

// truncateName shortens a name to limit bytes while keeping the extension
// and avoiding a cut inside a multi-byte rune.
func truncateName(s string, limit int) string {
	ext := ""
	if idx := strings.LastIndex(s, "."); idx > 0 && len(s)-idx <= 12 {
		ext = s[idx:]
		s = s[:idx]
	}
	keep := limit - len(ext)
	if keep < 1 {
		keep = 1
	}
	for keep > 0 && keep <= len(s) && !isRuneStart(s, keep) {
		keep--
	}
	if keep < len(s) {
		s = s[:keep]
	}
	return s + ext
}

// isRuneStart reports whether s[i] is the first byte of a UTF-8 rune
// (or the end of the string).
func isRuneStart(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	return (s[i] & 0xC0) != 0x80
}

// JoinPath cleans each part as a single path component and joins them with
// forward slashes, dropping empty parts. A part containing "/" is mapped to
// its fullwidth lookalike rather than creating a subdirectory; callers that
// want real subdirectories pass them as separate parts.
func JoinPath(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		cleaned = append(cleaned, CleanName(p))
	}
	return strings.Join(cleaned, "/")
}
