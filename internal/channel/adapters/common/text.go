package common

import (
	"strings"
	"unicode/utf8"
)

const summaryLimit = 120

// SummarizeText collapses whitespace and shortens text for log lines.
func SummarizeText(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= summaryLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:summaryLimit]) + "..."
}

// TruncateBytes cuts text to at most limit bytes on a rune boundary,
// appending "..." when truncation occurs.
func TruncateBytes(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	const suffix = "..."
	cut := limit - len(suffix)
	if cut <= 0 {
		return text[:0]
	}
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + suffix
}

// SanitizeUTF8 drops invalid byte sequences.
func SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// DigitsOnly strips everything but ASCII digits.
func DigitsOnly(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
