package search

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Highlight wraps every word of text whose lowercase form is in terms with
// pre and post, then truncates the plain text to maxLen bytes. Words are
// letter runs, as the analyzer sees them.
func Highlight(text string, terms map[string]bool, pre, post string, maxLen int) string {
	if maxLen > 0 && len(text) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	if len(terms) == 0 {
		return text
	}
	var sb strings.Builder
	start := -1
	emit := func(end int) {
		word := text[start:end]
		if terms[strings.ToLower(word)] {
			sb.WriteString(pre)
			sb.WriteString(word)
			sb.WriteString(post)
		} else {
			sb.WriteString(word)
		}
		start = -1
	}
	for i, r := range text {
		if unicode.IsLetter(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			emit(i)
		}
		sb.WriteRune(r)
	}
	if start >= 0 {
		emit(len(text))
	}
	return sb.String()
}
