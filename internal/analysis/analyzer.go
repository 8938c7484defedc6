// Package analysis turns raw text into the normalized terms stored in the index.
// The same analyzer must be used at index and query time.
package analysis

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token is a normalized term and its 0-based position within the field.
type Token struct {
	Term     string
	Position int
}

// Analyzer produces the token stream for one field value.
type Analyzer interface {
	Tokens(field, text string) iter.Seq[Token]
}

// Simple splits on runs of non-letter characters and lowercases each run.
// Digits are not letters and act as separators.
type Simple struct{}

// NewSimple returns the default analyzer.
func NewSimple() Simple { return Simple{} }

// Tokens lazily yields the terms of text. Invalid UTF-8 decodes to U+FFFD,
// which is not a letter.
func (Simple) Tokens(_ string, text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		pos := 0
		start := -1
		for i := 0; i <= len(text); {
			r, size := utf8.RuneError, 1
			if i < len(text) {
				r, size = utf8.DecodeRuneInString(text[i:])
			}
			letter := i < len(text) && unicode.IsLetter(r)
			if letter && start < 0 {
				start = i
			}
			if !letter && start >= 0 {
				if !yield(Token{Term: lower(text[start:i]), Position: pos}) {
					return
				}
				pos++
				start = -1
			}
			i += size
		}
	}
}

// lower folds a run of letters. Runs are valid UTF-8 since U+FFFD ends a run.
func lower(s string) string {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= utf8.RuneSelf || ('A' <= c && c <= 'Z') {
			return strings.Map(unicode.ToLower, s)
		}
	}
	return s
}

// Terms collects the token stream into a slice.
func Terms(a Analyzer, field, text string) []Token {
	var out []Token
	for tok := range a.Tokens(field, text) {
		out = append(out, tok)
	}
	return out
}
