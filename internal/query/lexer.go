package query

import (
	"strings"

	"github.com/hyperjump/kensaku/internal/apperr"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokTerm
	tokPhrase
	tokColon
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
	tokPlus
	tokMinus
	tokCaret
	tokTilde
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of query"
	case tokTerm:
		return "term"
	case tokPhrase:
		return "phrase"
	case tokColon:
		return "':'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokNot:
		return "NOT"
	case tokPlus:
		return "'+'"
	case tokMinus:
		return "'-'"
	case tokCaret:
		return "'^'"
	case tokTilde:
		return "'~'"
	}
	return "token"
}

// token is a lexeme with its byte offset in the query.
type token struct {
	kind tokenKind
	off  int
	// text is the unescaped value of a term or phrase, or the number after
	// '^' or '~' (empty when a bare '~').
	text string
	// raw keeps escapes of a term so wildcard metacharacters stay distinguishable.
	raw      string
	wildcard bool
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// Characters that end a term unless escaped.
func isTermBreak(c byte) bool {
	switch c {
	case '(', ')', ':', '^', '~', '"':
		return true
	}
	return isSpace(c)
}

func isNumberByte(c byte) bool { return c >= '0' && c <= '9' || c == '.' }

func lex(q string) ([]token, error) {
	var toks []token
	i := 0
	for {
		for i < len(q) && isSpace(q[i]) {
			i++
		}
		if i >= len(q) {
			toks = append(toks, token{kind: tokEOF, off: i})
			return toks, nil
		}
		tok, next, err := lexOne(q, i)
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		i = next
	}
}

func lexOne(q string, i int) (token, int, error) {
	c := q[i]
	switch c {
	case '(':
		return token{kind: tokLParen, off: i}, i + 1, nil
	case ')':
		return token{kind: tokRParen, off: i}, i + 1, nil
	case ':':
		return token{kind: tokColon, off: i}, i + 1, nil
	case '+':
		return token{kind: tokPlus, off: i}, i + 1, nil
	case '-':
		return token{kind: tokMinus, off: i}, i + 1, nil
	case '!':
		return token{kind: tokNot, off: i}, i + 1, nil
	case '^', '~':
		kind := tokCaret
		if c == '~' {
			kind = tokTilde
		}
		j := i + 1
		for j < len(q) && isNumberByte(q[j]) {
			j++
		}
		if kind == tokCaret && j == i+1 {
			return token{}, 0, apperr.Syntax(i, "'^' must be followed by a number")
		}
		return token{kind: kind, off: i, text: q[i+1 : j]}, j, nil
	case '"':
		return lexPhrase(q, i)
	}
	if strings.HasPrefix(q[i:], "&&") {
		return token{kind: tokAnd, off: i}, i + 2, nil
	}
	if strings.HasPrefix(q[i:], "||") {
		return token{kind: tokOr, off: i}, i + 2, nil
	}
	return lexTerm(q, i)
}

func lexPhrase(q string, open int) (token, int, error) {
	var sb strings.Builder
	for i := open + 1; i < len(q); i++ {
		switch q[i] {
		case '\\':
			if i+1 >= len(q) {
				return token{}, 0, apperr.Syntax(i, "dangling escape character")
			}
			i++
			sb.WriteByte(q[i])
		case '"':
			return token{kind: tokPhrase, off: open, text: sb.String()}, i + 1, nil
		default:
			sb.WriteByte(q[i])
		}
	}
	return token{}, 0, apperr.Syntax(open, "unterminated phrase")
}

func lexTerm(q string, start int) (token, int, error) {
	var text, raw strings.Builder
	wildcard := false
	i := start
	for i < len(q) && !isTermBreak(q[i]) {
		switch c := q[i]; c {
		case '\\':
			if i+1 >= len(q) {
				return token{}, 0, apperr.Syntax(i, "dangling escape character")
			}
			text.WriteByte(q[i+1])
			raw.WriteString(q[i : i+2])
			i += 2
			continue
		case '*', '?':
			wildcard = true
		}
		text.WriteByte(q[i])
		raw.WriteByte(q[i])
		i++
	}
	tok := token{kind: tokTerm, off: start, text: text.String(), raw: raw.String(), wildcard: wildcard}
	switch tok.raw {
	case "AND":
		tok.kind = tokAnd
	case "OR":
		tok.kind = tokOr
	case "NOT":
		tok.kind = tokNot
	}
	return tok, i, nil
}
