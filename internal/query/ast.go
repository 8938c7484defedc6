// Package query parses the search syntax into a query tree.
package query

import (
	"strconv"
	"strings"
)

// Query is a node of a parsed query tree. The set of node types is closed.
type Query interface {
	String() string
	isQuery()
}

// Occur says how a boolean clause takes part in matching.
type Occur int

const (
	Should Occur = iota
	Must
	MustNot
)

func (o Occur) String() string {
	switch o {
	case Must:
		return "MUST"
	case MustNot:
		return "MUST_NOT"
	default:
		return "SHOULD"
	}
}

func (o Occur) prefix() string {
	switch o {
	case Must:
		return "+"
	case MustNot:
		return "-"
	default:
		return ""
	}
}

// TermQuery matches docs containing Term in Field.
type TermQuery struct {
	Field string
	Term  string
	Boost float64
}

// PhraseQuery matches Terms at Positions relative to each other, allowing
// Slop extra moves.
type PhraseQuery struct {
	Field     string
	Terms     []string
	Positions []int
	Slop      int
	Boost     float64
}

// WildcardQuery matches terms against Pattern, where an unescaped '*' is any
// run and '?' exactly one character. A backslash escapes the next byte.
type WildcardQuery struct {
	Field   string
	Pattern string
	Boost   float64
}

// FuzzyQuery matches terms within MaxEdits edits of Term. Similarity is the
// value it was derived from, or 0 when the edit count was given directly.
type FuzzyQuery struct {
	Field      string
	Term       string
	MaxEdits   int
	Similarity float64
	Boost      float64
}

// Clause is one child of a BooleanQuery.
type Clause struct {
	Occur Occur
	Query Query
}

// BooleanQuery combines clauses. DisableCoord turns off the coordination
// factor, as for expanded multi-term queries.
type BooleanQuery struct {
	Clauses      []Clause
	Boost        float64
	DisableCoord bool
}

// MatchAllQuery matches every document.
type MatchAllQuery struct {
	Boost float64
}

// FieldExistsQuery matches documents with at least one term in Field.
type FieldExistsQuery struct {
	Field string
	Boost float64
}

func (*TermQuery) isQuery()        {}
func (*PhraseQuery) isQuery()      {}
func (*WildcardQuery) isQuery()    {}
func (*FuzzyQuery) isQuery()       {}
func (*BooleanQuery) isQuery()     {}
func (*MatchAllQuery) isQuery()    {}
func (*FieldExistsQuery) isQuery() {}

// Boost returns the boost of q.
func Boost(q Query) float64 {
	switch q := q.(type) {
	case *TermQuery:
		return q.Boost
	case *PhraseQuery:
		return q.Boost
	case *WildcardQuery:
		return q.Boost
	case *FuzzyQuery:
		return q.Boost
	case *BooleanQuery:
		return q.Boost
	case *MatchAllQuery:
		return q.Boost
	case *FieldExistsQuery:
		return q.Boost
	}
	return 1
}

// scaleBoost multiplies the boost of q by b.
func scaleBoost(q Query, b float64) {
	switch q := q.(type) {
	case *TermQuery:
		q.Boost *= b
	case *PhraseQuery:
		q.Boost *= b
	case *WildcardQuery:
		q.Boost *= b
	case *FuzzyQuery:
		q.Boost *= b
	case *BooleanQuery:
		q.Boost *= b
	case *MatchAllQuery:
		q.Boost *= b
	case *FieldExistsQuery:
		q.Boost *= b
	}
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func withBoost(s string, b float64) string {
	if b == 1 {
		return s
	}
	return s + "^" + formatFloat(b)
}

func escapeTerm(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isTermBreak(c) || c == '\\' || c == '*' || c == '?' || (i == 0 && (c == '+' || c == '-' || c == '!')) {
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func (q *TermQuery) String() string {
	return withBoost(q.Field+":"+escapeTerm(q.Term), q.Boost)
}

func (q *PhraseQuery) String() string {
	s := q.Field + `:"` + strings.Join(q.Terms, " ") + `"`
	if q.Slop != 0 {
		s += "~" + strconv.Itoa(q.Slop)
	}
	return withBoost(s, q.Boost)
}

func (q *WildcardQuery) String() string {
	return withBoost(q.Field+":"+q.Pattern, q.Boost)
}

func (q *FuzzyQuery) String() string {
	s := q.Field + ":" + escapeTerm(q.Term) + "~"
	if q.Similarity > 0 {
		s += formatFloat(q.Similarity)
	} else {
		s += strconv.Itoa(q.MaxEdits)
	}
	return withBoost(s, q.Boost)
}

func (q *BooleanQuery) String() string {
	parts := make([]string, len(q.Clauses))
	for i, c := range q.Clauses {
		s := c.Query.String()
		if _, nested := c.Query.(*BooleanQuery); nested && Boost(c.Query) == 1 {
			s = "(" + s + ")"
		}
		parts[i] = c.Occur.prefix() + s
	}
	s := strings.Join(parts, " ")
	if q.Boost != 1 {
		return "(" + s + ")^" + formatFloat(q.Boost)
	}
	return s
}

func (q *MatchAllQuery) String() string { return withBoost("*:*", q.Boost) }

func (q *FieldExistsQuery) String() string { return withBoost(q.Field+":*", q.Boost) }
