package search

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/blevesearch/vellum"
	"github.com/blevesearch/vellum/levenshtein"
	vregexp "github.com/blevesearch/vellum/regexp"
	"github.com/hyperjump/kensaku/internal/index"
	"github.com/hyperjump/kensaku/internal/query"
	"github.com/hyperjump/kensaku/internal/suggest"
)

// DefaultMaxExpansions bounds the terms a wildcard or fuzzy query expands to.
const DefaultMaxExpansions = 1024

// maxAutomatonEdits is the largest distance built as a Levenshtein automaton;
// larger budgets scan the dictionary.
const maxAutomatonEdits = 2

var (
	levOnce     [maxAutomatonEdits + 1]sync.Once
	levBuilders [maxAutomatonEdits + 1]*levenshtein.LevenshteinAutomatonBuilder
	levErrs     [maxAutomatonEdits + 1]error
)

func levenshteinBuilder(d int) (*levenshtein.LevenshteinAutomatonBuilder, error) {
	levOnce[d].Do(func() {
		levBuilders[d], levErrs[d] = levenshtein.NewLevenshteinAutomatonBuilder(uint8(d), false)
	})
	return levBuilders[d], levErrs[d]
}

// rewriter expands multi-term queries against the terms of a snapshot.
type rewriter struct {
	snap          *index.Snapshot
	maxExpansions int
}

// rewrite returns q with every wildcard and fuzzy node replaced by a
// coord-less disjunction of the matching terms.
func (r *rewriter) rewrite(q query.Query) (query.Query, error) {
	switch q := q.(type) {
	case *query.WildcardQuery:
		return r.wildcard(q)
	case *query.FuzzyQuery:
		return r.fuzzy(q)
	case *query.BooleanQuery:
		out := &query.BooleanQuery{Boost: q.Boost, DisableCoord: q.DisableCoord}
		for _, c := range q.Clauses {
			sub, err := r.rewrite(c.Query)
			if err != nil {
				return nil, err
			}
			out.Clauses = append(out.Clauses, query.Clause{Occur: c.Occur, Query: sub})
		}
		return out, nil
	}
	return q, nil
}

type expansion struct {
	term string
	dist int
}

func expanded(field string, boost float64, terms []expansion, fuzzy bool) *query.BooleanQuery {
	bq := &query.BooleanQuery{Boost: boost, DisableCoord: true}
	for _, e := range terms {
		tb := 1.0
		if fuzzy {
			tb = 1 / float64(e.dist+1)
		}
		bq.Clauses = append(bq.Clauses, query.Clause{
			Occur: query.Should,
			Query: &query.TermQuery{Field: field, Term: e.term, Boost: tb},
		})
	}
	return bq
}

func (r *rewriter) wildcard(q *query.WildcardQuery) (query.Query, error) {
	expr, prefix := wildcardRegexp(q.Pattern)
	aut, err := vregexp.New(expr)
	if err != nil {
		return nil, fmt.Errorf("wildcard %q: %w", q.Pattern, err)
	}
	start, end := prefixRange(prefix)
	seen := make(map[string]struct{})
	for _, l := range r.snap.Leaves() {
		err := l.Segment.SearchTerms(q.Field, aut, start, end, func(term []byte, _ index.TermInfo) bool {
			seen[string(term)] = struct{}{}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	terms := make([]expansion, 0, len(seen))
	for t := range seen {
		terms = append(terms, expansion{term: t})
	}
	slices.SortFunc(terms, func(a, b expansion) int { return strings.Compare(a.term, b.term) })
	if len(terms) > r.maxExpansions {
		terms = terms[:r.maxExpansions]
	}
	return expanded(q.Field, q.Boost, terms, false), nil
}

// wildcardRegexp translates a wildcard pattern into a regexp for the term
// automaton and returns the literal prefix before the first wildcard.
func wildcardRegexp(pattern string) (expr, prefix string) {
	var (
		re      strings.Builder
		lit     strings.Builder
		literal = true
	)
	flush := func() {
		re.WriteString(regexp.QuoteMeta(lit.String()))
		lit.Reset()
	}
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern):
			i++
			lit.WriteByte(pattern[i])
			if literal {
				prefix += pattern[i : i+1]
			}
		case c == '*' || c == '?':
			flush()
			literal = false
			if c == '*' {
				re.WriteString("(?s:.)*")
			} else {
				re.WriteString("(?s:.)")
			}
		default:
			lit.WriteByte(c)
			if literal {
				prefix += pattern[i : i+1]
			}
		}
	}
	flush()
	return re.String(), prefix
}

// prefixRange returns the term range [start, end) holding every term that
// starts with prefix. Empty bounds are open.
func prefixRange(prefix string) (start, end []byte) {
	if prefix == "" {
		return nil, nil
	}
	start = []byte(prefix)
	end = []byte(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return start, end[:i+1]
		}
	}
	return start, nil
}

func (r *rewriter) fuzzy(q *query.FuzzyQuery) (query.Query, error) {
	target := []rune(q.Term)
	dist := make(map[string]int)
	var aut vellum.Automaton
	if q.MaxEdits <= maxAutomatonEdits {
		b, err := levenshteinBuilder(q.MaxEdits)
		if err != nil {
			return nil, fmt.Errorf("fuzzy %q: %w", q.Term, err)
		}
		dfa, err := b.BuildDfa(q.Term, uint8(q.MaxEdits))
		if err != nil {
			return nil, fmt.Errorf("fuzzy %q: %w", q.Term, err)
		}
		aut = dfa
	}
	for _, l := range r.snap.Leaves() {
		err := l.Segment.SearchTerms(q.Field, aut, nil, nil, func(term []byte, _ index.TermInfo) bool {
			t := string(term)
			if _, ok := dist[t]; ok {
				return true
			}
			if d, ok := suggest.WithinDistance(target, []rune(t), q.MaxEdits); ok {
				dist[t] = d
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	terms := make([]expansion, 0, len(dist))
	for t, d := range dist {
		terms = append(terms, expansion{term: t, dist: d})
	}
	slices.SortFunc(terms, func(a, b expansion) int {
		return cmp.Or(cmp.Compare(a.dist, b.dist), strings.Compare(a.term, b.term))
	})
	if len(terms) > r.maxExpansions {
		terms = terms[:r.maxExpansions]
	}
	return expanded(q.Field, q.Boost, terms, true), nil
}
