package suggest

import (
	"cmp"
	"slices"
	"sync"
	"unicode/utf8"
)

// TermDictionary gives the suggester access to an index's terms.
type TermDictionary interface {
	FieldTerms(field string) ([]string, error)
	DocFreq(field string, term []byte) (int, error)
}

// Suggestion is a dictionary term close to a misspelled one.
type Suggestion struct {
	Term      string  `json:"term"`
	Distance  int     `json:"distance"`
	Frequency int     `json:"frequency"`
	Score     float64 `json:"score"`
}

// Correction lists the suggestions for one term missing from the dictionary.
type Correction struct {
	Term        string       `json:"term"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Suggester finds corrections for terms of one field. The field's term list
// is loaded once, on first use.
type Suggester struct {
	dict           TermDictionary
	field          string
	maxDistance    int
	minFreq        int
	maxSuggestions int

	once  sync.Once
	terms [][]rune
	names []string
	err   error
}

// Option configures a Suggester.
type Option func(*Suggester)

// WithMaxDistance sets the largest edit distance a suggestion may have.
func WithMaxDistance(d int) Option {
	return func(s *Suggester) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMinFrequency ignores dictionary terms in fewer than f documents.
func WithMinFrequency(f int) Option {
	return func(s *Suggester) {
		if f >= 0 {
			s.minFreq = f
		}
	}
}

// WithMaxSuggestions caps the suggestions returned per term.
func WithMaxSuggestions(n int) Option {
	return func(s *Suggester) {
		if n > 0 {
			s.maxSuggestions = n
		}
	}
}

// New returns a suggester over field of dict.
func New(dict TermDictionary, field string, opts ...Option) *Suggester {
	s := &Suggester{
		dict:           dict,
		field:          field,
		maxDistance:    2,
		minFreq:        1,
		maxSuggestions: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Suggester) load() error {
	s.once.Do(func() {
		s.names, s.err = s.dict.FieldTerms(s.field)
		s.terms = make([][]rune, len(s.names))
		for i, t := range s.names {
			s.terms[i] = []rune(t)
		}
	})
	return s.err
}

// Suggest returns dictionary terms within the distance limit of term, best
// first: fewer edits, then more documents, then bytewise.
func (s *Suggester) Suggest(term string) ([]Suggestion, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	q := []rune(term)
	var out []Suggestion
	for i, cand := range s.terms {
		if s.names[i] == term {
			continue
		}
		d, ok := WithinDistance(q, cand, s.maxDistance)
		if !ok {
			continue
		}
		freq, err := s.dict.DocFreq(s.field, []byte(s.names[i]))
		if err != nil {
			return nil, err
		}
		if freq < s.minFreq {
			continue
		}
		out = append(out, Suggestion{
			Term:      s.names[i],
			Distance:  d,
			Frequency: freq,
			Score:     float64(freq) / float64(d+1),
		})
	}
	slices.SortFunc(out, func(a, b Suggestion) int {
		return cmp.Or(
			cmp.Compare(a.Distance, b.Distance),
			cmp.Compare(b.Frequency, a.Frequency),
			cmp.Compare(a.Term, b.Term),
		)
	})
	if len(out) > s.maxSuggestions {
		out = out[:s.maxSuggestions]
	}
	return out, nil
}

// Check returns a correction for every term that is not in the dictionary
// and has at least one suggestion.
func (s *Suggester) Check(terms []string) ([]Correction, error) {
	var out []Correction
	seen := make(map[string]bool)
	for _, t := range terms {
		if seen[t] || utf8.RuneCountInString(t) < 2 {
			continue
		}
		seen[t] = true
		df, err := s.dict.DocFreq(s.field, []byte(t))
		if err != nil {
			return nil, err
		}
		if df > 0 {
			continue
		}
		sugs, err := s.Suggest(t)
		if err != nil {
			return nil, err
		}
		if len(sugs) > 0 {
			out = append(out, Correction{Term: t, Suggestions: sugs})
		}
	}
	return out, nil
}
