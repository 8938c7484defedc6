package query

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kensaku/internal/analysis"
	"github.com/hyperjump/kensaku/internal/apperr"
)

// DefaultSimilarity is used by a bare '~' after a term.
const DefaultSimilarity = 0.5

// Parser turns query strings into query trees. Term and phrase text is run
// through Analyzer, the same analyzer used at index time.
type Parser struct {
	DefaultField string
	Analyzer     analysis.Analyzer
}

// NewParser returns a parser over defaultField.
func NewParser(defaultField string, a analysis.Analyzer) *Parser {
	return &Parser{DefaultField: defaultField, Analyzer: a}
}

// Parse parses q. Syntax errors carry the byte offset where parsing failed.
// Clauses whose text analyzes to no terms are dropped; a query left with no
// clauses matches nothing.
func (p *Parser) Parse(q string) (Query, error) {
	toks, err := lex(q)
	if err != nil {
		return nil, err
	}
	if toks[0].kind == tokEOF {
		return nil, apperr.Syntax(0, "empty query")
	}
	s := &parseState{p: p, toks: toks}
	op, err := s.parseOr(p.DefaultField)
	if err != nil {
		return nil, err
	}
	if t := s.peek(); t.kind != tokEOF {
		return nil, apperr.Syntax(t.off, "unexpected %s", t.kind)
	}
	if res := op.query(); res != nil {
		return res, nil
	}
	return &BooleanQuery{Boost: 1}, nil
}

type modifier int

const (
	modNone modifier = iota
	modMust
	modMustNot
)

// operand is a parsed clause and the prefix modifier in front of it.
// q is nil when the clause was dropped.
type operand struct {
	mod modifier
	q   Query
}

func (o operand) occur(def Occur) Occur {
	switch o.mod {
	case modMust:
		return Must
	case modMustNot:
		return MustNot
	}
	return def
}

// query resolves a lone operand; a modifier needs a boolean wrapper to keep
// its meaning.
func (o operand) query() Query {
	if o.q == nil || o.mod == modNone {
		return o.q
	}
	return &BooleanQuery{Boost: 1, Clauses: []Clause{{Occur: o.occur(Should), Query: o.q}}}
}

type parseState struct {
	p    *Parser
	toks []token
	pos  int
}

func (s *parseState) peek() token { return s.toks[s.pos] }

func (s *parseState) next() token {
	t := s.toks[s.pos]
	if t.kind != tokEOF {
		s.pos++
	}
	return t
}

func startsClause(k tokenKind) bool {
	switch k {
	case tokTerm, tokPhrase, tokLParen, tokPlus, tokMinus, tokNot:
		return true
	}
	return false
}

// combine folds operands into one; def is the occur of unmodified operands.
func combine(ops []operand, def Occur) operand {
	live := ops[:0]
	for _, op := range ops {
		if op.q != nil {
			live = append(live, op)
		}
	}
	switch len(live) {
	case 0:
		return operand{}
	case 1:
		return live[0]
	}
	bq := &BooleanQuery{Boost: 1}
	for _, op := range live {
		bq.Clauses = append(bq.Clauses, Clause{Occur: op.occur(def), Query: op.q})
	}
	return operand{q: bq}
}

// parseOr handles explicit OR and juxtaposition, the loosest binding.
func (s *parseState) parseOr(field string) (operand, error) {
	var ops []operand
	for {
		op, err := s.parseAnd(field)
		if err != nil {
			return operand{}, err
		}
		ops = append(ops, op)
		switch t := s.peek(); {
		case t.kind == tokOr:
			s.next()
		case startsClause(t.kind):
		default:
			return combine(ops, Should), nil
		}
	}
}

func (s *parseState) parseAnd(field string) (operand, error) {
	var ops []operand
	for {
		op, err := s.parseNot(field)
		if err != nil {
			return operand{}, err
		}
		ops = append(ops, op)
		if s.peek().kind != tokAnd {
			return combine(ops, Must), nil
		}
		s.next()
	}
}

// parseNot handles binary NOT: "A NOT B" keeps A and excludes B.
func (s *parseState) parseNot(field string) (operand, error) {
	first, err := s.parseUnary(field)
	if err != nil {
		return operand{}, err
	}
	ops := []operand{first}
	for s.peek().kind == tokNot {
		s.next()
		op, err := s.parsePrimary(field)
		if err != nil {
			return operand{}, err
		}
		op.mod = modMustNot
		ops = append(ops, op)
	}
	if len(ops) == 1 {
		return first, nil
	}
	return combine(ops, Must), nil
}

func (s *parseState) parseUnary(field string) (operand, error) {
	mod := modNone
	switch s.peek().kind {
	case tokPlus:
		mod = modMust
	case tokMinus, tokNot:
		mod = modMustNot
	}
	if mod != modNone {
		s.next()
	}
	op, err := s.parsePrimary(field)
	if err != nil {
		return operand{}, err
	}
	if mod != modNone {
		op = operand{mod: mod, q: op.query()}
	}
	return op, nil
}

// parsePrimary parses an optionally fielded atom or group and its boost.
func (s *parseState) parsePrimary(field string) (operand, error) {
	t := s.next()
	var (
		op  operand
		err error
	)
	switch t.kind {
	case tokTerm:
		if s.peek().kind != tokColon {
			op.q, err = s.termAtom(t, field)
			break
		}
		s.next()
		op, err = s.fielded(t)
	case tokPhrase:
		op.q, err = s.phraseAtom(t, field)
	case tokLParen:
		op, err = s.group(t, field)
	default:
		return operand{}, apperr.Syntax(t.off, "expected a clause, found %s", t.kind)
	}
	if err != nil {
		return operand{}, err
	}
	if s.peek().kind == tokCaret {
		c := s.next()
		b, perr := strconv.ParseFloat(c.text, 64)
		if perr != nil {
			return operand{}, apperr.Syntax(c.off, "invalid boost %q", c.text)
		}
		if op.q != nil {
			op = operand{q: op.query()}
			scaleBoost(op.q, b)
		}
	}
	return op, nil
}

// fielded parses what follows "F:".
func (s *parseState) fielded(name token) (operand, error) {
	field := name.text
	t := s.peek()
	switch t.kind {
	case tokLParen:
		s.next()
		return s.group(t, field)
	case tokPhrase:
		s.next()
		q, err := s.phraseAtom(t, field)
		return operand{q: q}, err
	case tokTerm:
		s.next()
		if t.raw == "*" {
			if name.raw == "*" {
				return operand{q: &MatchAllQuery{Boost: 1}}, nil
			}
			return operand{q: &FieldExistsQuery{Field: field, Boost: 1}}, nil
		}
		q, err := s.termAtom(t, field)
		return operand{q: q}, err
	}
	return operand{}, apperr.Syntax(t.off, "expected a term, phrase or group after %q, found %s", field+":", t.kind)
}

func (s *parseState) group(open token, field string) (operand, error) {
	if s.peek().kind == tokRParen {
		return operand{}, apperr.Syntax(s.peek().off, "empty group")
	}
	op, err := s.parseOr(field)
	if err != nil {
		return operand{}, err
	}
	if t := s.next(); t.kind != tokRParen {
		return operand{}, apperr.Syntax(t.off, "expected ')' to close '(' at offset %d, found %s", open.off, t.kind)
	}
	return operand{q: op.query()}, nil
}

func (s *parseState) analyze(field, text string) []string {
	var terms []string
	for tok := range s.p.Analyzer.Tokens(field, text) {
		terms = append(terms, tok.Term)
	}
	return terms
}

// disjunction returns the single query or a SHOULD boolean over qs.
func disjunction(qs []Query) Query {
	switch len(qs) {
	case 0:
		return nil
	case 1:
		return qs[0]
	}
	bq := &BooleanQuery{Boost: 1}
	for _, q := range qs {
		bq.Clauses = append(bq.Clauses, Clause{Occur: Should, Query: q})
	}
	return bq
}

func (s *parseState) termAtom(t token, field string) (Query, error) {
	if t.wildcard {
		if s.peek().kind == tokTilde {
			return nil, apperr.Syntax(s.peek().off, "fuzzy operator on wildcard term %q", t.raw)
		}
		return &WildcardQuery{Field: field, Pattern: strings.ToLower(t.raw), Boost: 1}, nil
	}
	if s.peek().kind == tokTilde {
		return s.fuzzyAtom(t, s.next(), field)
	}
	var qs []Query
	for _, term := range s.analyze(field, t.text) {
		qs = append(qs, &TermQuery{Field: field, Term: term, Boost: 1})
	}
	return disjunction(qs), nil
}

func (s *parseState) fuzzyAtom(t, tilde token, field string) (Query, error) {
	sim, edits := DefaultSimilarity, -1
	if tilde.text != "" {
		v, err := strconv.ParseFloat(tilde.text, 64)
		if err != nil {
			return nil, apperr.Syntax(tilde.off, "invalid fuzzy value %q", tilde.text)
		}
		if v >= 1 {
			sim, edits = 0, int(v)
		} else {
			sim = v
		}
	}
	var qs []Query
	for _, term := range s.analyze(field, t.text) {
		n := edits
		if n < 0 {
			n = MaxEditsForSimilarity(sim, utf8.RuneCountInString(term))
		}
		qs = append(qs, &FuzzyQuery{Field: field, Term: term, MaxEdits: n, Similarity: sim, Boost: 1})
	}
	return disjunction(qs), nil
}

// MaxEditsForSimilarity converts a similarity in [0,1) for a term of n
// characters into an edit budget: max(1, ceil((1-s)·n)).
func MaxEditsForSimilarity(s float64, n int) int {
	return max(1, int(math.Ceil((1-s)*float64(n)-1e-9)))
}

func (s *parseState) phraseAtom(t token, field string) (Query, error) {
	slop := 0
	if s.peek().kind == tokTilde {
		tilde := s.next()
		v, err := strconv.ParseFloat(tilde.text, 64)
		if err != nil || v < 0 {
			return nil, apperr.Syntax(tilde.off, "phrase slop must be a number, found %q", tilde.text)
		}
		slop = int(v)
	}
	var (
		terms     []string
		positions []int
	)
	for tok := range s.p.Analyzer.Tokens(field, t.text) {
		terms = append(terms, tok.Term)
		positions = append(positions, tok.Position)
	}
	switch len(terms) {
	case 0:
		return nil, nil
	case 1:
		return &TermQuery{Field: field, Term: terms[0], Boost: 1}, nil
	}
	return &PhraseQuery{Field: field, Terms: terms, Positions: positions, Slop: slop, Boost: 1}, nil
}
