package query

import (
	"testing"

	"github.com/hyperjump/kensaku/internal/analysis"
	"github.com/hyperjump/kensaku/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser() *Parser {
	return NewParser("CONTENT", analysis.NewSimple())
}

func TestParse_String(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"term", "Obama", "CONTENT:obama"},
		{"implicit or", "Obama Hillary", "CONTENT:obama CONTENT:hillary"},
		{"explicit or", "obama OR hillary", "CONTENT:obama CONTENT:hillary"},
		{"fielded and", "FIRST_LINE:Obama AND Hillary", "+FIRST_LINE:obama +CONTENT:hillary"},
		{"and binds tighter than or", "a OR b AND c", "CONTENT:a (+CONTENT:b +CONTENT:c)"},
		{"and before or", "a AND b OR c", "(+CONTENT:a +CONTENT:b) CONTENT:c"},
		{"binary not", "a NOT b", "+CONTENT:a -CONTENT:b"},
		{"not binds tighter than and", "a AND b NOT c", "+CONTENT:a +(+CONTENT:b -CONTENT:c)"},
		{"modifiers", "+a -b c", "+CONTENT:a -CONTENT:b CONTENT:c"},
		{"symbol aliases", "a && b || !c", "(+CONTENT:a +CONTENT:b) -CONTENT:c"},
		{"leading not", "NOT a", "-CONTENT:a"},
		{"phrase", `"Barack Obama"`, `CONTENT:"barack obama"`},
		{"phrase with slop", `"Obama Barack"~5`, `CONTENT:"obama barack"~5`},
		{"single term phrase", `"Obama"`, "CONTENT:obama"},
		{"wildcard star", "Ob*ma", "CONTENT:ob*ma"},
		{"wildcard question", "ob?MA", "CONTENT:ob?ma"},
		{"fuzzy similarity", "Obama~0.4", "CONTENT:obama~0.4"},
		{"fuzzy default", "obama~", "CONTENT:obama~0.5"},
		{"fuzzy edits", "obama~2", "CONTENT:obama~2"},
		{"boosts", "Obama^10 Hillary^0.1", "CONTENT:obama^10 CONTENT:hillary^0.1"},
		{"group boost", "(a b)^2", "(CONTENT:a CONTENT:b)^2"},
		{"fielded group", "FIRST_LINE:(a b)", "FIRST_LINE:a FIRST_LINE:b"},
		{"fielded phrase", `FIRST_LINE:"barack obama"`, `FIRST_LINE:"barack obama"`},
		{"field applies to one atom", "FIRST_LINE:a b", "FIRST_LINE:a CONTENT:b"},
		{"match all", "*:*", "*:*"},
		{"field exists", "PATH:*", "PATH:*"},
		{"multi token term", "about-policy", "CONTENT:about CONTENT:policy"},
		{"dropped clause", "42 obama", "CONTENT:obama"},
		{"nothing left", "42", ""},
		{"escaped colon", `a\:b`, "CONTENT:a CONTENT:b"},
		{"escaped star is literal", `ob\*ma`, "CONTENT:ob CONTENT:ma"},
		{"escaped wildcard keeps escape", `o\*b*`, `CONTENT:o\*b*`},
		{"nested groups", "((a))", "CONTENT:a"},
		{"must group", "+(a b) -c", "+(CONTENT:a CONTENT:b) -CONTENT:c"},
		{"unknown field", "NOPE:x", "NOPE:x"},
	}
	p := newTestParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := p.Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.String())
		})
	}
}

func TestParse_Structure(t *testing.T) {
	p := newTestParser()

	q, err := p.Parse(`"Barack Obama"~5`)
	require.NoError(t, err)
	pq, ok := q.(*PhraseQuery)
	require.True(t, ok)
	assert.Equal(t, []string{"barack", "obama"}, pq.Terms)
	assert.Equal(t, []int{0, 1}, pq.Positions)
	assert.Equal(t, 5, pq.Slop)

	q, err = p.Parse("Obama~0.4")
	require.NoError(t, err)
	fq, ok := q.(*FuzzyQuery)
	require.True(t, ok)
	assert.Equal(t, "obama", fq.Term)
	assert.Equal(t, 3, fq.MaxEdits)

	q, err = p.Parse("+a -b c")
	require.NoError(t, err)
	bq, ok := q.(*BooleanQuery)
	require.True(t, ok)
	require.Len(t, bq.Clauses, 3)
	assert.Equal(t, []Occur{Must, MustNot, Should},
		[]Occur{bq.Clauses[0].Occur, bq.Clauses[1].Occur, bq.Clauses[2].Occur})

	q, err = p.Parse("Obama^10")
	require.NoError(t, err)
	assert.Equal(t, 10.0, Boost(q))

	q, err = p.Parse("42")
	require.NoError(t, err)
	bq, ok = q.(*BooleanQuery)
	require.True(t, ok)
	assert.Empty(t, bq.Clauses)
}

func TestMaxEditsForSimilarity(t *testing.T) {
	tests := []struct {
		sim  float64
		n    int
		want int
	}{
		{0.4, 5, 3},
		{0.5, 5, 3},
		{0.5, 4, 2},
		{0.8, 5, 1},
		{0.9, 3, 1},
		{0, 4, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaxEditsForSimilarity(tt.sim, tt.n), "s=%v n=%d", tt.sim, tt.n)
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		offset int
	}{
		{"empty", "", 0},
		{"blank", "   ", 0},
		{"unterminated phrase", `obama "barack`, 6},
		{"dangling and", "a AND", 5},
		{"unclosed group", "(a b", 4},
		{"stray paren", "a b)", 3},
		{"boost without number", "a^", 1},
		{"bad boost", "a^1.2.3", 1},
		{"empty group", "()", 1},
		{"dangling escape", `ab\`, 2},
		{"field without value", "FIRST_LINE:", 11},
		{"fuzzy wildcard", "ob*~", 3},
		{"bad slop", `"a b"~`, 5},
		{"double modifier", "+-a", 1},
		{"leading and", "AND a", 0},
	}
	p := newTestParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.in)
			require.Error(t, err)
			assert.Equal(t, "QuerySyntax", apperr.Kind(err))
			assert.Equal(t, tt.offset, apperr.Offset(err))
		})
	}
}
