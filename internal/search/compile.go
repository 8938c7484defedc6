package search

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/hyperjump/kensaku/internal/index"
	"github.com/hyperjump/kensaku/internal/query"
)

// weight is a query compiled against a snapshot's global statistics. It
// produces one scorer per segment; a nil scorer means no matches there.
type weight interface {
	scorer(seg *index.SegmentReader) (Scorer, error)
}

type compiler struct {
	snap *index.Snapshot
	sim  Similarity
}

func (c *compiler) idf(field, term string) (float64, error) {
	df, err := c.snap.DocFreq(field, []byte(term))
	if err != nil {
		return 0, err
	}
	return c.sim.Idf(df, c.snap.NumDocs()), nil
}

// compile lowers a rewritten query into a weight tree.
func (c *compiler) compile(q query.Query) (weight, error) {
	switch q := q.(type) {
	case *query.TermQuery:
		idf, err := c.idf(q.Field, q.Term)
		if err != nil {
			return nil, err
		}
		return &termWeight{field: q.Field, term: []byte(q.Term), weight: idf * idf * q.Boost, sim: c.sim}, nil

	case *query.PhraseQuery:
		w := &phraseWeight{field: q.Field, slop: q.Slop, sim: c.sim}
		sum := 0.0
		for i, t := range q.Terms {
			idf, err := c.idf(q.Field, t)
			if err != nil {
				return nil, err
			}
			sum += idf
			w.terms = append(w.terms, []byte(t))
			w.offsets = append(w.offsets, int32(q.Positions[i]))
		}
		w.weight = sum * sum * q.Boost
		return w, nil

	case *query.BooleanQuery:
		w := &booleanWeight{boost: q.Boost, disableCoord: q.DisableCoord, sim: c.sim}
		for _, cl := range q.Clauses {
			sub, err := c.compile(cl.Query)
			if err != nil {
				return nil, err
			}
			switch cl.Occur {
			case query.Must:
				w.required = append(w.required, sub)
			case query.MustNot:
				w.prohibited = append(w.prohibited, sub)
			default:
				w.optional = append(w.optional, sub)
			}
		}
		return w, nil

	case *query.MatchAllQuery:
		return &matchAllWeight{boost: q.Boost}, nil

	case *query.FieldExistsQuery:
		return &matchAllWeight{field: q.Field, boost: q.Boost}, nil
	}
	return nil, fmt.Errorf("compile: unexpected query node %T", q)
}

type termWeight struct {
	field  string
	term   []byte
	weight float64
	sim    Similarity
}

func (w *termWeight) scorer(seg *index.SegmentReader) (Scorer, error) {
	ti, ok, err := seg.TermInfo(w.field, w.term)
	if err != nil || !ok {
		return nil, err
	}
	return &TermScorer{it: seg.Postings(ti), seg: seg, field: w.field, weight: w.weight, sim: w.sim}, nil
}

type phraseWeight struct {
	field   string
	terms   [][]byte
	offsets []int32
	slop    int
	weight  float64
	sim     Similarity
}

func (w *phraseWeight) scorer(seg *index.SegmentReader) (Scorer, error) {
	s := &PhraseScorer{slop: w.slop, seg: seg, field: w.field, weight: w.weight, sim: w.sim, doc: -1}
	for i, t := range w.terms {
		ti, ok, err := seg.TermInfo(w.field, t)
		if err != nil || !ok {
			return nil, err
		}
		group := slices.IndexFunc(w.terms, func(o []byte) bool { return bytes.Equal(o, t) })
		s.repeats = s.repeats || group != i
		s.terms = append(s.terms, &phrasePostings{it: seg.Postings(ti), offset: w.offsets[i], group: group})
	}
	return s, nil
}

type booleanWeight struct {
	required     []weight
	optional     []weight
	prohibited   []weight
	boost        float64
	disableCoord bool
	sim          Similarity
}

func (w *booleanWeight) coordTable() []float64 {
	maxCoord := len(w.required) + len(w.optional)
	coord := make([]float64, maxCoord+1)
	for i := range coord {
		if w.disableCoord {
			coord[i] = 1
		} else {
			coord[i] = w.sim.Coord(i, maxCoord)
		}
	}
	return coord
}

func (w *booleanWeight) scorer(seg *index.SegmentReader) (Scorer, error) {
	var required, optional, prohibited []Scorer
	for _, sub := range w.required {
		s, err := sub.scorer(seg)
		if err != nil || s == nil {
			return nil, err
		}
		required = append(required, s)
	}
	for _, sub := range w.optional {
		s, err := sub.scorer(seg)
		if err != nil {
			return nil, err
		}
		if s != nil {
			optional = append(optional, s)
		}
	}
	if len(required) == 0 && len(optional) == 0 {
		return nil, nil
	}
	for _, sub := range w.prohibited {
		s, err := sub.scorer(seg)
		if err != nil {
			return nil, err
		}
		if s != nil {
			prohibited = append(prohibited, s)
		}
	}
	return newBooleanScorer(required, optional, prohibited, w.coordTable(), w.boost), nil
}

// matchAllWeight matches every doc, or with a field only the docs holding
// at least one term of it.
type matchAllWeight struct {
	field string
	boost float64
}

func (w *matchAllWeight) scorer(seg *index.SegmentReader) (Scorer, error) {
	if w.field == "" {
		return newMatchAllScorer(seg.NumDocs(), nil, w.boost), nil
	}
	docs := seg.DocsWithField(w.field)
	if docs.IsEmpty() {
		return nil, nil
	}
	return newMatchAllScorer(seg.NumDocs(), docs, w.boost), nil
}
