package search

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hyperjump/kensaku/internal/index"
)

// NoMoreDocs is the doc id of an exhausted scorer.
const NoMoreDocs = index.NoMoreDocs

// ScorerKind tags the members of the closed scorer family.
type ScorerKind int

const (
	KindTerm ScorerKind = iota
	KindPhrase
	KindBoolean
	KindMatchAll
)

func (k ScorerKind) String() string {
	switch k {
	case KindTerm:
		return "term"
	case KindPhrase:
		return "phrase"
	case KindBoolean:
		return "boolean"
	case KindMatchAll:
		return "match_all"
	}
	return "unknown"
}

// Scorer is a document-at-a-time cursor over the matches of a query in one
// segment. DocID is -1 before the first Next or Advance. Advance moves to the
// first match >= target and never moves backwards.
type Scorer interface {
	DocID() int32
	Next() int32
	Advance(target int32) int32
	Score() float64
	Err() error
	Kind() ScorerKind
	scorer()
}

// TermScorer scores the postings of one term.
type TermScorer struct {
	it     *index.PostingsIterator
	seg    *index.SegmentReader
	field  string
	weight float64 // idf² · boost
	sim    Similarity
}

func (s *TermScorer) scorer()                    {}
func (s *TermScorer) Kind() ScorerKind           { return KindTerm }
func (s *TermScorer) DocID() int32               { return s.it.Doc() }
func (s *TermScorer) Next() int32                { return s.it.Next() }
func (s *TermScorer) Advance(target int32) int32 { return s.it.Advance(target) }
func (s *TermScorer) Err() error                 { return s.it.Err() }

func (s *TermScorer) Score() float64 {
	norm := s.sim.Norm(s.seg.FieldLength(int(s.it.Doc()), s.field))
	return s.sim.Tf(float64(s.it.Freq())) * s.weight * norm
}

// MatchAllScorer matches every doc of a segment, or only the docs of a
// bitmap, with a constant score.
type MatchAllScorer struct {
	maxDoc int32
	docs   roaring.IntPeekable // nil matches all docs
	doc    int32
	score  float64
}

func newMatchAllScorer(maxDoc int, docs *roaring.Bitmap, score float64) *MatchAllScorer {
	s := &MatchAllScorer{maxDoc: int32(maxDoc), doc: -1, score: score}
	if docs != nil {
		s.docs = docs.Iterator()
	}
	return s
}

func (s *MatchAllScorer) scorer()          {}
func (s *MatchAllScorer) Kind() ScorerKind { return KindMatchAll }
func (s *MatchAllScorer) DocID() int32     { return s.doc }
func (s *MatchAllScorer) Score() float64   { return s.score }
func (s *MatchAllScorer) Err() error       { return nil }

func (s *MatchAllScorer) Next() int32 { return s.Advance(s.doc + 1) }

func (s *MatchAllScorer) Advance(target int32) int32 {
	if s.doc == NoMoreDocs || target <= s.doc {
		return s.doc
	}
	if s.docs == nil {
		s.doc = target
	} else {
		s.docs.AdvanceIfNeeded(uint32(target))
		if s.docs.HasNext() {
			s.doc = int32(s.docs.Next())
		} else {
			s.doc = NoMoreDocs
		}
	}
	if s.doc >= s.maxDoc {
		s.doc = NoMoreDocs
	}
	return s.doc
}
