package search

import (
	"container/heap"
	"errors"
)

// BooleanScorer combines required, optional and prohibited sub-scorers.
// With required scorers the match set is their intersection and optional
// scorers only add score; without, at least one optional scorer must match.
// Prohibited scorers filter matches out.
type BooleanScorer struct {
	required   []Scorer
	optional   []Scorer
	prohibited []Scorer
	coord      []float64 // coord[n] for n matching scoring clauses
	boost      float64
	disj       scorerQueue
	doc        int32
}

func newBooleanScorer(required, optional, prohibited []Scorer, coord []float64, boost float64) *BooleanScorer {
	s := &BooleanScorer{
		required:   required,
		optional:   optional,
		prohibited: prohibited,
		coord:      coord,
		boost:      boost,
		doc:        -1,
	}
	if len(required) == 0 {
		s.disj = append(scorerQueue(nil), optional...)
		heap.Init(&s.disj)
	}
	return s
}

func (s *BooleanScorer) scorer()          {}
func (s *BooleanScorer) Kind() ScorerKind { return KindBoolean }
func (s *BooleanScorer) DocID() int32     { return s.doc }

func (s *BooleanScorer) Err() error {
	var errs []error
	for _, group := range [][]Scorer{s.required, s.optional, s.prohibited} {
		for _, sc := range group {
			if err := sc.Err(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *BooleanScorer) Next() int32 {
	if s.doc == NoMoreDocs {
		return s.doc
	}
	return s.Advance(s.doc + 1)
}

func (s *BooleanScorer) Advance(target int32) int32 {
	if s.doc >= target {
		return s.doc
	}
	for {
		doc := s.candidate(target)
		if doc == NoMoreDocs || !s.excluded(doc) {
			s.doc = doc
			return doc
		}
		target = doc + 1
	}
}

func (s *BooleanScorer) candidate(target int32) int32 {
	if len(s.required) > 0 {
		return s.conjunction(target)
	}
	for len(s.disj) > 0 && s.disj[0].DocID() < target {
		s.disj[0].Advance(target)
		heap.Fix(&s.disj, 0)
	}
	if len(s.disj) == 0 {
		return NoMoreDocs
	}
	return s.disj[0].DocID()
}

func (s *BooleanScorer) conjunction(target int32) int32 {
	lead := s.required[0]
	doc := lead.Advance(target)
	for doc != NoMoreDocs {
		agreed := true
		for _, sc := range s.required[1:] {
			if d := sc.Advance(doc); d > doc {
				doc = lead.Advance(d)
				agreed = false
				break
			}
		}
		if agreed {
			return doc
		}
	}
	return NoMoreDocs
}

func (s *BooleanScorer) excluded(doc int32) bool {
	for _, p := range s.prohibited {
		if p.Advance(doc) == doc {
			return true
		}
	}
	return false
}

func (s *BooleanScorer) Score() float64 {
	sum, n := 0.0, 0
	for _, sc := range s.required {
		sum += sc.Score()
		n++
	}
	if len(s.required) > 0 {
		for _, sc := range s.optional {
			if sc.Advance(s.doc) == s.doc {
				sum += sc.Score()
				n++
			}
		}
	} else {
		for _, sc := range s.disj {
			if sc.DocID() == s.doc {
				sum += sc.Score()
				n++
			}
		}
	}
	return sum * s.coord[n] * s.boost
}

// scorerQueue is a min-heap of scorers by current doc.
type scorerQueue []Scorer

func (q scorerQueue) Len() int           { return len(q) }
func (q scorerQueue) Less(i, j int) bool { return q[i].DocID() < q[j].DocID() }
func (q scorerQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *scorerQueue) Push(x any)        { *q = append(*q, x.(Scorer)) }
func (q *scorerQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
