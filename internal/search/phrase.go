package search

import (
	"container/heap"
	"math"
	"slices"

	"github.com/hyperjump/kensaku/internal/index"
)

// phrasePostings is one term of a phrase: its postings and its offset
// within the phrase.
type phrasePostings struct {
	it     *index.PostingsIterator
	offset int32
	group  int // index of the first phrase term equal to this one
	buf    []int32
}

// PhraseScorer matches docs containing all terms of a phrase at the right
// relative positions, within slop moves when slop > 0.
type PhraseScorer struct {
	terms  []*phrasePostings
	slop   int
	seg    *index.SegmentReader
	field  string
	weight float64 // (Σ idf)² · boost
	sim    Similarity
	doc    int32
	freq   float64

	// sloppy matching state
	repeats bool // some term occurs more than once in the phrase
	pps     []*phrasePos
	queue   ppQueue
	end     int32
}

func (s *PhraseScorer) scorer()          {}
func (s *PhraseScorer) Kind() ScorerKind { return KindPhrase }
func (s *PhraseScorer) DocID() int32     { return s.doc }

func (s *PhraseScorer) Err() error {
	for _, t := range s.terms {
		if err := t.it.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *PhraseScorer) Score() float64 {
	norm := s.sim.Norm(s.seg.FieldLength(int(s.doc), s.field))
	return s.sim.Tf(s.freq) * s.weight * norm
}

func (s *PhraseScorer) Next() int32 {
	if s.doc == NoMoreDocs {
		return s.doc
	}
	return s.advanceFrom(s.doc + 1)
}

func (s *PhraseScorer) Advance(target int32) int32 {
	if s.doc >= target {
		return s.doc
	}
	return s.advanceFrom(target)
}

// advanceFrom finds the first doc >= target containing every term, then
// checks positions, moving on until a doc has a nonzero phrase frequency.
func (s *PhraseScorer) advanceFrom(target int32) int32 {
	for {
		doc := s.conjunction(target)
		if doc == NoMoreDocs {
			s.doc = doc
			return doc
		}
		if s.slop == 0 {
			s.freq = s.exactFreq()
		} else {
			s.freq = s.sloppyFreq()
		}
		if s.freq > 0 {
			s.doc = doc
			return doc
		}
		target = doc + 1
	}
}

func (s *PhraseScorer) conjunction(target int32) int32 {
	doc := s.terms[0].it.Advance(target)
	for doc != NoMoreDocs {
		agreed := true
		for _, t := range s.terms[1:] {
			if d := t.it.Advance(doc); d > doc {
				doc = s.terms[0].it.Advance(d)
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

func (s *PhraseScorer) loadPositions() {
	for _, t := range s.terms {
		t.buf = t.it.Positions(t.buf[:0])
	}
}

// exactFreq counts the start positions where every term sits at its offset.
func (s *PhraseScorer) exactFreq() float64 {
	s.loadPositions()
	first := s.terms[0]
	n := 0
	for _, p := range first.buf {
		start := p - first.offset
		match := true
		for _, t := range s.terms[1:] {
			if _, found := slices.BinarySearch(t.buf, start+t.offset); !found {
				match = false
				break
			}
		}
		if match {
			n++
		}
	}
	return float64(n)
}

// sloppyFreq walks the minimal windows covering one occurrence of every term
// and credits each window within slop by SloppyFreq of its span. Repeated
// phrase terms never share a document position.
func (s *PhraseScorer) sloppyFreq() float64 {
	s.loadPositions()
	s.pps = s.pps[:0]
	s.end = math.MinInt32
	for _, t := range s.terms {
		pp := &phrasePos{pos: t.buf[0] - t.offset, offset: t.offset, group: t.group, rest: t.buf[1:]}
		s.end = max(s.end, pp.pos)
		s.pps = append(s.pps, pp)
	}
	s.queue = append(s.queue[:0], s.pps...)
	if s.repeats {
		for _, pp := range s.pps {
			if !s.resolveRepeats(pp) {
				return 0
			}
		}
	}
	heap.Init(&s.queue)

	freq := 0.0
	pp := heap.Pop(&s.queue).(*phrasePos)
	span := s.end - pp.pos
	for s.advance(pp) {
		if pp.pos > s.queue[0].pos {
			if int(span) <= s.slop {
				freq += s.sim.SloppyFreq(int(span))
			}
			heap.Push(&s.queue, pp)
			pp = heap.Pop(&s.queue).(*phrasePos)
			span = s.end - pp.pos
		} else {
			span = min(span, s.end-pp.pos)
		}
	}
	if int(span) <= s.slop {
		freq += s.sim.SloppyFreq(int(span))
	}
	return freq
}

// advance moves pp to its next occurrence, reporting false once any term
// is exhausted.
func (s *PhraseScorer) advance(pp *phrasePos) bool {
	if !pp.nextPosition() {
		return false
	}
	s.end = max(s.end, pp.pos)
	return !s.repeats || s.resolveRepeats(pp)
}

// resolveRepeats moves apart phrase terms of the same group that sit on
// the same document position, advancing the one later in the phrase.
func (s *PhraseScorer) resolveRepeats(pp *phrasePos) bool {
	moved := false
	for {
		other := s.collision(pp)
		if other == nil {
			break
		}
		if other.offset > pp.offset {
			pp = other
		}
		if !pp.nextPosition() {
			return false
		}
		s.end = max(s.end, pp.pos)
		moved = true
	}
	if moved {
		heap.Init(&s.queue)
	}
	return true
}

func (s *PhraseScorer) collision(pp *phrasePos) *phrasePos {
	for _, o := range s.pps {
		if o != pp && o.group == pp.group && o.pos+o.offset == pp.pos+pp.offset {
			return o
		}
	}
	return nil
}

type phrasePos struct {
	pos    int32 // position minus offset
	offset int32
	group  int
	rest   []int32
}

func (p *phrasePos) nextPosition() bool {
	if len(p.rest) == 0 {
		return false
	}
	p.pos = p.rest[0] - p.offset
	p.rest = p.rest[1:]
	return true
}

type ppQueue []*phrasePos

func (q ppQueue) Len() int { return len(q) }
func (q ppQueue) Less(i, j int) bool {
	if q[i].pos != q[j].pos {
		return q[i].pos < q[j].pos
	}
	return q[i].offset < q[j].offset
}
func (q ppQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *ppQueue) Push(x any)   { *q = append(*q, x.(*phrasePos)) }
func (q *ppQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
