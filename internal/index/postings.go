package index

import (
	"encoding/binary"
	"math"
)

// NoMoreDocs is the doc id of an exhausted iterator.
const NoMoreDocs int32 = math.MaxInt32

// skipInterval is the number of docs between skip entries.
const skipInterval = 16

// Postings layout per term:
//
//	uvarint numSkips
//	numSkips × (uvarint lastDoc, uvarint byteOffset)
//	df × (uvarint docDelta, uvarint tf, uvarint posLen, posLen bytes of position deltas)
//
// Skip entry k points at doc index (k+1)*skipInterval; lastDoc is the doc before
// it and byteOffset is relative to the start of the doc records.
type postingsEncoder struct {
	data  []byte
	skips []byte
	pos   []byte
	tmp   [binary.MaxVarintLen64]byte
}

func (e *postingsEncoder) encode(list []posting) []byte {
	e.data, e.skips, e.pos = e.data[:0], e.skips[:0], e.pos[:0]
	numSkips := 0
	prev := int32(-1)
	for i, p := range list {
		if i > 0 && i%skipInterval == 0 {
			e.skips = binary.AppendUvarint(e.skips, uint64(prev))
			e.skips = binary.AppendUvarint(e.skips, uint64(len(e.data)))
			numSkips++
		}
		e.data = binary.AppendUvarint(e.data, uint64(p.doc-prev))
		e.data = binary.AppendUvarint(e.data, uint64(len(p.positions)))
		e.pos = e.pos[:0]
		last := int32(0)
		for _, pos := range p.positions {
			e.pos = binary.AppendUvarint(e.pos, uint64(pos-last))
			last = pos
		}
		e.data = binary.AppendUvarint(e.data, uint64(len(e.pos)))
		e.data = append(e.data, e.pos...)
		prev = p.doc
	}
	n := binary.PutUvarint(e.tmp[:], uint64(numSkips))
	out := make([]byte, 0, n+len(e.skips)+len(e.data))
	out = append(out, e.tmp[:n]...)
	out = append(out, e.skips...)
	return append(out, e.data...)
}

type skipEntry struct {
	lastDoc int32
	offset  int
}

// PostingsIterator walks one term's postings in increasing doc order.
// It starts before the first doc; call Next or Advance first.
type PostingsIterator struct {
	d       decoder
	start   int
	df      int
	read    int
	doc     int32
	freq    int
	posOff  int
	posLen  int
	skips   []skipEntry
	skipIdx int
}

func newPostingsIterator(name string, data []byte, off uint64, df int) *PostingsIterator {
	it := &PostingsIterator{d: decoder{name: name, b: data, off: int(off)}, df: df, doc: -1}
	if off > uint64(len(data)) {
		it.d.fail("postings offset")
		it.doc = NoMoreDocs
		return it
	}
	n := it.d.uvarint()
	if n > uint64(df) {
		it.d.fail("skip count")
	}
	for i := uint64(0); i < n && it.d.err == nil; i++ {
		last := it.d.uvarint()
		o := it.d.uvarint()
		it.skips = append(it.skips, skipEntry{lastDoc: int32(last), offset: int(o)})
	}
	it.start = it.d.off
	if it.d.err != nil {
		it.doc = NoMoreDocs
	}
	return it
}

// Doc returns the current doc, -1 before the first call to Next, or NoMoreDocs.
func (it *PostingsIterator) Doc() int32 { return it.doc }

// Freq returns the term frequency in the current doc.
func (it *PostingsIterator) Freq() int { return it.freq }

// DocFreq returns the number of docs in the list.
func (it *PostingsIterator) DocFreq() int { return it.df }

// Err reports a decoding failure. The iterator is exhausted after one.
func (it *PostingsIterator) Err() error { return it.d.err }

// Next moves to the next doc.
func (it *PostingsIterator) Next() int32 {
	if it.doc == NoMoreDocs {
		return NoMoreDocs
	}
	if it.read >= it.df {
		it.doc = NoMoreDocs
		return it.doc
	}
	prev := it.doc
	delta := it.d.uvarint()
	it.freq = int(it.d.uvarint())
	it.posLen = int(it.d.uvarint())
	it.posOff = it.d.off
	it.d.next(it.posLen)
	if it.d.err != nil || delta == 0 {
		it.d.fail("doc delta")
		it.doc = NoMoreDocs
		return it.doc
	}
	it.doc = prev + int32(delta)
	it.read++
	return it.doc
}

// Advance moves to the first doc >= target, using the skip table to jump
// over whole blocks.
func (it *PostingsIterator) Advance(target int32) int32 {
	if it.doc >= target {
		return it.doc
	}
	for it.skipIdx < len(it.skips) && it.skips[it.skipIdx].lastDoc < target {
		s := it.skips[it.skipIdx]
		blockStart := (it.skipIdx + 1) * skipInterval
		it.skipIdx++
		if blockStart <= it.read {
			continue
		}
		it.d.off = it.start + s.offset
		it.doc = s.lastDoc
		it.read = blockStart
	}
	for it.doc < target {
		it.Next()
	}
	return it.doc
}

// Positions appends the positions of the current doc to dst.
func (it *PostingsIterator) Positions(dst []int32) []int32 {
	if it.doc < 0 || it.doc == NoMoreDocs {
		return dst
	}
	b := it.d.b[it.posOff : it.posOff+it.posLen]
	last := int32(0)
	for i := 0; i < it.freq; i++ {
		v, n := binary.Uvarint(b)
		if n <= 0 {
			it.d.fail("position")
			return dst
		}
		b = b[n:]
		last += int32(v)
		dst = append(dst, last)
	}
	return dst
}
