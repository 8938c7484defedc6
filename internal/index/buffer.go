package index

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hyperjump/kensaku/internal/analysis"
	"github.com/hyperjump/kensaku/internal/apperr"
)

// posting is one document's occurrences of a term. tf is len(positions).
type posting struct {
	doc       int32
	positions []int32
}

type fieldBuffer struct {
	terms   map[string][]posting
	lengths []uint32
	docs    *roaring.Bitmap
}

type storedValue struct {
	field int
	value string
}

// segmentBuffer accumulates the postings of the segment being built.
type segmentBuffer struct {
	schema  []FieldInfo
	byName  map[string]int
	fields  map[string]*fieldBuffer
	stored  [][]storedValue
	numDocs int
	size    int64
}

func newSegmentBuffer() *segmentBuffer {
	return &segmentBuffer{
		byName: make(map[string]int),
		fields: make(map[string]*fieldBuffer),
	}
}

// checkSchema rejects a document whose field flags disagree with fields
// already seen in this segment, or with each other.
func (b *segmentBuffer) checkSchema(doc Document) error {
	seen := make(map[string]FieldType, len(doc.Fields))
	for _, f := range doc.Fields {
		want, ok := seen[f.Name]
		if !ok {
			if i, exists := b.byName[f.Name]; exists {
				want, ok = b.schema[i].Type, true
			}
		}
		if ok && want != f.Type {
			return apperr.Newf(apperr.ErrSchemaMismatch, "add document",
				"field %q is %s, got %s", f.Name, want, f.Type)
		}
		seen[f.Name] = f.Type
	}
	return nil
}

// add buffers doc and returns its id within the segment.
func (b *segmentBuffer) add(doc Document, a analysis.Analyzer) (int, error) {
	if err := b.checkSchema(doc); err != nil {
		return 0, err
	}
	id := int32(b.numDocs)
	var stored []storedValue
	next := make(map[string]int32)

	for _, f := range doc.Fields {
		num, ok := b.byName[f.Name]
		if !ok {
			num = len(b.schema)
			b.byName[f.Name] = num
			b.schema = append(b.schema, FieldInfo{Name: f.Name, Type: f.Type})
		}
		if f.Type.Stored {
			stored = append(stored, storedValue{field: num, value: f.Value})
			b.size += int64(len(f.Value))
		}
		if f.Type.Indexed {
			next[f.Name] = b.invert(f.Name, f.Value, id, next[f.Name], a)
		}
	}
	b.stored = append(b.stored, stored)
	b.numDocs++
	return int(id), nil
}

// invert adds the terms of value starting at position base and returns the
// position after the last term.
func (b *segmentBuffer) invert(field, value string, doc, base int32, a analysis.Analyzer) int32 {
	fb := b.fields[field]
	if fb == nil {
		fb = &fieldBuffer{terms: make(map[string][]posting), docs: roaring.New()}
		b.fields[field] = fb
	}
	pos := base
	for tok := range a.Tokens(field, value) {
		pos = base + int32(tok.Position)
		list := fb.terms[tok.Term]
		if n := len(list); n > 0 && list[n-1].doc == doc {
			list[n-1].positions = append(list[n-1].positions, pos)
		} else {
			list = append(list, posting{doc: doc, positions: []int32{pos}})
			b.size += int64(len(tok.Term)) + 32
		}
		fb.terms[tok.Term] = list
		b.size += 4
		pos++
	}
	n := uint32(pos - base)
	if n == 0 {
		return base
	}
	for len(fb.lengths) <= int(doc) {
		fb.lengths = append(fb.lengths, 0)
	}
	fb.lengths[doc] += n
	fb.docs.Add(uint32(doc))
	return pos
}

// sortedFields returns the schema ordered by field name.
func (b *segmentBuffer) sortedFields() []FieldInfo {
	out := slices.Clone(b.schema)
	slices.SortFunc(out, func(x, y FieldInfo) int {
		switch {
		case x.Name < y.Name:
			return -1
		case x.Name > y.Name:
			return 1
		}
		return 0
	})
	return out
}

// sortedTerms returns the terms of field in bytewise order.
func (fb *fieldBuffer) sortedTerms() []string {
	terms := make([]string, 0, len(fb.terms))
	for t := range fb.terms {
		terms = append(terms, t)
	}
	slices.Sort(terms)
	return terms
}

func (b *segmentBuffer) reset() {
	*b = *newSegmentBuffer()
}
