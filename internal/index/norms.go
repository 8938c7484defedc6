package index

import (
	"encoding/binary"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hyperjump/kensaku/internal/apperr"
)

// The .norm file is the segment header: doc count and schema, then for every
// indexed field (schema order) numDocs u32 field lengths and a roaring
// bitmap of the docs with at least one term.
//
//	uvarint numDocs
//	uvarint numFields, numFields × (bytes name, byte flags)
//	per indexed field: numDocs × u32 length, bytes bitmap

func writeNorms(w *fileWriter, numDocs int, schema []FieldInfo, fields map[string]*fieldBuffer) error {
	if err := w.uvarint(uint64(numDocs)); err != nil {
		return err
	}
	if err := w.uvarint(uint64(len(schema))); err != nil {
		return err
	}
	for _, f := range schema {
		if err := w.bytes([]byte(f.Name)); err != nil {
			return err
		}
		if _, err := w.Write([]byte{f.Type.flags()}); err != nil {
			return err
		}
	}
	lengths := make([]byte, 4*numDocs)
	for _, f := range schema {
		if !f.Type.Indexed {
			continue
		}
		clear(lengths)
		docs := roaring.New()
		if fb := fields[f.Name]; fb != nil {
			for doc, n := range fb.lengths {
				binary.LittleEndian.PutUint32(lengths[doc*4:], n)
			}
			docs = fb.docs
		}
		if _, err := w.Write(lengths); err != nil {
			return err
		}
		docs.RunOptimize()
		bm, err := docs.ToBytes()
		if err != nil {
			return fmt.Errorf("encode docs with field %s: %w", f.Name, err)
		}
		if err := w.bytes(bm); err != nil {
			return err
		}
	}
	return w.finish()
}

type fieldNorms struct {
	lengths []byte
	docs    *roaring.Bitmap
}

type segmentHeader struct {
	numDocs int
	schema  []FieldInfo
	byName  map[string]int
	norms   map[string]*fieldNorms
}

func loadNorms(name string, body []byte) (*segmentHeader, error) {
	d := decoder{name: name, b: body, off: headerSize}
	numDocs := d.uvarint()
	numFields := d.uvarint()
	if d.err == nil && (numDocs > uint64(len(body)) || numFields > uint64(len(body))) {
		return nil, apperr.Corruptf("load norms", "%s: implausible header", name)
	}
	h := &segmentHeader{
		numDocs: int(numDocs),
		byName:  make(map[string]int, numFields),
		norms:   make(map[string]*fieldNorms),
	}
	for i := uint64(0); i < numFields && d.err == nil; i++ {
		fname := string(d.bytes())
		flags := d.next(1)
		if d.err != nil {
			break
		}
		h.byName[fname] = len(h.schema)
		h.schema = append(h.schema, FieldInfo{Name: fname, Type: fieldTypeFromFlags(flags[0])})
	}
	for _, f := range h.schema {
		if d.err != nil {
			break
		}
		if !f.Type.Indexed {
			continue
		}
		lengths := d.next(4 * h.numDocs)
		raw := d.bytes()
		if d.err != nil {
			break
		}
		docs := roaring.New()
		if err := docs.UnmarshalBinary(raw); err != nil {
			return nil, apperr.Corruptf("load norms", "%s: field %q bitmap: %v", name, f.Name, err)
		}
		h.norms[f.Name] = &fieldNorms{lengths: lengths, docs: docs}
	}
	if d.err != nil {
		return nil, d.err
	}
	return h, nil
}

func (n *fieldNorms) length(doc int) int {
	return int(binary.LittleEndian.Uint32(n.lengths[doc*4:]))
}
