package index

import (
	"encoding/binary"

	"github.com/hyperjump/kensaku/internal/apperr"
	"github.com/pierrec/lz4/v4"
)

// storedWriter appends one record per doc:
//
//	uvarint rawLen, uvarint compLen (0 = raw), payload
//
// The raw record is uvarint numFields then (uvarint field, bytes value) per
// field. After the records: numDocs × u64 record offsets, then u64 index
// offset and u64 numDocs.
type storedWriter struct {
	w       *fileWriter
	offsets []uint64
	raw     []byte
	comp    []byte
	lz      lz4.Compressor
}

func (s *storedWriter) add(values []storedValue, fieldNum []int) error {
	s.raw = binary.AppendUvarint(s.raw[:0], uint64(len(values)))
	for _, v := range values {
		s.raw = binary.AppendUvarint(s.raw, uint64(fieldNum[v.field]))
		s.raw = binary.AppendUvarint(s.raw, uint64(len(v.value)))
		s.raw = append(s.raw, v.value...)
	}
	s.offsets = append(s.offsets, uint64(s.w.n))

	payload, compLen := s.raw, 0
	if bound := lz4.CompressBlockBound(len(s.raw)); cap(s.comp) < bound {
		s.comp = make([]byte, bound)
	}
	s.comp = s.comp[:cap(s.comp)]
	if n, err := s.lz.CompressBlock(s.raw, s.comp); err == nil && n > 0 && n < len(s.raw) {
		payload, compLen = s.comp[:n], n
	}
	if err := s.w.uvarint(uint64(len(s.raw))); err != nil {
		return err
	}
	if err := s.w.uvarint(uint64(compLen)); err != nil {
		return err
	}
	_, err := s.w.Write(payload)
	return err
}

func (s *storedWriter) finish() error {
	indexOff := uint64(s.w.n)
	for _, off := range s.offsets {
		if err := s.w.u64(off); err != nil {
			return err
		}
	}
	if err := s.w.u64(indexOff); err != nil {
		return err
	}
	if err := s.w.u64(uint64(len(s.offsets))); err != nil {
		return err
	}
	return s.w.finish()
}

type storedReader struct {
	name    string
	body    []byte
	index   []byte
	numDocs int
}

func loadStored(name string, body []byte, numDocs int) (*storedReader, error) {
	const op = "load stored fields"
	if len(body) < headerSize+16 {
		return nil, apperr.Corruptf(op, "%s: missing index", name)
	}
	tail := body[len(body)-16:]
	indexOff := binary.LittleEndian.Uint64(tail)
	n := binary.LittleEndian.Uint64(tail[8:])
	if n != uint64(numDocs) {
		return nil, apperr.Corruptf(op, "%s: %d docs, segment header says %d", name, n, numDocs)
	}
	end := uint64(len(body) - 16)
	if indexOff < headerSize || indexOff > end || end-indexOff != n*8 {
		return nil, apperr.Corruptf(op, "%s: index offset %d out of range", name, indexOff)
	}
	return &storedReader{name: name, body: body[:indexOff], index: body[indexOff:end], numDocs: numDocs}, nil
}

// document decodes the stored fields of doc using the segment schema.
func (s *storedReader) document(doc int, schema []FieldInfo) (Document, error) {
	const op = "read stored fields"
	off := binary.LittleEndian.Uint64(s.index[doc*8:])
	if off < headerSize || off >= uint64(len(s.body)) {
		return Document{}, apperr.Corruptf(op, "%s: doc %d offset %d out of range", s.name, doc, off)
	}
	d := decoder{name: s.name, b: s.body, off: int(off)}
	rawLen := d.uvarint()
	compLen := d.uvarint()
	if d.err != nil {
		return Document{}, d.err
	}
	var raw []byte
	if compLen == 0 {
		raw = d.next(int(rawLen))
	} else {
		src := d.next(int(compLen))
		if d.err != nil {
			return Document{}, d.err
		}
		raw = make([]byte, rawLen)
		n, err := lz4.UncompressBlock(src, raw)
		if err != nil || uint64(n) != rawLen {
			return Document{}, apperr.Corruptf(op, "%s: doc %d: decompress failed", s.name, doc)
		}
	}
	if d.err != nil {
		return Document{}, d.err
	}

	rd := decoder{name: s.name, b: raw}
	count := rd.uvarint()
	var out Document
	for i := uint64(0); i < count && rd.err == nil; i++ {
		num := rd.uvarint()
		value := rd.bytes()
		if rd.err != nil {
			break
		}
		if num >= uint64(len(schema)) {
			return Document{}, apperr.Corruptf(op, "%s: doc %d: unknown field %d", s.name, doc, num)
		}
		out.Add(schema[num].Name, string(value), schema[num].Type)
	}
	if rd.err != nil {
		return Document{}, rd.err
	}
	return out, nil
}
