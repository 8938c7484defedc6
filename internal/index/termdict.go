package index

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/blevesearch/vellum"
	"github.com/hyperjump/kensaku/internal/apperr"
)

// TermInfo locates a term's postings and carries its segment statistics.
type TermInfo struct {
	DocFreq       int
	TotalTermFreq int64
	offset        uint64
}

// Term info table entry: df u32, ttf u64, postings offset u64.
const termInfoSize = 20

func appendTermInfo(b []byte, df int, ttf int64, off uint64) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(df))
	b = binary.LittleEndian.AppendUint64(b, uint64(ttf))
	return binary.LittleEndian.AppendUint64(b, off)
}

// dictWriter writes the .tdict file. Each field gets a vellum FST mapping
// term to ordinal and a fixed-width info table indexed by ordinal; a field
// directory and its offset close the file.
type dictWriter struct {
	w     *fileWriter
	dir   []dictEntry
	fst   bytes.Buffer
	b     *vellum.Builder
	infos []byte
	field string
	count int
}

type dictEntry struct {
	field    string
	fstOff   uint64
	fstLen   uint64
	infoOff  uint64
	numTerms uint64
}

func (d *dictWriter) startField(field string) error {
	d.fst.Reset()
	b, err := vellum.New(&d.fst, nil)
	if err != nil {
		return fmt.Errorf("new fst builder: %w", err)
	}
	d.b, d.field, d.count, d.infos = b, field, 0, d.infos[:0]
	return nil
}

// add must be called in increasing term order.
func (d *dictWriter) add(term string, df int, ttf int64, off uint64) error {
	if err := d.b.Insert([]byte(term), uint64(d.count)); err != nil {
		return fmt.Errorf("insert term %q: %w", term, err)
	}
	d.infos = appendTermInfo(d.infos, df, ttf, off)
	d.count++
	return nil
}

func (d *dictWriter) finishField() error {
	if err := d.b.Close(); err != nil {
		return fmt.Errorf("close fst: %w", err)
	}
	e := dictEntry{field: d.field, fstOff: uint64(d.w.n), fstLen: uint64(d.fst.Len()), numTerms: uint64(d.count)}
	if _, err := d.w.Write(d.fst.Bytes()); err != nil {
		return err
	}
	e.infoOff = uint64(d.w.n)
	if _, err := d.w.Write(d.infos); err != nil {
		return err
	}
	d.dir = append(d.dir, e)
	return nil
}

func (d *dictWriter) finish() error {
	dirOff := uint64(d.w.n)
	if err := d.w.uvarint(uint64(len(d.dir))); err != nil {
		return err
	}
	for _, e := range d.dir {
		if err := d.w.bytes([]byte(e.field)); err != nil {
			return err
		}
		for _, v := range []uint64{e.fstOff, e.fstLen, e.infoOff, e.numTerms} {
			if err := d.w.uvarint(v); err != nil {
				return err
			}
		}
	}
	if err := d.w.u64(dirOff); err != nil {
		return err
	}
	return d.w.finish()
}

type fieldDict struct {
	fst      *vellum.FST
	infos    []byte
	numTerms int
}

func (fd *fieldDict) info(ord uint64) TermInfo {
	b := fd.infos[ord*termInfoSize:]
	return TermInfo{
		DocFreq:       int(binary.LittleEndian.Uint32(b)),
		TotalTermFreq: int64(binary.LittleEndian.Uint64(b[4:])),
		offset:        binary.LittleEndian.Uint64(b[12:]),
	}
}

func (fd *fieldDict) lookup(term []byte) (TermInfo, bool, error) {
	ord, ok, err := fd.fst.Get(term)
	if err != nil || !ok {
		return TermInfo{}, false, err
	}
	if ord >= uint64(fd.numTerms) {
		return TermInfo{}, false, apperr.Corruptf("lookup term", "ordinal %d out of range", ord)
	}
	return fd.info(ord), true, nil
}

// visit calls fn for each term accepted by aut (all terms when aut is nil)
// within [start, end), in increasing order, until fn returns false.
func (fd *fieldDict) visit(aut vellum.Automaton, start, end []byte, fn func(term []byte, ti TermInfo) bool) error {
	var (
		it  *vellum.FSTIterator
		err error
	)
	if aut == nil {
		it, err = fd.fst.Iterator(start, end)
	} else {
		it, err = fd.fst.Search(aut, start, end)
	}
	for err == nil {
		term, ord := it.Current()
		if ord >= uint64(fd.numTerms) {
			return apperr.Corruptf("iterate terms", "ordinal %d out of range", ord)
		}
		if !fn(term, fd.info(ord)) {
			return nil
		}
		err = it.Next()
	}
	if errors.Is(err, vellum.ErrIteratorDone) {
		return nil
	}
	return fmt.Errorf("iterate terms: %w", err)
}

func loadTermDict(name string, body []byte) (map[string]*fieldDict, error) {
	const op = "load term dictionary"
	if len(body) < headerSize+8 {
		return nil, apperr.Corruptf(op, "%s: missing directory", name)
	}
	dirOff := binary.LittleEndian.Uint64(body[len(body)-8:])
	if dirOff < headerSize || dirOff > uint64(len(body)-8) {
		return nil, apperr.Corruptf(op, "%s: directory offset %d out of range", name, dirOff)
	}
	d := decoder{name: name, b: body[:len(body)-8], off: int(dirOff)}
	n := d.uvarint()
	dicts := make(map[string]*fieldDict, n)
	for i := uint64(0); i < n && d.err == nil; i++ {
		field := string(d.bytes())
		fstOff, fstLen, infoOff, numTerms := d.uvarint(), d.uvarint(), d.uvarint(), d.uvarint()
		if d.err != nil {
			break
		}
		if fstOff+fstLen > dirOff || infoOff+numTerms*termInfoSize > dirOff {
			return nil, apperr.Corruptf(op, "%s: field %q out of range", name, field)
		}
		fst, err := vellum.Load(body[fstOff : fstOff+fstLen])
		if err != nil {
			return nil, apperr.Corruptf(op, "%s: field %q: %v", name, field, err)
		}
		dicts[field] = &fieldDict{
			fst:      fst,
			infos:    body[infoOff : infoOff+numTerms*termInfoSize],
			numTerms: int(numTerms),
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return dicts, nil
}
