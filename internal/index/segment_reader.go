package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/blevesearch/mmap-go"
	"github.com/blevesearch/vellum"
	"github.com/hyperjump/kensaku/internal/apperr"
)

type mappedFile struct {
	f    *os.File
	data mmap.MMap
}

func mapFile(path string) (*mappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() == 0 {
		return &mappedFile{f: f}, nil
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &mappedFile{f: f, data: data}, nil
}

func (m *mappedFile) close() error {
	var err error
	if m.data != nil {
		err = m.data.Unmap()
	}
	return errors.Join(err, m.f.Close())
}

// SegmentReader is a read-only view of one committed segment. It is safe for
// concurrent use.
type SegmentReader struct {
	name   string
	header *segmentHeader
	dicts  map[string]*fieldDict
	post   []byte
	stored *storedReader
	files  []*mappedFile
}

// openSegment maps and verifies the four files of a segment. On error every
// file mapped so far is released.
func openSegment(dir, name string) (_ *SegmentReader, err error) {
	s := &SegmentReader{name: name}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	body := make(map[string][]byte, len(segmentExts))
	magics := map[string]uint32{
		extNorms:    magicNorms,
		extStored:   magicStored,
		extTermDict: magicTermDict,
		extPostings: magicPostings,
	}
	for _, ext := range segmentExts {
		file := name + ext
		m, err := mapFile(filepath.Join(dir, file))
		if err != nil {
			return nil, apperr.IO("open segment "+name, err)
		}
		s.files = append(s.files, m)
		b, err := verifyFile(file, m.data, magics[ext])
		if err != nil {
			return nil, err
		}
		body[ext] = b
	}

	if s.header, err = loadNorms(name+extNorms, body[extNorms]); err != nil {
		return nil, err
	}
	if s.stored, err = loadStored(name+extStored, body[extStored], s.header.numDocs); err != nil {
		return nil, err
	}
	if s.dicts, err = loadTermDict(name+extTermDict, body[extTermDict]); err != nil {
		return nil, err
	}
	s.post = body[extPostings]
	return s, nil
}

// Close unmaps the segment files.
func (s *SegmentReader) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, d := range s.dicts {
		errs = append(errs, d.fst.Close())
	}
	for _, m := range s.files {
		errs = append(errs, m.close())
	}
	s.files, s.dicts = nil, nil
	return errors.Join(errs...)
}

// Name returns the segment name, e.g. "seg-1".
func (s *SegmentReader) Name() string { return s.name }

// NumDocs returns the number of docs in the segment.
func (s *SegmentReader) NumDocs() int { return s.header.numDocs }

// Fields returns the segment schema ordered by name.
func (s *SegmentReader) Fields() []FieldInfo { return slices.Clone(s.header.schema) }

// TermInfo looks up a term. Unknown fields and terms report false.
func (s *SegmentReader) TermInfo(field string, term []byte) (TermInfo, bool, error) {
	d := s.dicts[field]
	if d == nil {
		return TermInfo{}, false, nil
	}
	return d.lookup(term)
}

// Postings returns an iterator over the postings described by ti.
func (s *SegmentReader) Postings(ti TermInfo) *PostingsIterator {
	return newPostingsIterator(s.name+extPostings, s.post, ti.offset, ti.DocFreq)
}

// VisitTerms calls fn for every term of field in increasing order until fn
// returns false. The term slice is only valid during the call.
func (s *SegmentReader) VisitTerms(field string, fn func(term []byte, ti TermInfo) bool) error {
	return s.SearchTerms(field, nil, nil, nil, fn)
}

// SearchTerms is VisitTerms restricted to terms accepted by aut within
// [start, end). A nil automaton accepts everything; nil bounds are open.
func (s *SegmentReader) SearchTerms(field string, aut vellum.Automaton, start, end []byte, fn func(term []byte, ti TermInfo) bool) error {
	d := s.dicts[field]
	if d == nil {
		return nil
	}
	if err := d.visit(aut, start, end, fn); err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return nil
}

// NumTerms returns the number of distinct terms of field.
func (s *SegmentReader) NumTerms(field string) int {
	if d := s.dicts[field]; d != nil {
		return d.numTerms
	}
	return 0
}

// Document returns the stored fields of doc.
func (s *SegmentReader) Document(doc int) (Document, error) {
	if doc < 0 || doc >= s.header.numDocs {
		return Document{}, fmt.Errorf("%s: doc %d out of range [0,%d)", s.name, doc, s.header.numDocs)
	}
	return s.stored.document(doc, s.header.schema)
}

// FieldLength returns the number of terms indexed for field in doc.
func (s *SegmentReader) FieldLength(doc int, field string) int {
	n := s.header.norms[field]
	if n == nil || doc < 0 || doc >= s.header.numDocs {
		return 0
	}
	return n.length(doc)
}

// DocsWithField returns the docs with at least one term in field. The bitmap
// is shared and must not be modified.
func (s *SegmentReader) DocsWithField(field string) *roaring.Bitmap {
	if n := s.header.norms[field]; n != nil {
		return n.docs
	}
	return roaring.New()
}
