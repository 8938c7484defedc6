package index

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/hyperjump/kensaku/internal/apperr"
	"golang.org/x/sync/errgroup"
)

// Leaf is a segment of a snapshot and the global id of its first doc.
type Leaf struct {
	Segment *SegmentReader
	DocBase int
}

// Snapshot is an immutable view of one commit. It is safe for concurrent use
// and keeps its segment files mapped until the last reference is released.
type Snapshot struct {
	dir      string
	manifest *Manifest
	leaves   []Leaf
	numDocs  int
	refs     atomic.Int32
}

// OpenReader opens every segment named by the committed manifest of dir.
// The returned snapshot holds one reference.
func OpenReader(dir string) (*Snapshot, error) {
	m, err := ReadManifest(DefaultFS, dir)
	if err != nil {
		return nil, err
	}
	segs := make([]*SegmentReader, len(m.Segments))
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, info := range m.Segments {
		g.Go(func() error {
			s, err := openSegment(dir, info.Name)
			if err != nil {
				return err
			}
			segs[i] = s
			if s.NumDocs() != info.Docs {
				return apperr.Corruptf("open reader", "%s has %d docs, manifest says %d", info.Name, s.NumDocs(), info.Docs)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, s := range segs {
			if s != nil {
				s.Close()
			}
		}
		return nil, fmt.Errorf("open reader %s: %w", dir, err)
	}

	snap := &Snapshot{dir: dir, manifest: m}
	for _, s := range segs {
		snap.leaves = append(snap.leaves, Leaf{Segment: s, DocBase: snap.numDocs})
		snap.numDocs += s.NumDocs()
	}
	snap.refs.Store(1)
	return snap, nil
}

// IncRef takes another reference. It fails once the snapshot is released.
func (s *Snapshot) IncRef() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// DecRef drops a reference; the last one unmaps the segment files.
func (s *Snapshot) DecRef() error {
	if s.refs.Add(-1) != 0 {
		return nil
	}
	var errs []error
	for _, l := range s.leaves {
		errs = append(errs, l.Segment.Close())
	}
	return errors.Join(errs...)
}

// Close drops the reference returned by OpenReader.
func (s *Snapshot) Close() error { return s.DecRef() }

// Dir returns the index directory.
func (s *Snapshot) Dir() string { return s.dir }

// Generation returns the commit generation this snapshot was opened at.
func (s *Snapshot) Generation() uint64 { return s.manifest.Generation }

// Manifest returns a copy of the manifest the snapshot was opened from.
func (s *Snapshot) Manifest() Manifest {
	m := *s.manifest
	m.Segments = append([]SegmentInfo(nil), m.Segments...)
	return m
}

// NumDocs returns the total doc count across segments.
func (s *Snapshot) NumDocs() int { return s.numDocs }

// Leaves returns the segments in manifest order with their doc bases.
func (s *Snapshot) Leaves() []Leaf { return s.leaves }

// DocFreq sums the document frequency of a term over all segments.
func (s *Snapshot) DocFreq(field string, term []byte) (int, error) {
	n := 0
	for _, l := range s.leaves {
		ti, ok, err := l.Segment.TermInfo(field, term)
		if err != nil {
			return 0, err
		}
		if ok {
			n += ti.DocFreq
		}
	}
	return n, nil
}

// TotalTermFreq sums the occurrences of a term over all segments.
func (s *Snapshot) TotalTermFreq(field string, term []byte) (int64, error) {
	var n int64
	for _, l := range s.leaves {
		ti, ok, err := l.Segment.TermInfo(field, term)
		if err != nil {
			return 0, err
		}
		if ok {
			n += ti.TotalTermFreq
		}
	}
	return n, nil
}

func (s *Snapshot) leaf(doc int) (Leaf, int, error) {
	if doc < 0 || doc >= s.numDocs {
		return Leaf{}, 0, fmt.Errorf("doc %d out of range [0,%d)", doc, s.numDocs)
	}
	i := sort.Search(len(s.leaves), func(i int) bool {
		return s.leaves[i].DocBase+s.leaves[i].Segment.NumDocs() > doc
	})
	l := s.leaves[i]
	return l, doc - l.DocBase, nil
}

// Document returns the stored fields of a global doc id.
func (s *Snapshot) Document(doc int) (Document, error) {
	l, local, err := s.leaf(doc)
	if err != nil {
		return Document{}, err
	}
	return l.Segment.Document(local)
}

// FieldLength returns the indexed term count of field in a global doc.
func (s *Snapshot) FieldLength(doc int, field string) int {
	l, local, err := s.leaf(doc)
	if err != nil {
		return 0
	}
	return l.Segment.FieldLength(local, field)
}

// FieldTerms returns the distinct terms of field across all segments in
// increasing order.
func (s *Snapshot) FieldTerms(field string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, l := range s.leaves {
		err := l.Segment.VisitTerms(field, func(term []byte, _ TermInfo) bool {
			seen[string(term)] = struct{}{}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}
