// Package index implements the on-disk inverted index: segment files, the
// commit manifest, the single writer that produces them and the snapshot
// readers that search them.
package index

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	"github.com/hyperjump/kensaku/internal/analysis"
	"github.com/hyperjump/kensaku/internal/apperr"
	"go.uber.org/zap"
)

// OpenMode selects what happens to an existing index when a writer opens.
type OpenMode int

const (
	// Create replaces any existing index on commit.
	Create OpenMode = iota
	// CreateOrAppend adds new segments to the existing index, if any.
	CreateOrAppend
)

func (m OpenMode) String() string {
	if m == Create {
		return "create"
	}
	return "create_or_append"
}

// DefaultMaxBufferedDocs bounds the docs buffered before an intermediate flush.
const DefaultMaxBufferedDocs = 10000

// Writer builds segments in a directory. Only one Writer may hold a
// directory at a time. A Writer is not safe for concurrent use.
type Writer struct {
	dir         string
	mode        OpenMode
	fs          FileSystem
	analyzer    analysis.Analyzer
	logger      *zap.Logger // optional
	maxBuffered int

	lock    *dirLock
	base    *Manifest // nil when the directory has no index
	next    uint64
	buf     *segmentBuffer
	flushed []SegmentInfo
	added   int
	err     error // sticky after a failed flush
	closed  bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithLogger sets a logger for flush and commit events.
func WithLogger(l *zap.Logger) WriterOption {
	return func(w *Writer) { w.logger = l }
}

// WithAnalyzer overrides the default analysis.Simple analyzer.
func WithAnalyzer(a analysis.Analyzer) WriterOption {
	return func(w *Writer) { w.analyzer = a }
}

// WithFileSystem overrides the file system used for writes.
func WithFileSystem(fsys FileSystem) WriterOption {
	return func(w *Writer) { w.fs = fsys }
}

// WithMaxBufferedDocs sets how many docs are buffered before the buffer is
// flushed as an uncommitted segment. n <= 0 keeps the default.
func WithMaxBufferedDocs(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.maxBuffered = n
		}
	}
}

// OpenWriter creates dir if needed, takes the write lock and removes segment
// files not named by the committed manifest.
func OpenWriter(dir string, mode OpenMode, opts ...WriterOption) (*Writer, error) {
	w := &Writer{
		dir:         dir,
		mode:        mode,
		fs:          DefaultFS,
		analyzer:    analysis.NewSimple(),
		maxBuffered: DefaultMaxBufferedDocs,
		buf:         newSegmentBuffer(),
		next:        1,
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.IO("create index directory", err)
	}
	lock, err := acquireLock(dir)
	if err != nil {
		return nil, err
	}
	w.lock = lock

	m, err := ReadManifest(w.fs, dir)
	switch {
	case err == nil:
		w.base = m
		w.next = max(m.NextSegment, 1)
	case errors.Is(err, apperr.ErrNoIndex):
	default:
		lock.Release()
		return nil, err
	}
	if err := w.removeUnreferenced(); err != nil {
		lock.Release()
		return nil, err
	}
	if w.logger != nil {
		w.logger.Debug("index writer opened",
			zap.String("dir", dir),
			zap.Stringer("mode", mode),
			zap.Int("existing_docs", w.baseDocs()))
	}
	return w, nil
}

func (w *Writer) baseDocs() int {
	if w.base == nil {
		return 0
	}
	return w.base.NumDocs()
}

// removeUnreferenced deletes segment files left by an aborted writer and
// bumps the next segment number past anything found on disk.
func (w *Writer) removeUnreferenced() error {
	entries, err := w.fs.ReadDir(w.dir)
	if err != nil {
		return apperr.IO("list index directory", err)
	}
	for _, e := range entries {
		n, _, ok := parseSegmentFile(e.Name())
		if !ok {
			continue
		}
		if n >= w.next {
			w.next = n + 1
		}
		if w.base != nil && w.base.has(segmentName(n)) {
			continue
		}
		if err := w.fs.Remove(filepath.Join(w.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return apperr.IO("remove stale segment file", err)
		}
		if w.logger != nil {
			w.logger.Debug("removed stale segment file", zap.String("file", e.Name()))
		}
	}
	return nil
}

// AddDocument buffers doc and returns its id within the segment being built.
// A schema conflict rejects the document and leaves the writer usable.
func (w *Writer) AddDocument(doc Document) (int, error) {
	if err := w.usable(); err != nil {
		return 0, err
	}
	id, err := w.buf.add(doc, w.analyzer)
	if err != nil {
		return 0, err
	}
	w.added++
	if w.buf.numDocs >= w.maxBuffered {
		if err := w.flush(); err != nil {
			return id, err
		}
	}
	return id, nil
}

// NumDocs returns the number of docs added since the writer opened.
func (w *Writer) NumDocs() int { return w.added }

// Flushed returns the uncommitted segments written so far.
func (w *Writer) Flushed() []SegmentInfo { return slices.Clone(w.flushed) }

func (w *Writer) usable() error {
	if w.closed {
		return errors.New("index writer is closed")
	}
	return w.err
}

func (w *Writer) flush() error {
	if w.buf.numDocs == 0 {
		return nil
	}
	name := segmentName(w.next)
	w.next++
	if err := writeSegment(w.fs, w.dir, name, w.buf); err != nil {
		w.err = err
		if w.logger != nil {
			w.logger.Error("segment flush failed", zap.String("segment", name), zap.Error(err))
		}
		return err
	}
	info := SegmentInfo{Name: name, Docs: w.buf.numDocs}
	w.flushed = append(w.flushed, info)
	if w.logger != nil {
		w.logger.Debug("segment flushed",
			zap.String("segment", name),
			zap.Int("docs", info.Docs),
			zap.Int64("buffered_bytes", w.buf.size))
	}
	w.buf.reset()
	return nil
}

// Close flushes buffered docs and commits a new manifest, then releases the
// lock. After a failed flush Close discards the uncommitted segments and
// returns the flush error.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	defer w.finish()

	if w.err != nil {
		return errors.Join(w.err, w.discard())
	}
	if err := w.flush(); err != nil {
		return errors.Join(err, w.discard())
	}
	if w.mode == CreateOrAppend && w.base != nil && len(w.flushed) == 0 {
		return nil
	}

	m := &Manifest{
		Version:     FormatVersion,
		Generation:  1,
		CommitID:    uuid.NewString(),
		NextSegment: w.next,
	}
	if w.base != nil {
		m.Generation = w.base.Generation + 1
		if w.mode == CreateOrAppend {
			m.Segments = slices.Clone(w.base.Segments)
		}
	}
	m.Segments = append(m.Segments, w.flushed...)
	sortSegments(m.Segments)

	if err := w.fs.SyncDir(w.dir); err != nil {
		err = apperr.IO("sync index directory", err)
		return errors.Join(err, w.discard())
	}
	if err := writeManifest(w.fs, w.dir, m); err != nil {
		if w.logger != nil {
			w.logger.Error("commit failed", zap.Error(err))
		}
		return errors.Join(err, w.discard())
	}
	if w.logger != nil {
		w.logger.Info("index committed",
			zap.String("dir", w.dir),
			zap.Uint64("generation", m.Generation),
			zap.Int("segments", len(m.Segments)),
			zap.Int("docs", m.NumDocs()))
	}
	if w.mode == Create && w.base != nil {
		w.removeReplaced(m)
	}
	return nil
}

// Rollback discards every uncommitted segment and releases the lock.
func (w *Writer) Rollback() error {
	if w.closed {
		return nil
	}
	defer w.finish()
	return w.discard()
}

func (w *Writer) finish() {
	w.closed = true
	w.buf.reset()
	if err := w.lock.Release(); err != nil && w.logger != nil {
		w.logger.Warn("release write lock", zap.Error(err))
	}
}

func (w *Writer) discard() error {
	var errs []error
	for _, s := range w.flushed {
		errs = append(errs, w.removeSegment(s.Name))
	}
	w.flushed = nil
	if err := errors.Join(errs...); err != nil {
		return apperr.IO("discard uncommitted segments", err)
	}
	return nil
}

// removeReplaced deletes the segments of the previous commit that m no longer
// names. Failures are logged; the files are retried on the next open.
func (w *Writer) removeReplaced(m *Manifest) {
	for _, s := range w.base.Segments {
		if m.has(s.Name) {
			continue
		}
		if err := w.removeSegment(s.Name); err != nil && w.logger != nil {
			w.logger.Warn("remove replaced segment", zap.String("segment", s.Name), zap.Error(err))
		}
	}
}

func (w *Writer) removeSegment(name string) error {
	var errs []error
	for _, ext := range segmentExts {
		err := w.fs.Remove(filepath.Join(w.dir, name+ext))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s%s: %w", name, ext, err))
		}
	}
	return errors.Join(errs...)
}
