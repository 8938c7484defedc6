// Package indexer builds an index from the files of a directory.
package indexer

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/hyperjump/kensaku/internal/analysis"
	"github.com/hyperjump/kensaku/internal/extract"
	"github.com/hyperjump/kensaku/internal/index"
	"github.com/hyperjump/kensaku/internal/metrics"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Builder adds files to the index in one directory. Builds through the same
// Builder run one at a time; a build from another process fails with
// LockHeld.
type Builder struct {
	dir         string
	extractor   *extract.Extractor
	analyzer    analysis.Analyzer
	logger      *zap.Logger // optional
	metrics     *metrics.Metrics
	maxBuffered int
	workers     int
	progress    func(path string)
	history     storage.BuildHistory

	mu sync.Mutex
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets a logger. Each added file is logged at info level.
func WithLogger(l *zap.Logger) Option { return func(b *Builder) { b.logger = l } }

// WithMetrics records builds on m.
func WithMetrics(m *metrics.Metrics) Option { return func(b *Builder) { b.metrics = m } }

// WithExtractor sets the document adapter.
func WithExtractor(e *extract.Extractor) Option { return func(b *Builder) { b.extractor = e } }

// WithAnalyzer sets the analyzer used for indexed fields.
func WithAnalyzer(a analysis.Analyzer) Option { return func(b *Builder) { b.analyzer = a } }

// WithMaxBufferedDocs bounds the docs per flushed segment.
func WithMaxBufferedDocs(n int) Option { return func(b *Builder) { b.maxBuffered = n } }

// WithWorkers sets how many files are read and extracted concurrently.
// Documents are still added in file order.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithProgress calls fn with each file path before it is added.
func WithProgress(fn func(path string)) Option { return func(b *Builder) { b.progress = fn } }

// WithHistory records every build, failed ones included, in h.
func WithHistory(h storage.BuildHistory) Option { return func(b *Builder) { b.history = h } }

// NewBuilder returns a builder for the index in dir.
func NewBuilder(dir string, opts ...Option) *Builder {
	b := &Builder{
		dir:         dir,
		extractor:   extract.NewExtractor(),
		analyzer:    analysis.NewSimple(),
		maxBuffered: index.DefaultMaxBufferedDocs,
		workers:     runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dir returns the index directory.
func (b *Builder) Dir() string { return b.dir }

// IndexDirectory finds the files under root ending in suffix and builds the
// index from them.
func (b *Builder) IndexDirectory(ctx context.Context, root, suffix string, recursive bool, mode index.OpenMode) (*models.IndexResult, error) {
	files, err := extract.FindFiles(root, suffix, recursive)
	if err != nil {
		return nil, err
	}
	if b.logger != nil {
		b.logger.Info("indexing directory",
			zap.String("root", root),
			zap.String("suffix", suffix),
			zap.Bool("recursive", recursive),
			zap.Int("files", len(files)),
			zap.Stringer("mode", mode))
	}
	return b.build(ctx, root, files, mode)
}

// BuildIndex adds files in order and commits. Any error, including ctx
// being canceled, rolls back every segment written by this build; the
// previous commit stays intact.
func (b *Builder) BuildIndex(ctx context.Context, files []string, mode index.OpenMode) (*models.IndexResult, error) {
	return b.build(ctx, "", files, mode)
}

func (b *Builder) build(ctx context.Context, root string, files []string, mode index.OpenMode) (res *models.IndexResult, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	segments := 0
	defer func() {
		b.metrics.ObserveBuild(len(files), segments, err)
		b.record(root, mode, len(files), start, res, err)
	}()

	w, err := index.OpenWriter(b.dir, mode,
		index.WithLogger(b.logger),
		index.WithAnalyzer(b.analyzer),
		index.WithMaxBufferedDocs(b.maxBuffered))
	if err != nil {
		return nil, err
	}
	if err := b.addAll(ctx, w, files); err != nil {
		if rbErr := w.Rollback(); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		if b.logger != nil {
			b.logger.Error("index build failed", zap.String("dir", b.dir), zap.Error(err))
		}
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	segments = len(w.Flushed())

	m, err := index.ReadManifest(index.DefaultFS, b.dir)
	if err != nil {
		return nil, err
	}
	return &models.IndexResult{
		Files:      len(files),
		Documents:  m.NumDocs(),
		Segments:   len(m.Segments),
		Generation: m.Generation,
		ElapsedMS:  time.Since(start).Milliseconds(),
	}, nil
}

// addAll extracts files in batches on the worker pool and adds each batch
// in file order.
func (b *Builder) addAll(ctx context.Context, w *index.Writer, files []string) error {
	batch := b.workers * 4
	docs := make([]index.Document, batch)
	for lo := 0; lo < len(files); lo += batch {
		hi := min(lo+batch, len(files))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.workers)
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				doc, err := b.extractor.Document(files[i])
				docs[i-lo] = doc
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for i := lo; i < hi; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if b.progress != nil {
				b.progress(files[i])
			}
			if b.logger != nil {
				b.logger.Info("adding document", zap.String("path", files[i]))
			}
			if _, err := w.AddDocument(docs[i-lo]); err != nil {
				return err
			}
			docs[i-lo] = index.Document{}
		}
	}
	return nil
}

func (b *Builder) record(root string, mode index.OpenMode, files int, start time.Time, res *models.IndexResult, err error) {
	if b.history == nil {
		return
	}
	rec := &models.BuildRecord{
		StartedAt: start,
		Mode:      mode.String(),
		Root:      root,
		Files:     files,
		ElapsedMS: time.Since(start).Milliseconds(),
	}
	if res != nil {
		rec.Documents = res.Documents
		rec.Segments = res.Segments
		rec.Generation = res.Generation
	}
	if err != nil {
		rec.Error = err.Error()
	}
	// Best effort: a build never fails on its history.
	if herr := b.history.RecordBuild(context.Background(), rec); herr != nil && b.logger != nil {
		b.logger.Warn("record build history", zap.Error(herr))
	}
}
