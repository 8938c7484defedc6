// Package search evaluates queries against an index: scorers, the top-K
// collector, multi-term rewriting and the Engine facade used by the CLI and
// the HTTP API.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/hyperjump/kensaku/internal/analysis"
	"github.com/hyperjump/kensaku/internal/apperr"
	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/index"
	"github.com/hyperjump/kensaku/internal/metrics"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/query"
	"github.com/hyperjump/kensaku/internal/suggest"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Engine serves searches over the latest committed snapshot of an index
// directory. It is safe for concurrent use.
type Engine struct {
	dir      string
	cfg      config.SearchConfig
	analyzer analysis.Analyzer
	parser   *query.Parser
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	snap    *index.Snapshot
	refresh singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithMetrics records query outcomes on m.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithConfig sets the query defaults.
func WithConfig(cfg config.SearchConfig) Option { return func(e *Engine) { e.cfg = cfg } }

// WithAnalyzer sets the analyzer used on query text. It must match the one
// the index was built with.
func WithAnalyzer(a analysis.Analyzer) Option { return func(e *Engine) { e.analyzer = a } }

// NewEngine returns an engine over the index in dir. The index is opened on
// first use.
func NewEngine(dir string, opts ...Option) *Engine {
	e := &Engine{dir: dir, analyzer: analysis.NewSimple()}
	for _, opt := range opts {
		opt(e)
	}
	applySearchDefaults(&e.cfg)
	e.parser = query.NewParser(e.cfg.DefaultField, e.analyzer)
	return e
}

func applySearchDefaults(c *config.SearchConfig) {
	full := config.Config{Search: *c}
	config.ApplyDefaults(&full)
	*c = full.Search
}

// Dir returns the index directory.
func (e *Engine) Dir() string { return e.dir }

// Refresh opens the latest commit if it differs from the one being served
// and returns the served generation. Concurrent calls share one open.
func (e *Engine) Refresh(ctx context.Context) (uint64, error) {
	v, err, _ := e.refresh.Do("refresh", func() (any, error) {
		m, err := index.ReadManifest(index.DefaultFS, e.dir)
		if err != nil {
			return uint64(0), err
		}
		e.mu.RLock()
		cur := e.snap
		e.mu.RUnlock()
		if cur != nil && cur.Generation() == m.Generation {
			return m.Generation, nil
		}
		snap, err := index.OpenReader(e.dir)
		if err != nil {
			return uint64(0), err
		}
		e.mu.Lock()
		old := e.snap
		e.snap = snap
		e.mu.Unlock()
		if old != nil {
			if err := old.DecRef(); err != nil && e.logger != nil {
				e.logger.Warn("release snapshot", zap.Error(err))
			}
		}
		e.metrics.SetDocuments(snap.NumDocs())
		if e.logger != nil {
			e.logger.Info("snapshot opened",
				zap.String("dir", e.dir),
				zap.Uint64("generation", snap.Generation()),
				zap.Int("docs", snap.NumDocs()),
				zap.Int("segments", len(snap.Leaves())))
		}
		return snap.Generation(), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

// Acquire returns the served snapshot with an extra reference the caller
// must release with DecRef.
func (e *Engine) Acquire(ctx context.Context) (*index.Snapshot, error) {
	for range 3 {
		e.mu.RLock()
		s := e.snap
		ok := s != nil && s.IncRef()
		e.mu.RUnlock()
		if ok {
			return s, nil
		}
		if _, err := e.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("acquire snapshot of %s: closed while opening", e.dir)
}

// Close releases the served snapshot.
func (e *Engine) Close() error {
	e.mu.Lock()
	s := e.snap
	e.snap = nil
	e.mu.Unlock()
	if s != nil {
		return s.DecRef()
	}
	return nil
}

// Parse parses a query string with the engine's default field and analyzer.
func (e *Engine) Parse(q string) (query.Query, error) { return e.parser.Parse(q) }

// TopDocs runs q and returns its k best hits against snap.
func (e *Engine) TopDocs(ctx context.Context, snap *index.Snapshot, q query.Query, k int) (TopDocs, error) {
	return NewSearcher(snap, WithMaxExpansions(e.cfg.MaxExpansions)).Search(ctx, q, k)
}

// Search runs a search request.
func (e *Engine) Search(ctx context.Context, req *models.SearchQuery) (resp *models.SearchResponse, err error) {
	start := time.Now()
	result := "error"
	defer func() {
		if err == nil {
			result = "hit"
			if resp.Total == 0 {
				result = "zero_result"
			}
		} else if errors.Is(err, apperr.ErrQuerySyntax) {
			result = "syntax_error"
		}
		e.metrics.ObserveSearch(result, time.Since(start))
	}()

	if err := ProcessQuery(req, &e.cfg); err != nil {
		return nil, err
	}
	q, err := e.parser.Parse(req.Query)
	if err != nil {
		return nil, err
	}
	snap, err := e.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer snap.DecRef()

	td, err := e.TopDocs(ctx, snap, q, req.Offset+req.Limit)
	if err != nil {
		return nil, err
	}

	resp = &models.SearchResponse{
		Query:      req.Query,
		Parsed:     q.String(),
		Total:      td.TotalHits,
		Results:    make([]*models.SearchResult, 0, len(td.Hits)),
		Generation: snap.Generation(),
	}
	var marks map[string]bool
	if req.Highlight {
		marks = make(map[string]bool)
		for _, t := range queryTerms(q, "") {
			marks[t] = true
		}
	}
	for i := req.Offset; i < len(td.Hits); i++ {
		hit := td.Hits[i]
		doc, err := snap.Document(hit.Doc)
		if err != nil {
			return nil, err
		}
		path, _ := doc.Get(models.FieldPath)
		first, _ := doc.Get(models.FieldFirstLine)
		r := &models.SearchResult{Rank: i + 1, Doc: hit.Doc, Score: hit.Score, Path: path, FirstLine: first}
		if marks != nil {
			r.Highlight = Highlight(first, marks, "<em>", "</em>", 200)
		}
		resp.Results = append(resp.Results, r)
	}

	wantSuggest := e.cfg.SuggestionsOrDefault()
	if req.Suggest != nil {
		wantSuggest = *req.Suggest
	}
	if resp.Total == 0 && wantSuggest {
		resp.Suggestions = e.suggestions(snap, req.Query, q)
	}
	resp.QueryTime = time.Since(start).Milliseconds()

	if e.logger != nil {
		e.logger.Debug("search",
			zap.String("query", req.Query),
			zap.String("parsed", resp.Parsed),
			zap.Int("total", resp.Total),
			zap.Duration("elapsed", time.Since(start)))
	}
	return resp, nil
}

// suggestions rewrites raw once per misspelled default-field term, using the
// best dictionary suggestion.
func (e *Engine) suggestions(snap *index.Snapshot, raw string, q query.Query) []string {
	field := e.cfg.DefaultField
	corr, err := suggest.New(snap, field).Check(queryTerms(q, field))
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("spelling suggestions", zap.Error(err))
		}
		return nil
	}
	if len(corr) == 0 {
		return nil
	}
	fixed := raw
	for _, c := range corr {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(c.Term) + `\b`)
		fixed = re.ReplaceAllLiteralString(fixed, c.Suggestions[0].Term)
	}
	if fixed == raw {
		return nil
	}
	return []string{fixed}
}

// SearchTo runs q and writes the top k hits to w, one "rank. (score) PATH"
// line per hit after a summary line.
func (e *Engine) SearchTo(ctx context.Context, q string, k int, w io.Writer) error {
	resp, err := e.Search(ctx, &models.SearchQuery{Query: q, Limit: max(k, 1)})
	if err != nil {
		return err
	}
	return WriteHits(w, q, resp.Results)
}

// WriteHits writes a summary line and one "rank. (score) PATH" line per
// result.
func WriteHits(w io.Writer, q string, results []*models.SearchResult) error {
	if _, err := fmt.Fprintf(w, "Found %d hits for query %s:\n", len(results), q); err != nil {
		return err
	}
	for _, r := range results {
		if _, err := fmt.Fprintf(w, "%d. (%s) %s\n", r.Rank, FormatScore(r.Score), r.Path); err != nil {
			return err
		}
	}
	return nil
}

// FormatScore formats a score to four decimal places.
func FormatScore(s float64) string { return strconv.FormatFloat(s, 'f', 4, 64) }

// queryTerms lists the terms of the scoring clauses of q, restricted to
// field unless it is empty.
func queryTerms(q query.Query, field string) []string {
	var out []string
	var walk func(query.Query)
	walk = func(q query.Query) {
		switch q := q.(type) {
		case *query.TermQuery:
			if field == "" || q.Field == field {
				out = append(out, q.Term)
			}
		case *query.PhraseQuery:
			if field == "" || q.Field == field {
				out = append(out, q.Terms...)
			}
		case *query.FuzzyQuery:
			if field == "" || q.Field == field {
				out = append(out, q.Term)
			}
		case *query.BooleanQuery:
			for _, c := range q.Clauses {
				if c.Occur != query.MustNot {
					walk(c.Query)
				}
			}
		}
	}
	walk(q)
	return out
}
