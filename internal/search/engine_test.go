package search

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hyperjump/kensaku/internal/apperr"
	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/index"
	"github.com/hyperjump/kensaku/internal/metrics"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestEngine(t *testing.T, dir string, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	e := NewEngine(dir, opts...)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngine_SearchTo(t *testing.T) {
	e := newTestEngine(t, buildIndex(t, labCorpus()))

	var buf bytes.Buffer
	require.NoError(t, e.SearchTo(context.Background(), "Obama Hillary", 5, &buf))
	assert.Equal(t, "Found 3 hits for query Obama Hillary:\n"+
		"1. (0.8944) c.txt\n"+
		"2. (0.2887) b.txt\n"+
		"3. (0.2236) a.txt\n", buf.String())

	buf.Reset()
	require.NoError(t, e.SearchTo(context.Background(), "Obama", 1, &buf))
	assert.Equal(t, "Found 1 hits for query Obama:\n1. (0.4472) a.txt\n", buf.String())
}

func TestEngine_Search(t *testing.T) {
	e := newTestEngine(t, buildIndex(t, labCorpus()))

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "  FIRST_LINE:Obama ", Highlight: true})
	require.NoError(t, err)
	assert.Equal(t, "FIRST_LINE:Obama", resp.Query)
	assert.Equal(t, "FIRST_LINE:obama", resp.Parsed)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, uint64(1), resp.Generation)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "a.txt", resp.Results[0].Path)
	assert.Equal(t, "Barack Obama speech", resp.Results[0].FirstLine)
	assert.Equal(t, "Barack <em>Obama</em> speech", resp.Results[0].Highlight)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Empty(t, resp.Suggestions)

	resp, err = e.Search(context.Background(), &models.SearchQuery{Query: "Obama Hillary", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 2, resp.Results[0].Rank)
	assert.Equal(t, "b.txt", resp.Results[0].Path)
}

func TestEngine_Suggestions(t *testing.T) {
	e := newTestEngine(t, buildIndex(t, labCorpus()))

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "Obamma AND hilary"})
	require.NoError(t, err)
	assert.Zero(t, resp.Total)
	assert.Equal(t, []string{"obama AND hillary"}, resp.Suggestions)

	off := false
	resp, err = e.Search(context.Background(), &models.SearchQuery{Query: "obamma", Suggest: &off})
	require.NoError(t, err)
	assert.Empty(t, resp.Suggestions)

	e = newTestEngine(t, buildIndex(t, labCorpus()), WithConfig(config.SearchConfig{Suggestions: &off}))
	resp, err = e.Search(context.Background(), &models.SearchQuery{Query: "obamma"})
	require.NoError(t, err)
	assert.Empty(t, resp.Suggestions)
}

func TestEngine_Errors(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	_, err := e.Search(context.Background(), &models.SearchQuery{Query: "obama"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNoIndex))
	assert.Equal(t, "IO", apperr.Kind(err))

	e = newTestEngine(t, buildIndex(t, labCorpus()))
	_, err = e.Search(context.Background(), &models.SearchQuery{Query: `"barack`})
	require.Error(t, err)
	assert.Equal(t, "QuerySyntax", apperr.Kind(err))
	assert.Equal(t, 0, apperr.Offset(err))

	_, err = e.Search(context.Background(), &models.SearchQuery{Query: ""})
	assert.Error(t, err)
}

func TestEngine_Metrics(t *testing.T) {
	m := metrics.New(nil)
	e := newTestEngine(t, buildIndex(t, labCorpus()), WithMetrics(m))

	_, err := e.Search(context.Background(), &models.SearchQuery{Query: "obama"})
	require.NoError(t, err)
	_, err = e.Search(context.Background(), &models.SearchQuery{Query: "xyzzy"})
	require.NoError(t, err)
	_, err = e.Search(context.Background(), &models.SearchQuery{Query: "a AND"})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("zero_result")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("syntax_error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.IndexDocuments))
}

func TestEngine_Refresh(t *testing.T) {
	dir := buildIndex(t, labCorpus())
	e := newTestEngine(t, dir)

	gen, err := e.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	held, err := e.Acquire(context.Background())
	require.NoError(t, err)

	w, err := index.OpenWriter(dir, index.CreateOrAppend)
	require.NoError(t, err)
	_, err = w.AddDocument(labDoc("d.txt", "Obama again", "Obama Obama"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	gen, err = e.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "obama"})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, "d.txt", resp.Results[0].Path)

	// the old snapshot still serves its own commit
	assert.Equal(t, 3, held.NumDocs())
	td := search(t, held, "obama", 10)
	assert.Equal(t, 2, td.TotalHits)
	require.NoError(t, held.DecRef())
}

func TestEngine_ConcurrentSearches(t *testing.T) {
	e := newTestEngine(t, buildIndex(t, generatedCorpus(300), index.WithMaxBufferedDocs(50)))

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "alpha OR e*", Limit: 5})
			if err == nil && len(resp.Results) != 5 {
				err = errors.New("short result")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}
