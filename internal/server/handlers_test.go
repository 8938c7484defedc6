package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/index"
	"github.com/hyperjump/kensaku/internal/indexer"
	"github.com/hyperjump/kensaku/internal/metrics"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testEnv struct {
	handler http.Handler
	corpus  string
	dir     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	corpus := t.TempDir()
	files := map[string]string{
		"a.txt": "Barack Obama speech\nBarack Obama spoke about policy\n",
		"b.txt": "Hillary Clinton speech\nHillary Clinton spoke\n",
		"c.txt": "Obama and Hillary\nObama and Hillary appeared together\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(corpus, name), []byte(body), 0o600))
	}
	dir := filepath.Join(t.TempDir(), "index")

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Index.Path = dir
	cfg.Index.Directory = corpus

	logger := zaptest.NewLogger(t)
	m := metrics.New(prometheus.NewRegistry())
	history, err := storage.OpenHistory(filepath.Join(t.TempDir(), storage.HistoryFile))
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })

	engine := search.NewEngine(dir, search.WithLogger(logger), search.WithMetrics(m), search.WithConfig(cfg.Search))
	t.Cleanup(func() { _ = engine.Close() })
	builder := indexer.NewBuilder(dir, indexer.WithLogger(logger), indexer.WithMetrics(m), indexer.WithHistory(history))

	srv := NewServer(engine, builder, cfg, logger, WithMetrics(m), WithHistory(history))
	return &testEnv{handler: srv.Handler(), corpus: corpus, dir: dir}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestHandleIndexAndSearch(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: "Obama"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "no index yet")
	assert.Equal(t, "IO", decode[errorBody](t, rec).Kind)

	rec = env.do(t, http.MethodPost, "/api/v1/index", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[models.IndexResult](t, rec)
	assert.Equal(t, 3, res.Documents)
	assert.Equal(t, uint64(1), res.Generation)

	rec = env.do(t, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: "Obama Hillary", Highlight: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[models.SearchResponse](t, rec)
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, filepath.Join(env.corpus, "c.txt"), resp.Results[0].Path)
	assert.Equal(t, "<em>Obama</em> and <em>Hillary</em>", resp.Results[0].Highlight)
	assert.Equal(t, uint64(1), resp.Generation)

	rec = env.do(t, http.MethodPost, "/api/v1/index", models.IndexRequest{Directory: env.corpus, Suffix: "a.txt", Append: true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 4, decode[models.IndexResult](t, rec).Documents)

	rec = env.do(t, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: "policy"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[models.SearchResponse](t, rec)
	assert.Equal(t, 2, resp.Total, "search sees the appended commit")
	assert.Equal(t, uint64(2), resp.Generation)
}

func TestHandleSearch_Errors(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/index", nil).Code)

	rec := env.do(t, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: `"barack obama`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "QuerySyntax", body.Kind)
	require.NotNil(t, body.Offset)
	assert.Equal(t, 0, *body.Offset)

	rec = env.do(t, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader("{"))
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleIndex_Errors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/index", models.IndexRequest{Directory: filepath.Join(env.corpus, "missing")})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "IO", decode[errorBody](t, rec).Kind)

	w, err := index.OpenWriter(env.dir, index.Create)
	require.NoError(t, err)
	defer w.Rollback()
	rec = env.do(t, http.MethodPost, "/api/v1/index", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "LockHeld", decode[errorBody](t, rec).Kind)
}

func TestHandleDump(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/index", nil).Code)

	rec := env.do(t, http.MethodGet, "/api/v1/dump?field=CONTENT&postings=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	out := rec.Body.String()
	assert.Contains(t, out, "obama df=2")
	assert.NotContains(t, out, "field FIRST_LINE")
}

func TestHandleStatus(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/index", nil).Code)

	rec := env.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[models.IndexStatus](t, rec)
	assert.Equal(t, 3, st.Documents)
	assert.Equal(t, uint64(1), st.Generation)
	assert.Len(t, st.Segments, 1)
	assert.Positive(t, st.TotalBytes)
	require.Len(t, st.Builds, 1)
	assert.Equal(t, "create", st.Builds[0].Mode)
}

func TestHandleMetrics(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/index", nil).Code)
	env.do(t, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: "Obama"})
	env.do(t, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: "zebra"})

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `search_queries_total{result="hit"} 1`)
	assert.Contains(t, out, `search_queries_total{result="zero_result"} 1`)
	assert.Contains(t, out, "docs_indexed_total 3")
	assert.Contains(t, out, "index_documents 3")
}
