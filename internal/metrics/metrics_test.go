package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSearch("hit", 2*time.Millisecond)
	m.ObserveSearch("hit", time.Millisecond)
	m.ObserveSearch("zero_result", time.Millisecond)
	m.ObserveBuild(3, 1, nil)
	m.ObserveBuild(0, 0, errors.New("boom"))
	m.SetDocuments(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("zero_result")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DocsIndexedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SegmentsFlushedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexCommitsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexCommitsTotal.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.IndexDocuments))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSearch("hit", time.Millisecond)
	m.ObserveBuild(1, 1, nil)
	m.SetDocuments(1)
}

func TestMetrics_Handler(t *testing.T) {
	m := New(nil)
	m.SetDocuments(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "index_documents 7")
}
