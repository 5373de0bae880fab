package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/pagestore/internal/store"
)

func newTestMetrics(t *testing.T) (*PrometheusMetrics, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	return NewPrometheusMetricsWithRegistry("pagestore", registry, zap.NewNop()), registry
}

func TestPrometheusMetrics_ObserveOperation(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.ObserveOperation(store.OpCreate, nil, time.Millisecond)
	pm.ObserveOperation(store.OpCreate, nil, time.Millisecond)
	pm.ObserveOperation(store.OpCreate, fmt.Errorf("wrap: %w", store.ErrAlreadyExists), time.Millisecond)
	pm.ObserveOperation(store.OpLoad, errors.New("boom"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.operationsTotal.WithLabelValues(store.OpCreate, store.KindOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.operationsTotal.WithLabelValues(store.OpCreate, store.KindAlreadyExists)))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.operationsTotal.WithLabelValues(store.OpLoad, store.KindUnknown)))
}

func TestPrometheusMetrics_ObserveIndexRebuild(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.ObserveIndexRebuild(5, 0)
	pm.ObserveIndexRebuild(3, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.indexRebuilds))
	assert.Equal(t, 3.0, testutil.ToFloat64(pm.indexPages))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.indexSkipped))
}

func TestPrometheusMetrics_Totals(t *testing.T) {
	pm, _ := newTestMetrics(t)
	assert.Equal(t, Totals{}, pm.Totals())

	pm.RecordPageView()
	pm.RecordPageView()
	pm.ObserveIndexRebuild(1, 0)

	assert.Equal(t, Totals{PageViews: 2, IndexRebuilds: 1}, pm.Totals())
}

func TestPrometheusMetrics_RecordRequest(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.RecordRequest("page", 200, 10*time.Millisecond)
	pm.RecordRequest("page", 404, time.Millisecond)
	pm.RecordRequest("page", 404, time.Millisecond)
	pm.RecordPageView()

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.requestsTotal.WithLabelValues("page", "2xx")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.requestsTotal.WithLabelValues("page", "4xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.pageViewsTotal))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "unknown", statusClass(42))
}

func TestPrometheusMetrics_HTTPEndpoint(t *testing.T) {
	pm, _ := newTestMetrics(t)
	pm.ObserveOperation(store.OpDelete, nil, time.Millisecond)
	pm.RecordReconcile("rebuilt")
	pm.RecordArchivePages("export", 4)
	pm.RecordCompressionRatio("snappy", 0.4)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/metrics")
	ctx.Request.Header.SetMethod("GET")

	pm.ServeHTTP(ctx)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Header.Peek("Content-Type")), "text/plain")

	body := string(ctx.Response.Body())
	assert.Contains(t, body, "pagestore_store_operations_total")
	assert.Contains(t, body, "pagestore_reconcile_runs_total")
	assert.Contains(t, body, "pagestore_archive_pages_total")
	assert.Contains(t, body, "# HELP")
}
