// Package metrics exposes pagestore activity as Prometheus metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/edgecomet/pagestore/internal/store"
)

// PrometheusMetrics records store, web, reconcile and archive activity.
// It implements store.Observer.
type PrometheusMetrics struct {
	// Store metrics
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	indexRebuilds     prometheus.Counter
	indexSkipped      prometheus.Counter
	indexPages        prometheus.Gauge

	// Web metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	pageViewsTotal  prometheus.Counter

	// Background and batch metrics
	reconcileRuns    *prometheus.CounterVec
	archivePages     *prometheus.CounterVec
	compressionRatio *prometheus.HistogramVec

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

var _ store.Observer = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers the metrics with the default registry
func NewPrometheusMetrics(namespace string, logger *zap.Logger) *PrometheusMetrics {
	return NewPrometheusMetricsWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewPrometheusMetricsWithRegistry registers the metrics with registerer
func NewPrometheusMetricsWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *PrometheusMetrics {
	if namespace == "" {
		namespace = "pagestore"
	}

	pm := &PrometheusMetrics{
		logger: logger,
	}

	pm.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total store operations by outcome",
		},
		[]string{"operation", "result"},
	)

	pm.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	pm.indexRebuilds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "index_rebuilds_total",
			Help:      "Total index rebuilds, explicit or self-healing",
		},
	)

	pm.indexSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "index_rebuild_skipped_total",
			Help:      "Page directories skipped during rebuilds because their metadata was unreadable",
		},
	)

	pm.indexPages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "indexed_pages",
			Help:      "Pages in the index after the last rebuild",
		},
	)

	pm.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "web",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route and status class",
		},
		[]string{"route", "status"},
	)

	pm.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "web",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	pm.pageViewsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "web",
			Name:      "page_views_total",
			Help:      "Total rendered page views",
		},
	)

	pm.reconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Index reconcile runs by outcome",
		},
		[]string{"result"},
	)

	pm.archivePages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "pages_total",
			Help:      "Pages exported or imported",
		},
		[]string{"direction"},
	)

	pm.compressionRatio = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "compression_ratio",
			Help:      "Compressed size divided by original size",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"algorithm"},
	)

	registerer.MustRegister(
		pm.operationsTotal,
		pm.operationDuration,
		pm.indexRebuilds,
		pm.indexSkipped,
		pm.indexPages,
		pm.requestsTotal,
		pm.requestDuration,
		pm.pageViewsTotal,
		pm.reconcileRuns,
		pm.archivePages,
		pm.compressionRatio,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Debug("Prometheus metrics initialized", zap.String("namespace", namespace))
	return pm
}

// ObserveOperation records a store operation outcome
func (pm *PrometheusMetrics) ObserveOperation(op string, err error, duration time.Duration) {
	pm.operationsTotal.WithLabelValues(op, store.ErrorKind(err)).Inc()
	pm.operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveIndexRebuild records an index rebuild
func (pm *PrometheusMetrics) ObserveIndexRebuild(pages, skipped int) {
	pm.indexRebuilds.Inc()
	pm.indexPages.Set(float64(pages))
	if skipped > 0 {
		pm.indexSkipped.Add(float64(skipped))
	}
}

// RecordRequest records a served HTTP request
func (pm *PrometheusMetrics) RecordRequest(route string, statusCode int, duration time.Duration) {
	pm.requestsTotal.WithLabelValues(route, statusClass(statusCode)).Inc()
	pm.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordPageView records a rendered page
func (pm *PrometheusMetrics) RecordPageView() {
	pm.pageViewsTotal.Inc()
}

// RecordReconcile records a reconcile run outcome
func (pm *PrometheusMetrics) RecordReconcile(result string) {
	pm.reconcileRuns.WithLabelValues(result).Inc()
}

// RecordArchivePages records pages moved by export or import
func (pm *PrometheusMetrics) RecordArchivePages(direction string, count int) {
	if count > 0 {
		pm.archivePages.WithLabelValues(direction).Add(float64(count))
	}
}

// RecordCompressionRatio records the ratio achieved by an archive write
func (pm *PrometheusMetrics) RecordCompressionRatio(algorithm string, ratio float64) {
	pm.compressionRatio.WithLabelValues(algorithm).Observe(ratio)
}

// Totals is a point-in-time read of the main counters
type Totals struct {
	PageViews     float64
	IndexRebuilds float64
}

// Totals reads the current counter values
func (pm *PrometheusMetrics) Totals() Totals {
	return Totals{
		PageViews:     pm.getCounterValue(pm.pageViewsTotal),
		IndexRebuilds: pm.getCounterValue(pm.indexRebuilds),
	}
}

// getCounterValue extracts current value from a counter
func (pm *PrometheusMetrics) getCounterValue(counter prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		pm.logger.Warn("Failed to read counter value", zap.Error(err))
		return 0
	}
	return metric.GetCounter().GetValue()
}

// ServeHTTP serves the metrics in Prometheus text format
func (pm *PrometheusMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	pm.httpHandler(ctx)
}

// statusClass maps a status code to "2xx", "4xx", ...
func statusClass(statusCode int) string {
	if statusCode < 100 || statusCode > 599 {
		return "unknown"
	}
	return strconv.Itoa(statusCode/100) + "xx"
}
