// Package reconcile periodically checks index.json against the page
// directories and rebuilds it when they disagree.
package reconcile

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/pagestore/internal/common/configtypes"
	"github.com/edgecomet/pagestore/internal/store"
)

// Run outcomes reported to Metrics
const (
	ResultConsistent = "consistent"
	ResultRebuilt    = "rebuilt"
	ResultError      = "error"
)

// Store is the part of *store.Store the worker needs
type Store interface {
	Verify() (store.IndexReport, error)
	RebuildIndex() (*store.StoreIndex, error)
	SweepTombstones() (int, error)
}

// Metrics receives run outcomes
type Metrics interface {
	RecordReconcile(result string)
}

type nopMetrics struct{}

func (nopMetrics) RecordReconcile(string) {}

// Result describes one reconcile run
type Result struct {
	Report            store.IndexReport
	Rebuilt           bool
	TombstonesRemoved int
}

// Worker runs reconcile passes on a ticker until shut down
type Worker struct {
	config  configtypes.ReconcileConfig
	store   Store
	logger  *zap.Logger
	metrics Metrics
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWorker creates a worker. metrics may be nil.
func NewWorker(config configtypes.ReconcileConfig, st Store, logger *zap.Logger, metrics Metrics) *Worker {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		config:  config,
		store:   st,
		logger:  logger,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the background loop. It does nothing when disabled.
func (w *Worker) Start() {
	if !w.config.Enabled {
		w.logger.Info("Index reconcile worker disabled")
		return
	}

	interval := w.config.Interval.ToDuration()
	w.logger.Info("Index reconcile worker starting", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := w.RunOnce(); err != nil {
					w.logger.Error("Index reconcile failed", zap.Error(err))
				}
			case <-w.ctx.Done():
				w.logger.Info("Index reconcile worker shutting down")
				return
			}
		}
	}()
}

// Shutdown stops the loop and waits for an in-flight run to finish
func (w *Worker) Shutdown() {
	w.cancel()
	w.wg.Wait()
	w.logger.Info("Index reconcile worker stopped")
}

// RunOnce sweeps leftover tombstones, verifies the index and rebuilds it if
// it disagrees with the page directories.
func (w *Worker) RunOnce() (Result, error) {
	var result Result
	start := time.Now()

	removed, err := w.store.SweepTombstones()
	if err != nil {
		// A failed sweep does not block verification
		w.logger.Warn("Tombstone sweep failed", zap.Error(err))
	}
	result.TombstonesRemoved = removed

	report, err := w.store.Verify()
	if err != nil {
		w.metrics.RecordReconcile(ResultError)
		return result, err
	}
	result.Report = report

	if report.Consistent() {
		w.metrics.RecordReconcile(ResultConsistent)
		w.logger.Debug("Index consistent",
			zap.Int("pages", report.Indexed),
			zap.Duration("duration", time.Since(start)))
		return result, nil
	}

	w.logger.Warn("Index out of sync with page directories, rebuilding",
		zap.Bool("unreadable", report.Unreadable),
		zap.Strings("missing", report.Missing),
		zap.Strings("stale", report.Stale),
		zap.Strings("mismatched", report.Mismatched))

	if _, err := w.store.RebuildIndex(); err != nil {
		w.metrics.RecordReconcile(ResultError)
		return result, err
	}
	result.Rebuilt = true
	w.metrics.RecordReconcile(ResultRebuilt)
	w.logger.Info("Index reconciled", zap.Duration("duration", time.Since(start)))
	return result, nil
}
