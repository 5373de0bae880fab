package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgecomet/pagestore/internal/common/configtypes"
	"github.com/edgecomet/pagestore/internal/common/logger"
	"github.com/edgecomet/pagestore/internal/common/metricsserver"
	"github.com/edgecomet/pagestore/internal/metrics"
	"github.com/edgecomet/pagestore/internal/reconcile"
	"github.com/edgecomet/pagestore/internal/store"
	"github.com/edgecomet/pagestore/internal/web"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(opts *globalOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Serve pages, the sitemap and the tool API",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides server.listen")
	return cmd
}

func runServe(ctx context.Context, opts *globalOptions, listen string) error {
	initialLogger, err := logger.NewDefault()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	initialLogger.Info("Starting pagestore", zap.String("config_path", opts.configPath))

	cfg, err := loadConfig(opts, initialLogger.Logger)
	if err != nil {
		initialLogger.Error("Failed to load config", zap.Error(err))
		return err
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}

	// INFO during startup even when the configured level is higher
	dynamicLogger, err := logger.NewForStartup(cfg.Log)
	if err != nil {
		initialLogger.Error("Failed to create configured logger", zap.Error(err))
		return err
	}
	defer func() { _ = dynamicLogger.Sync() }()
	zapLogger := dynamicLogger.Logger

	svc := newService(cfg, zapLogger)
	if err := svc.start(); err != nil {
		zapLogger.Error("Failed to start pagestore", zap.Error(err))
		return err
	}

	zapLogger.Info("Pagestore started",
		zap.String("listen", svc.web.Addr()),
		zap.String("base_path", cfg.Storage.BasePath))
	dynamicLogger.RestoreConfiguredLevels()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-svc.serveErr:
		if serveErr != nil {
			zapLogger.Error("Page server stopped unexpectedly", zap.Error(serveErr))
		}
	}

	dynamicLogger.EnsureInfoLevel()
	zapLogger.Info("Shutting down pagestore...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shutdown gracefully", zap.Error(err))
		return errors.Join(serveErr, err)
	}

	if svc.metrics != nil {
		totals := svc.metrics.Totals()
		zapLogger.Info("Pagestore stopped",
			zap.Float64("page_views", totals.PageViews),
			zap.Float64("index_rebuilds", totals.IndexRebuilds))
	} else {
		zapLogger.Info("Pagestore stopped")
	}
	return serveErr
}

// service wires the store, the page server, the metrics server and the
// reconcile worker together
type service struct {
	config         *configtypes.PageStoreConfig
	logger         *zap.Logger
	store          *store.Store
	web            *web.Server
	worker         *reconcile.Worker
	metrics        *metrics.PrometheusMetrics // nil when metrics are disabled
	metricsHandler metricsserver.MetricsHandler
	metricsServer  *metricsserver.Server
	serveErr       chan error
}

func newService(cfg *configtypes.PageStoreConfig, logger *zap.Logger) *service {
	var (
		storeOpts        []store.Option
		webMetrics       web.Metrics
		reconcileMetrics reconcile.Metrics
		metricsHandler   metricsserver.MetricsHandler
		pm               *metrics.PrometheusMetrics
	)

	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		pm = metrics.NewPrometheusMetricsWithRegistry(cfg.Metrics.Namespace, registry, logger)
		storeOpts = append(storeOpts, store.WithObserver(pm))
		webMetrics = pm
		reconcileMetrics = pm
		metricsHandler = pm
	}

	st := store.New(cfg.Storage.BasePath, logger, storeOpts...)

	return &service{
		config: cfg,
		logger: logger,
		store:  st,
		web: web.NewServer(st, web.Config{
			Listen:      cfg.Server.Listen,
			Timeout:     cfg.Server.Timeout.ToDuration(),
			MaxBodySize: cfg.Server.MaxBodySize,
			SiteName:    cfg.Site.Name,
			SiteURL:     cfg.Site.URL,
		}, webMetrics, logger),
		worker:         reconcile.NewWorker(cfg.Reconcile, st, logger, reconcileMetrics),
		metrics:        pm,
		metricsHandler: metricsHandler,
		serveErr:       make(chan error, 1),
	}
}

// start reconciles the index once, then binds the metrics and page servers
// and launches the periodic worker
func (s *service) start() error {
	if _, err := s.worker.RunOnce(); err != nil {
		s.logger.Warn("Startup index reconcile failed", zap.Error(err))
	}

	ms, err := metricsserver.Start(s.config.Metrics, s.metricsHandler, s.logger)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	s.metricsServer = ms

	if err := s.web.Listen(); err != nil {
		if s.metricsServer != nil {
			_ = s.metricsServer.Shutdown(context.Background())
		}
		return err
	}

	s.worker.Start()

	go func() {
		s.serveErr <- s.web.Serve()
	}()
	return nil
}

// shutdown stops the worker before the servers
func (s *service) shutdown(ctx context.Context) error {
	s.worker.Shutdown()

	var errs []error
	if err := s.web.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("page server: %w", err))
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	return errors.Join(errs...)
}
