// Command pagestore serves and administers a filesystem page store.
//
//	pagestore serve -c configs/example/pagestore.yaml
//	pagestore list --format json
//	pagestore export backup.jsonl.snappy
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgecomet/pagestore/internal/common/config"
	"github.com/edgecomet/pagestore/internal/common/configtypes"
	"github.com/edgecomet/pagestore/internal/common/logger"
	"github.com/edgecomet/pagestore/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every subcommand
type globalOptions struct {
	configPath string
	dataDir    string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "pagestore",
		Short: "Filesystem page store with an SEO page server",
		Long: `pagestore keeps pages (SEO metadata plus an HTML body) in one directory
per page and maintains index.json next to them.

Quick Start:
  pagestore serve                 Serve pages, the sitemap and the tool API
  pagestore list                  List indexed pages
  pagestore verify --fix          Compare index.json with the page directories
  pagestore export pages.jsonl    Snapshot every page to one file`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML configuration (defaults plus environment when empty)")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "storage root, overrides storage.base_path")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at the configured level in one-shot commands")

	root.AddCommand(
		newServeCmd(opts),
		newListCmd(opts),
		newRebuildIndexCmd(opts),
		newVerifyCmd(opts),
		newSelfCheckCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
		newConfigTestCmd(opts),
	)
	return root
}

// loadConfig reads the configuration and applies the --data-dir override
func loadConfig(opts *globalOptions, bootstrap *zap.Logger) (*configtypes.PageStoreConfig, error) {
	cfg, err := config.LoadConfig(opts.configPath, bootstrap)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.dataDir != "" {
		cfg.Storage.BasePath = opts.dataDir
	}
	return cfg, nil
}

// adminRuntime is what the one-shot commands work with
type adminRuntime struct {
	config *configtypes.PageStoreConfig
	logger *logger.Logger
	store  *store.Store
}

// newAdminRuntime loads the configuration quietly and opens the store. Logs
// stay at WARN unless --verbose so command output is not drowned out.
func newAdminRuntime(opts *globalOptions) (*adminRuntime, error) {
	cfg, err := loadConfig(opts, zap.NewNop())
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if !opts.verbose {
		if err := log.SetLevel(configtypes.LogLevelWarn); err != nil {
			return nil, err
		}
	}

	return &adminRuntime{
		config: cfg,
		logger: log,
		store:  store.New(cfg.Storage.BasePath, log.Logger),
	}, nil
}

func (rt *adminRuntime) close() {
	_ = rt.logger.Sync()
}
