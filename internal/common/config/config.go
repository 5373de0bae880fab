package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/edgecomet/pagestore/internal/common/configtypes"
)

// Environment variables applied on top of the file configuration
const (
	EnvSiteURL = "SITE_URL"
	EnvWebHost = "WEB_HOST"
	EnvWebPort = "WEB_PORT"
	EnvDataDir = "PAGESTORE_DATA_DIR"
)

// Default values applied by applyDefaults
const (
	DefaultBasePath          = "data"
	DefaultListen            = "127.0.0.1:3000"
	DefaultTimeout           = 30 * time.Second
	DefaultMaxBodySize       = 8 << 20
	DefaultSiteName          = "SolinBlog"
	DefaultReconcileInterval = 10 * time.Minute
	DefaultMetricsListen     = ":10091"
	DefaultMetricsPath       = "/metrics"
	DefaultMetricsNamespace  = "pagestore"
)

// LoadConfig reads the YAML configuration at path, applies defaults and
// environment overrides, then validates the result. An empty path yields
// the defaults plus environment overrides.
func LoadConfig(path string, logger *zap.Logger) (*configtypes.PageStoreConfig, error) {
	var config configtypes.PageStoreConfig

	if path != "" {
		logger.Info("Loading pagestore configuration", zap.String("path", path))

		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file does not exist: %s", path)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := unmarshalStrict(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	applyDefaults(&config)
	if err := applyEnvOverrides(&config, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if config.Site.URL == "" {
		logger.Warn("site.url is not set, sitemap and tool API URLs fall back to the request host")
	}

	logger.Info("Pagestore configuration loaded",
		zap.String("base_path", config.Storage.BasePath),
		zap.String("listen", config.Server.Listen),
		zap.String("site_url", config.Site.URL),
		zap.Bool("reconcile", config.Reconcile.Enabled),
		zap.Bool("metrics", config.Metrics.Enabled))

	return &config, nil
}

// unmarshalStrict rejects unknown fields so typos in the config file fail loudly
func unmarshalStrict(data []byte, v interface{}) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		errStr := err.Error()
		if strings.Contains(errStr, "field") && strings.Contains(errStr, "not found") {
			return fmt.Errorf("unknown configuration field (check for typos): %w", err)
		}
		return err
	}
	return nil
}

// applyDefaults fills every unset field with its default
func applyDefaults(config *configtypes.PageStoreConfig) {
	if config.Storage.BasePath == "" {
		config.Storage.BasePath = DefaultBasePath
	}

	if config.Server.Listen == "" {
		config.Server.Listen = DefaultListen
	}
	if config.Server.Timeout == 0 {
		config.Server.Timeout = configtypes.Duration(DefaultTimeout)
	}
	if config.Server.MaxBodySize == 0 {
		config.Server.MaxBodySize = DefaultMaxBodySize
	}

	if config.Site.Name == "" {
		config.Site.Name = DefaultSiteName
	}
	config.Site.URL = strings.TrimRight(config.Site.URL, "/")

	if config.Reconcile.Interval == 0 {
		config.Reconcile.Interval = configtypes.Duration(DefaultReconcileInterval)
	}

	// If both outputs are disabled (zero values), enable console by default
	if !config.Log.Console.Enabled && !config.Log.File.Enabled {
		config.Log.Console.Enabled = true
	}
	if config.Log.Level == "" {
		config.Log.Level = configtypes.LogLevelInfo
	}
	if config.Log.Console.Format == "" {
		config.Log.Console.Format = configtypes.LogFormatConsole
	}
	if config.Log.File.Format == "" {
		config.Log.File.Format = configtypes.LogFormatText
	}

	if config.Metrics.Listen == "" {
		config.Metrics.Listen = DefaultMetricsListen
	}
	if config.Metrics.Path == "" {
		config.Metrics.Path = DefaultMetricsPath
	}
	if config.Metrics.Namespace == "" {
		config.Metrics.Namespace = DefaultMetricsNamespace
	}
}

// applyEnvOverrides applies the deployment environment variables
func applyEnvOverrides(config *configtypes.PageStoreConfig, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvSiteURL); ok && strings.TrimSpace(v) != "" {
		config.Site.URL = strings.TrimRight(strings.TrimSpace(v), "/")
	}
	if v, ok := lookup(EnvDataDir); ok && strings.TrimSpace(v) != "" {
		config.Storage.BasePath = strings.TrimSpace(v)
	}

	host, _ := lookup(EnvWebHost)
	port, _ := lookup(EnvWebPort)
	host, port = strings.TrimSpace(host), strings.TrimSpace(port)
	if host == "" && port == "" {
		return nil
	}
	listen, err := configtypes.ListenFromHostPort(config.Server.Listen, host, port)
	if err != nil {
		return fmt.Errorf("%s/%s: %w", EnvWebHost, EnvWebPort, err)
	}
	config.Server.Listen = listen
	return nil
}
