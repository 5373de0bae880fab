package configtypes

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate validates pagestore configuration. Defaults must be applied first.
func (c *PageStoreConfig) Validate() error {
	if c == nil {
		return nil
	}

	if strings.TrimSpace(c.Storage.BasePath) == "" {
		return fmt.Errorf("storage.base_path must be specified")
	}

	serverPort, err := validatePort("server.listen", c.Server.Listen)
	if err != nil {
		return err
	}
	if time.Duration(c.Server.Timeout) <= 0 {
		return fmt.Errorf("server.timeout must be > 0")
	}
	if c.Server.MaxBodySize <= 0 {
		return fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize)
	}

	if c.Site.URL != "" {
		u, err := url.Parse(c.Site.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("site.url must be an absolute http(s) URL, got '%s'", c.Site.URL)
		}
	}

	if c.Reconcile.Enabled && time.Duration(c.Reconcile.Interval) < time.Second {
		return fmt.Errorf("reconcile.interval must be >= 1s, got %v", time.Duration(c.Reconcile.Interval))
	}

	if c.Metrics.Enabled {
		metricsPort, err := validatePort("metrics.listen", c.Metrics.Listen)
		if err != nil {
			return err
		}
		if metricsPort == serverPort {
			return fmt.Errorf("metrics.listen port (%d) must differ from server.listen port (%d)", metricsPort, serverPort)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with '/', got '%s'", c.Metrics.Path)
		}
	}

	return c.Log.Validate()
}

// Validate validates logging configuration
func (l *LogConfig) Validate() error {
	validLogLevels := map[string]bool{
		LogLevelDebug: true,
		LogLevelInfo:  true,
		LogLevelWarn:  true,
		LogLevelError: true,
	}
	if l.Level != "" && !validLogLevels[l.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error, got '%s'", l.Level)
	}
	if l.Console.Level != "" && !validLogLevels[l.Console.Level] {
		return fmt.Errorf("log.console.level must be one of: debug, info, warn, error, got '%s'", l.Console.Level)
	}

	validConsoleFormats := map[string]bool{
		LogFormatJSON:    true,
		LogFormatConsole: true,
		LogFormatText:    true,
	}
	if l.Console.Enabled && l.Console.Format != "" && !validConsoleFormats[l.Console.Format] {
		return fmt.Errorf("log.console.format must be 'json', 'console' or 'text', got '%s'", l.Console.Format)
	}

	if l.File.Enabled {
		if l.File.Path == "" {
			return fmt.Errorf("log.file.path must be specified when file logging is enabled")
		}
		if l.File.Level != "" && !validLogLevels[l.File.Level] {
			return fmt.Errorf("log.file.level must be one of: debug, info, warn, error, got '%s'", l.File.Level)
		}
		if l.File.Format != "" && l.File.Format != LogFormatJSON && l.File.Format != LogFormatText {
			return fmt.Errorf("log.file.format must be 'json' or 'text', got '%s'", l.File.Format)
		}
		if l.File.Rotation.MaxSize < 0 {
			return fmt.Errorf("log.file.rotation.max_size must be >= 0, got %d", l.File.Rotation.MaxSize)
		}
		if l.File.Rotation.MaxAge < 0 {
			return fmt.Errorf("log.file.rotation.max_age must be >= 0, got %d", l.File.Rotation.MaxAge)
		}
		if l.File.Rotation.MaxBackups < 0 {
			return fmt.Errorf("log.file.rotation.max_backups must be >= 0, got %d", l.File.Rotation.MaxBackups)
		}
	}

	return nil
}

func validatePort(field, listen string) (int, error) {
	if listen == "" {
		return 0, fmt.Errorf("%s must be specified", field)
	}
	if err := ValidateListenAddress(listen); err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	_, port, _ := ParseListenAddress(listen)
	return port, nil
}
