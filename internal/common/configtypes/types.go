package configtypes

// Log level constants
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log format constants
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

// PageStoreConfig is the root configuration of the pagestore binary
type PageStoreConfig struct {
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Site      SiteConfig      `yaml:"site"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// StorageConfig locates the page store on disk
type StorageConfig struct {
	BasePath string `yaml:"base_path"` // Storage root holding index.json and one directory per page
}

// ServerConfig configures the public page server and tool API
type ServerConfig struct {
	Listen      string   `yaml:"listen"`        // e.g. "127.0.0.1:3000"
	Timeout     Duration `yaml:"timeout"`       // Read/write timeout per request
	MaxBodySize int      `yaml:"max_body_size"` // Request body limit in bytes for the tool API
}

// SiteConfig describes the public site
type SiteConfig struct {
	Name string `yaml:"name"` // Shown on the index page
	URL  string `yaml:"url"`  // Absolute base URL used in the sitemap, empty = relative links only
}

// ReconcileConfig configures the background index verifier
type ReconcileConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
}

type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level,omitempty"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Format   string         `yaml:"format"`
	Level    string         `yaml:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation"`
}

type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`    // Megabytes before rotation
	MaxAge     int  `yaml:"max_age"`     // Days to keep rotated files
	MaxBackups int  `yaml:"max_backups"` // Rotated files to keep
	Compress   bool `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}
