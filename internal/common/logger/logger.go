// Package logger builds the zap loggers used by the pagestore binary.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/edgecomet/pagestore/internal/common/configtypes"
)

// output is one enabled sink with its own switchable level
type output struct {
	name       string
	level      zap.AtomicLevel
	configured zapcore.Level
}

// Logger is a zap.Logger whose per-output levels can be changed at runtime
type Logger struct {
	*zap.Logger
	outputs []*output
}

// New creates a logger writing to the outputs enabled in config
func New(config configtypes.LogConfig) (*Logger, error) {
	globalLevel := ParseLevel(config.Level)

	var cores []zapcore.Core
	var outputs []*output

	if config.Console.Enabled {
		out := newOutput("console", config.Console.Level, globalLevel)
		outputs = append(outputs, out)
		cores = append(cores, zapcore.NewCore(newEncoder(config.Console.Format), zapcore.Lock(os.Stdout), out.level))
	}

	if config.File.Enabled {
		if config.File.Path == "" {
			return nil, fmt.Errorf("file.path must be specified when file logging is enabled")
		}
		out := newOutput("file", config.File.Level, globalLevel)
		outputs = append(outputs, out)
		cores = append(cores, zapcore.NewCore(newEncoder(config.File.Format), newFileWriter(config.File), out.level))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one log output (console or file) must be enabled")
	}

	return &Logger{
		Logger:  zap.New(zapcore.NewTee(cores...)),
		outputs: outputs,
	}, nil
}

// NewForStartup creates a logger whose outputs log at INFO or more verbose
// until RestoreConfiguredLevels is called, so startup messages are visible
// even when the configured level is WARN or ERROR.
func NewForStartup(config configtypes.LogConfig) (*Logger, error) {
	l, err := New(config)
	if err != nil {
		return nil, err
	}
	for _, out := range l.outputs {
		if out.configured > zap.InfoLevel {
			out.level.SetLevel(zap.InfoLevel)
		}
	}
	return l, nil
}

// NewDefault creates a console logger used before configuration is loaded
func NewDefault() (*Logger, error) {
	return New(configtypes.LogConfig{
		Level:   configtypes.LogLevelDebug,
		Console: configtypes.ConsoleLogConfig{Enabled: true, Format: configtypes.LogFormatConsole},
	})
}

// RestoreConfiguredLevels switches every output back to its configured level
func (l *Logger) RestoreConfiguredLevels() {
	l.Info("Switching logger to configured levels")
	for _, out := range l.outputs {
		out.level.SetLevel(out.configured)
	}
}

// EnsureInfoLevel lowers outputs above INFO to INFO so shutdown is logged
func (l *Logger) EnsureInfoLevel() {
	changed := false
	for _, out := range l.outputs {
		if out.level.Level() > zap.InfoLevel {
			out.level.SetLevel(zap.InfoLevel)
			changed = true
		}
	}
	if changed {
		l.Info("Switched to INFO level for shutdown visibility")
	}
}

// SetLevel forces every output to level, overriding the configuration
func (l *Logger) SetLevel(level string) error {
	if !isKnownLevel(level) {
		return fmt.Errorf("unknown log level %q", level)
	}
	parsed := ParseLevel(level)
	for _, out := range l.outputs {
		out.level.SetLevel(parsed)
		out.configured = parsed
	}
	return nil
}

// Level returns the current level of the named output ("console" or "file")
func (l *Logger) Level(name string) (zapcore.Level, bool) {
	for _, out := range l.outputs {
		if out.name == name {
			return out.level.Level(), true
		}
	}
	return zapcore.InvalidLevel, false
}

// ParseLevel converts a configured level name, defaulting to INFO
func ParseLevel(level string) zapcore.Level {
	switch level {
	case configtypes.LogLevelDebug:
		return zap.DebugLevel
	case configtypes.LogLevelWarn:
		return zap.WarnLevel
	case configtypes.LogLevelError:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func isKnownLevel(level string) bool {
	switch level {
	case configtypes.LogLevelDebug, configtypes.LogLevelInfo, configtypes.LogLevelWarn, configtypes.LogLevelError:
		return true
	}
	return false
}

func newOutput(name, level string, global zapcore.Level) *output {
	configured := global
	if level != "" {
		configured = ParseLevel(level)
	}
	return &output{name: name, level: zap.NewAtomicLevelAt(configured), configured: configured}
}

func newEncoder(format string) zapcore.Encoder {
	if format == configtypes.LogFormatJSON {
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	if format == configtypes.LogFormatText {
		// no color codes in files
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func newFileWriter(config configtypes.FileLogConfig) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   config.Path,
		MaxSize:    config.Rotation.MaxSize,
		MaxAge:     config.Rotation.MaxAge,
		MaxBackups: config.Rotation.MaxBackups,
		Compress:   config.Rotation.Compress,
	})
}
