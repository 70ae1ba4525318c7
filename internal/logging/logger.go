// Package logging builds the zap loggers used across the harness.
// Each subsystem logs through a named child logger keyed by Category so output
// from the two test doubles and the browser side can be told apart.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, config, preconditions
	CategoryCollector Category = "collector" // Collector double requests
	CategoryContent   Category = "content"   // Content double requests
	CategorySDK       Category = "sdk"       // Tracker SDK fetch and cache
	CategoryBrowser   Category = "browser"   // Browser launch, window handles
	CategoryInspector Category = "inspector" // Panel activation state machine
	CategoryTracker   Category = "tracker"   // In-page tracker commands
	CategoryExtension Category = "extension" // Extension build artifact
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// New builds the root logger. Console format uses zap's development encoder,
// json uses the production encoder.
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	switch strings.ToLower(opts.Format) {
	case "", "console", "text":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = level > zapcore.DebugLevel

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// ParseLevel maps a config level name to a zap level. Empty means info.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// For returns the child logger for a category. A nil parent yields a no-op logger.
func For(parent *zap.Logger, category Category) *zap.Logger {
	if parent == nil {
		return zap.NewNop()
	}
	return parent.Named(string(category))
}
