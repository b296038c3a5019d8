// Package logger builds the structured zap logger used across bombard.
package logger

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvLevel is consulted when no level is configured explicitly.
const EnvLevel = "LOG_LEVEL"

// Options selects the level and destination of the logger.
type Options struct {
	// Level is a zap level name ("debug", "info", ...). Empty falls back to
	// $LOG_LEVEL, then info.
	Level string

	// File, when set, receives the logs instead of stderr.
	File string

	// Development switches to the human-readable console encoder.
	Development bool
}

// ResolveLevel returns the effective level for the given configured name.
func ResolveLevel(name string) (zapcore.Level, error) {
	if name == "" {
		name = os.Getenv(EnvLevel)
	}
	if name == "" {
		return zapcore.InfoLevel, nil
	}

	level, err := zapcore.ParseLevel(name)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// New builds a production logger: JSON lines, no sampling, UTC RFC3339Nano
// timestamps, durations as strings and no stack traces.
func New(opts Options) (*zap.Logger, error) {
	level, err := ResolveLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg.Encoding = "console"
	}

	cfg.Sampling = nil

	cfg.Level = zap.NewAtomicLevelAt(level)

	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		zapcore.RFC3339NanoTimeEncoder(t.UTC(), enc)
	}

	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	cfg.DisableStacktrace = true

	if opts.File != "" {
		cfg.OutputPaths = []string{opts.File}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
