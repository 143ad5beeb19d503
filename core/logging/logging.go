// Package logging builds the zap loggers used throughout vigil. Loggers are
// constructed per run and passed down explicitly; nothing here touches zap's
// global logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the level, console format and optional log file.
type Config struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string
	// Format is "console" or "json".
	Format string
	// File, when set, receives JSON logs rotated at MaxSizeMB (default 50)
	// keeping MaxBackups old files (0 keeps all).
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New returns a logger writing to console and, if configured, to a rotating
// file. An empty Level means warn. The returned close function flushes the
// logger and releases the log file; call it once the logger is done.
func New(cfg Config, console zapcore.WriteSyncer) (*zap.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level, zapcore.WarnLevel)
	if err != nil {
		return nil, nil, err
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder(cfg.Format), console, level)}
	var file *lumberjack.Logger
	if cfg.File != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
		}
		cores = append(cores, zapcore.NewCore(encoder("json"), zapcore.AddSync(file), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel)).Named("vigil")
	closeFn := func() error {
		// Sync errors on terminal stderr are ignored.
		_ = logger.Sync()
		if file == nil {
			return nil
		}
		if err := file.Close(); err != nil {
			return fmt.Errorf("closing log file %s: %w", cfg.File, err)
		}
		return nil
	}
	return logger, closeFn, nil
}

// ParseLevel parses a level name; empty input yields def.
func ParseLevel(name string, def zapcore.Level) (zapcore.Level, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return def, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return def, fmt.Errorf("invalid log level %q", name)
	}
	return lvl, nil
}

// AtLeast returns a child of l that drops entries below level. It never
// lowers the threshold of l.
func AtLeast(l *zap.Logger, level zapcore.Level) *zap.Logger {
	if level > zapcore.LevelOf(l.Core()) {
		return l.WithOptions(zap.IncreaseLevel(level))
	}
	return l
}

func encoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	if format == "json" {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}
