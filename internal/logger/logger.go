// Package logger wraps zap behind a small interface so packages can log
// structured fields without importing zap directly.
package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel parses s into a zapcore.Level. Unknown values map to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Field is an alias for zap.Field.
type Field = zap.Field

// Logger is the structured logger used across the analyzer.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
	Sync() error
}

type zapLogger struct {
	logger *zap.Logger
}

// New builds a zap-backed Logger. format "json" selects the production
// encoder; anything else selects the console encoder. Logs go to stderr so
// JSON reports on stdout stay machine-readable.
func New(level zapcore.Level, format string) Logger {
	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	return &zapLogger{logger: l}
}

// NewFromConfig creates a logger from string level and format settings.
func NewFromConfig(level, format string) Logger {
	return New(ParseLevel(level), format)
}

// NewNop returns a Logger that discards everything.
func NewNop() Logger {
	return &zapLogger{logger: zap.NewNop()}
}

// FromZap adapts an existing zap logger, e.g. one built with zaptest/observer.
func FromZap(l *zap.Logger) Logger {
	return &zapLogger{logger: l}
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.logger.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.logger.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.logger.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.logger.Error(msg, fields...) }

// With returns a child logger carrying fields on every entry.
func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{logger: l.logger.With(fields...)}
}

func (l *zapLogger) Sync() error { return l.logger.Sync() }

func String(key, value string) Field { return zap.String(key, value) }

func Strings(key string, values []string) Field { return zap.Strings(key, values) }

func Int(key string, value int) Field { return zap.Int(key, value) }

func Float64(key string, value float64) Field { return zap.Float64(key, value) }

func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }

func Time(key string, value time.Time) Field { return zap.Time(key, value) }

func Error(err error) Field { return zap.Error(err) }
