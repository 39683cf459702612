// Package dnslog provides the structured trace logger that the
// validator and packet packages accept optionally. Logging
// here is never part of control flow: every call site still returns a
// typed *dnserr.Error on failure, the logger only records what
// happened.
package dnslog

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface dnssector components accept.
type Logger interface {
	Debug(fields map[string]any, msg string)
	Info(fields map[string]any, msg string)
	Warn(fields map[string]any, msg string)
	Error(fields map[string]any, msg string)
}

// global is the package-level default returned by GetLogger. It
// defaults to a no-op so the library stays silent unless a caller opts
// in; components given a nil Logger use their own no-op logger, not
// this one.
var global Logger = NewNoopLogger()

// SetLogger replaces the global default logger.
func SetLogger(l Logger) {
	global = l
}

// GetLogger returns the current global default logger.
func GetLogger() Logger {
	return global
}

// Configure replaces the global logger with a zap-backed one for the
// given environment ("dev" or "prod") and level name.
func Configure(env, level string) error {
	isDev := env != "prod"

	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	global = newZapLogger(isDev, lvl)
	return nil
}

type zapLogger struct {
	base *zap.Logger
}

// NewZapLogger returns a Logger backed by zap, configured for dev or
// prod encoding at the given level.
func NewZapLogger(dev bool, level zapcore.Level) Logger {
	return newZapLogger(dev, level)
}

func newZapLogger(dev bool, level zapcore.Level) Logger {
	var config zap.Config
	if dev {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}
	config.Level = zap.NewAtomicLevelAt(level)
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.MessageKey = "msg"
	config.EncoderConfig.LevelKey = "level"

	logger, _ := config.Build()
	return &zapLogger{base: logger}
}

func (l *zapLogger) Debug(fields map[string]any, msg string) {
	l.base.With(zapFields(fields)...).Debug(msg)
}

func (l *zapLogger) Info(fields map[string]any, msg string) {
	l.base.With(zapFields(fields)...).Info(msg)
}

func (l *zapLogger) Warn(fields map[string]any, msg string) {
	l.base.With(zapFields(fields)...).Warn(msg)
}

func (l *zapLogger) Error(fields map[string]any, msg string) {
	l.base.With(zapFields(fields)...).Error(msg)
}

func zapFields(m map[string]any) []zap.Field {
	fields := make([]zap.Field, 0, len(m))
	for k, v := range m {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

type noopLogger struct{}

func (n *noopLogger) Debug(map[string]any, string) {}
func (n *noopLogger) Info(map[string]any, string)  {}
func (n *noopLogger) Warn(map[string]any, string)  {}
func (n *noopLogger) Error(map[string]any, string) {}

// NewNoopLogger returns a Logger that discards everything. It is the
// default used whenever a caller doesn't wire in a real logger.
func NewNoopLogger() Logger {
	return &noopLogger{}
}
