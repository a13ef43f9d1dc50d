// Package logger provides the structured logger used across the service.
//
// Loggers are injected and named per component, e.g. lggr.Named("automation").
// Tests use Test or TestObserved; New is reserved for binaries.
package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// Logger is the key/value logging interface implemented on top of zap.SugaredLogger.
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)

	// Named returns a child logger with name appended to the logger name.
	Named(name string) Logger
	// With returns a child logger carrying the given key/value pairs on every entry.
	With(keysAndValues ...any) Logger

	// Sync flushes any buffered log entries.
	Sync() error
}

// New returns a production JSON logger at the given level name (debug, info, warn, error).
// Unknown level names fall back to info.
func New(level string) (Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level.SetLevel(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &logger{core.Sugar()}, nil
}

// Test returns a logger that writes to tb at debug level.
func Test(tb testing.TB) Logger {
	tb.Helper()
	return &logger{zaptest.NewLogger(tb).Sugar()}
}

// TestObserved returns a test logger plus the entries it records at lvl or above.
func TestObserved(tb testing.TB, lvl zapcore.Level) (Logger, *observer.ObservedLogs) {
	tb.Helper()
	oCore, logs := observer.New(lvl)
	observe := zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, oCore)
	})
	return &logger{zaptest.NewLogger(tb, zaptest.WrapOptions(observe)).Sugar()}, logs
}

// Nop returns a no-op Logger.
func Nop() Logger {
	return &logger{zap.New(zapcore.NewNopCore()).Sugar()}
}

type logger struct {
	s *zap.SugaredLogger
}

func (l *logger) Debugw(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *logger) Infow(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *logger) Warnw(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *logger) Errorw(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

func (l *logger) Named(name string) Logger { return &logger{l.s.Named(name)} }

func (l *logger) With(kv ...any) Logger { return &logger{l.s.With(kv...)} }

func (l *logger) Sync() error { return l.s.Sync() }
