// Package logger defines the logging surface shared by the sync core and
// its backends.
//
// The interface is deliberately small: leveled messages with alternating
// key/value args, as in [log/slog]. Adapters for zerolog and zap live in
// the zero and zap subpackages.
package logger

import (
	"log/slog"
)

// Logger is the minimal leveled logger consumed across the module. Args are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// New returns a Logger backed by a [log/slog] handler.
func New(h slog.Handler) Logger {
	return &slogLogger{logger: slog.New(h)}
}

type slogLogger struct {
	logger *slog.Logger
}

func (l *slogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

func (l *slogLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

func (l *slogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

func (l *slogLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// Nop returns a Logger that discards everything. It is the default wherever
// a Logger is optional.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
