// logger.go - Structured logging for the blindcash daemon
package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Logger writes leveled entries to the console, an optional log file, and
// copies WARN and above to an optional audit file.
type Logger struct {
	zl    zerolog.Logger
	audit zerolog.Logger
	files []*os.File
}

// auditWriter keeps only warnings and worse.
type auditWriter struct {
	w io.Writer
}

func (a auditWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

func (a auditWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.WarnLevel {
		return len(p), nil
	}
	return a.w.Write(p)
}

// NewLogger creates a new logger instance
func NewLogger(level string, logFile string, auditFile string) (*Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	l := &Logger{}
	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}}

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open log file")
		}
		l.files = append(l.files, file)
		writers = append(writers, file)
	}

	l.audit = zerolog.Nop()
	if auditFile != "" {
		file, err := os.OpenFile(auditFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			l.Close()
			return nil, errors.Wrap(err, "failed to open audit file")
		}
		l.files = append(l.files, file)
		writers = append(writers, auditWriter{w: file})
		l.audit = zerolog.New(file).With().Timestamp().Str("kind", "audit").Logger()
	}

	l.zl = zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(lvl).With().Timestamp().Logger()
	return l, nil
}

// Close closes the logger and its files
func (l *Logger) Close() error {
	var first error
	for _, f := range l.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.files = nil
	return first
}

// Zerolog returns the underlying logger for library components.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// Debug logs a debug-level message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

// Info logs an info-level message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

// Warn logs a warning; it also reaches the audit file when one is set.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.zl.Warn().Msgf(format, args...)
}

// Error logs an error-level message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.zl.WithLevel(zerolog.FatalLevel).Msgf(format, args...)
	l.Close()
	os.Exit(1)
}

// Audit logs an audit event
func (l *Logger) Audit(event string, details map[string]interface{}) {
	l.audit.Log().Str("event", event).Fields(details).Send()
}
