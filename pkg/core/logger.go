package core

import (
	"context"
	"io"
	"os"

	"github.com/fluxorio/fluxpool/pkg/core/concurrency"
	"github.com/sirupsen/logrus"
)

// Logger provides structured logging capabilities
// This abstraction allows swapping logging implementations
type Logger interface {
	// Error logs an error message
	Error(args ...interface{})

	// Errorf logs a formatted error message
	Errorf(format string, args ...interface{})

	// Warn logs a warning message
	Warn(args ...interface{})

	// Warnf logs a formatted warning message
	Warnf(format string, args ...interface{})

	// Info logs an informational message
	Info(args ...interface{})

	// Infof logs a formatted informational message
	Infof(format string, args ...interface{})

	// Debug logs a debug message
	Debug(args ...interface{})

	// Debugf logs a formatted debug message
	Debugf(format string, args ...interface{})

	// WithFields returns a logger that adds fields to every entry
	WithFields(fields map[string]interface{}) Logger

	// WithContext returns a logger carrying the request id and task of ctx
	WithContext(ctx context.Context) Logger
}

// Every Logger can be handed to a thread pool.
var _ concurrency.Logger = Logger(nil)

// logrusLogger implements Logger on a logrus entry
type logrusLogger struct {
	entry *logrus.Entry
}

// NewDefaultLogger creates a human-readable text logger on stderr
func NewDefaultLogger() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return NewLogrusLogger(l)
}

// NewJSONLogger creates a logger that writes one JSON object per entry to w
// (stdout when w is nil)
func NewJSONLogger(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{})
	return NewLogrusLogger(l)
}

// NewLogrusLogger wraps an existing logrus logger
func NewLogrusLogger(l *logrus.Logger) Logger {
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// SetLevel parses level ("debug", "info", ...) and applies it to logger if it is
// logrus-backed.
func SetLevel(logger Logger, level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	if l, ok := logger.(*logrusLogger); ok {
		l.entry.Logger.SetLevel(lvl)
	}
	return nil
}

func (l *logrusLogger) Error(args ...interface{}) { l.entry.Error(args...) }
func (l *logrusLogger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *logrusLogger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *logrusLogger) Debug(args ...interface{}) { l.entry.Debug(args...) }

func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *logrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithContext adds request_id, task_id and task fields when ctx carries them.
func (l *logrusLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	fields := logrus.Fields{}
	if id := GetRequestID(ctx); id != "" {
		fields["request_id"] = id
	}
	if info, ok := concurrency.TaskInfoFromContext(ctx); ok {
		fields["task_id"] = info.ID
		fields["task"] = info.Name
		fields["pool"] = info.Pool
	}
	entry := l.entry.WithContext(ctx)
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	return &logrusLogger{entry: entry}
}
