// Package sclog provides structured logging with request/session correlation.
package sclog

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carrying correlation fields.
type ContextKey string

const (
	TraceIDKey   ContextKey = "trace_id"
	UserIDKey    ContextKey = "user_id"
	RequestIDKey ContextKey = "request_id"
	SessionIDKey ContextKey = "session_id"
)

// Logger wraps logrus.Logger with session-core correlation fields.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a new Logger instance for the named service.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv builds a logger from LOG_LEVEL/LOG_FORMAT, defaulting to info/json.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext attaches every correlation field present on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if v := GetTraceID(ctx); v != "" {
		entry = entry.WithField("trace_id", v)
	}
	if v := GetUserID(ctx); v != "" {
		entry = entry.WithField("user_id", v)
	}
	if v := GetRequestID(ctx); v != "" {
		entry = entry.WithField("request_id", v)
	}
	if v := GetSessionID(ctx); v != "" {
		entry = entry.WithField("session_id", v)
	}
	return entry
}

func WithTraceID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, TraceIDKey, v)
}

func GetTraceID(ctx context.Context) string { return getString(ctx, TraceIDKey) }

func WithUserID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, UserIDKey, v)
}

func GetUserID(ctx context.Context) string { return getString(ctx, UserIDKey) }

func WithRequestID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, RequestIDKey, v)
}

func GetRequestID(ctx context.Context) string { return getString(ctx, RequestIDKey) }

func WithSessionID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, SessionIDKey, v)
}

func GetSessionID(ctx context.Context) string { return getString(ctx, SessionIDKey) }

func getString(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// LogSessionEvent logs a session lifecycle transition.
func (l *Logger) LogSessionEvent(ctx context.Context, event, state string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"event": event,
		"state": state,
	})
	if err != nil {
		entry.WithError(err).Warn("session event")
		return
	}
	entry.Debug("session event")
}

// LogLeakEvent logs a leak-detector reap or suspect observation.
func (l *Logger) LogLeakEvent(ctx context.Context, sessionID string, ageMS int64, suspectOnly bool) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"session_id": sessionID,
		"age_ms":     ageMS,
	})
	if suspectOnly {
		entry.Warn("session suspected of leaking")
		return
	}
	entry.Warn("session reaped as leaked")
}

// LogBreakerTransition logs a circuit breaker state change.
func (l *Logger) LogBreakerTransition(ctx context.Context, breaker, from, to string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"breaker": breaker,
		"from":    from,
		"to":      to,
	}).Info("circuit breaker transition")
}

var defaultLogger *Logger

// InitDefault initializes the package-level default logger.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the package-level logger, lazily creating a basic one.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("session-core", "info", "json")
	}
	return defaultLogger
}
