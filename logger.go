package jirapo

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// SimpleLogger writes leveled key-value lines to stderr via the standard
// log package. It is the default for Resolver warnings; inject something
// richer with WithClientLogger / WithResolverLogger.
type SimpleLogger struct {
	logger *log.Logger
}

// NewSimpleLogger creates a SimpleLogger.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{
		logger: log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (l *SimpleLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.print("DEBUG", msg, keysAndValues)
}

func (l *SimpleLogger) Info(msg string, keysAndValues ...interface{}) {
	l.print("INFO", msg, keysAndValues)
}

func (l *SimpleLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.print("WARN", msg, keysAndValues)
}

func (l *SimpleLogger) Error(msg string, keysAndValues ...interface{}) {
	l.print("ERROR", msg, keysAndValues)
}

func (l *SimpleLogger) print(level, msg string, keysAndValues []interface{}) {
	var b strings.Builder
	b.WriteString(level)
	b.WriteString(" ")
	b.WriteString(msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	l.logger.Println(b.String())
}

// zapLogger adapts a zap SugaredLogger to the Logger interface.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps a zap logger for use with this package.
func NewZapLogger(logger *zap.Logger) Logger {
	return &zapLogger{sugar: logger.Sugar()}
}

func (l *zapLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *zapLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *zapLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l *zapLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Redaction patterns. Issue keys (PROJ-123) survive the long-opaque rule
// because they contain a dash.
var (
	apiTokenPattern   = regexp.MustCompile(`ATATT[a-zA-Z0-9_\-]+`)
	emailPattern      = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	longOpaquePattern = regexp.MustCompile(`\b[a-zA-Z0-9]{24,}\b`)
)

// redactingLogger masks credentials before they reach the wrapped logger:
// API tokens, email addresses and long opaque strings that look like
// secrets.
type redactingLogger struct {
	inner Logger
}

// NewRedactingLogger wraps a logger with sensitive-data redaction. Trust
// the backend URL in logs; never trust the token next to it.
func NewRedactingLogger(inner Logger) Logger {
	return &redactingLogger{inner: inner}
}

func (l *redactingLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.Debug(redact(msg), redactValues(keysAndValues)...)
}

func (l *redactingLogger) Info(msg string, keysAndValues ...interface{}) {
	l.inner.Info(redact(msg), redactValues(keysAndValues)...)
}

func (l *redactingLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(redact(msg), redactValues(keysAndValues)...)
}

func (l *redactingLogger) Error(msg string, keysAndValues ...interface{}) {
	l.inner.Error(redact(msg), redactValues(keysAndValues)...)
}

func redact(text string) string {
	text = apiTokenPattern.ReplaceAllString(text, "[REDACTED-TOKEN]")
	text = emailPattern.ReplaceAllString(text, "[REDACTED-EMAIL]")
	text = longOpaquePattern.ReplaceAllString(text, "[REDACTED]")
	return text
}

func redactValues(keysAndValues []interface{}) []interface{} {
	out := make([]interface{}, len(keysAndValues))
	for i, v := range keysAndValues {
		if s, ok := v.(string); ok && i%2 == 1 {
			out[i] = redact(s)
		} else {
			out[i] = v
		}
	}
	return out
}
