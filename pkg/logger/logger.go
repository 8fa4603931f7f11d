// Package logger provides structured logging for the chip bank service,
// backed by logrus. Services hold a *Logger and default to NewDefault when
// none is injected.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string
	// Format is "json" or "text". Defaults to text.
	Format string
}

// Logger wraps a logrus entry so chained field helpers keep returning the
// wrapper type.
type Logger struct {
	*logrus.Entry
}

// New constructs a logger from the given configuration.
func New(cfg LoggingConfig) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &Logger{Entry: logrus.NewEntry(base)}
}

// NewDefault returns an info-level text logger tagged with the component name.
func NewDefault(component string) *Logger {
	return New(LoggingConfig{}).WithField("component", component)
}

// WithField returns a logger with the field attached.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}

// WithFields returns a logger with all fields attached.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithFields(logrus.Fields(fields))}
}

// WithError returns a logger with the error attached under the "error" key.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Entry: l.Entry.WithError(err)}
}
