// Package logger builds the structured logger shared by receiptd components.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Options configures New.
type Options struct {
	Level  string
	Format string // text, json, logfmt
	File   string
	Prefix string
}

// New creates a logger. An empty File logs to stderr. The returned closer
// releases the log file, if any.
func New(opts Options) (*log.Logger, io.Closer, error) {
	var (
		output io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, err
		}
		output, closer = file, file
	}

	return NewWithWriter(output, opts), closer, nil
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, opts Options) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		Level:           ParseLevel(opts.Level),
		Prefix:          opts.Prefix,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       parseFormatter(opts.Format),
	})
	return logger
}

// ParseLevel converts a level name, defaulting to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

func parseFormatter(format string) log.Formatter {
	switch strings.ToLower(format) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
