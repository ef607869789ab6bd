// Package logging configures the process logger: human-readable console
// output on a terminal, JSON otherwise, with optional rotation to a file.
package logging

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation bounds for the optional log file.
const (
	maxLogSizeMB  = 10
	maxLogBackups = 3
	maxLogAgeDays = 28
)

// Options controls logger construction.
type Options struct {
	// Level is one of trace, debug, info, warn, error. Empty or
	// unrecognized values fall back to info.
	Level string
	// File, when set, adds a rotating JSON log file alongside the
	// console output.
	File string
	// NoColor forces plain output even on a terminal.
	NoColor bool
}

// Init builds the process logger and installs it as the zerolog global.
// Console output goes to stderr so report output on stdout stays clean.
func Init(opts Options) zerolog.Logger {
	logger := New(consoleWriter(opts), opts)
	log.Logger = logger
	return logger
}

// New builds a logger writing to the given console writer, layering in the
// rotating file writer when one is configured.
func New(console io.Writer, opts Options) zerolog.Logger {
	out := console
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxLogSizeMB,
			MaxBackups: maxLogBackups,
			MaxAge:     maxLogAgeDays,
		}
		out = zerolog.MultiLevelWriter(console, rotating)
	}

	return zerolog.New(out).
		Level(parseLevel(opts.Level)).
		With().
		Timestamp().
		Str("app", "boardsync").
		Logger()
}

// consoleWriter picks pretty output on a terminal, JSON everywhere else.
func consoleWriter(opts Options) io.Writer {
	if !opts.NoColor && term.IsTerminal(int(os.Stderr.Fd())) {
		return zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}
	return os.Stderr
}

func parseLevel(raw string) zerolog.Level {
	level, err := zerolog.ParseLevel(raw)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// WithRequestID returns a sub-logger tagging every event with the request id.
func WithRequestID(logger zerolog.Logger, requestID string) zerolog.Logger {
	return logger.With().Str("request_id", requestID).Logger()
}

// redactedHeaders carry credentials and never appear in logs verbatim.
var redactedHeaders = []string{"Authorization", "Proxy-Authorization"}

// RedactHeaders returns a copy of h safe for logging: credential-bearing
// header values are replaced with REDACTED.
func RedactHeaders(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	safe := h.Clone()
	for _, name := range redactedHeaders {
		if safe.Get(name) != "" {
			safe.Set(name, "REDACTED")
		}
	}
	return safe
}
