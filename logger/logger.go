// Package logger configures the zerolog logger shared by all components.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// InitWithOptions builds the root logger. With a non-empty logFile, JSON
// records are appended to that file. Otherwise records go to stderr, either
// as JSON or, when pretty is set, through a console writer. Stdout is never
// used so streamed model text stays unmixed with log output.
//
// The level comes from the LOG_LEVEL environment variable (trace, debug,
// info, warn, error) and defaults to info.
func InitWithOptions(logFile string, pretty bool) (zerolog.Logger, error) {
	sink, describe, err := openSink(logFile, pretty)
	if err != nil {
		return zerolog.Logger{}, err
	}

	log := zerolog.New(sink).
		Level(levelFromEnv()).
		With().
		Timestamp().
		Logger()

	describe(log.Info()).Msg("Logger initialized")
	return log, nil
}

// openSink picks the output writer and returns a function that annotates the
// startup record with where logs are going.
func openSink(logFile string, pretty bool) (io.Writer, func(*zerolog.Event) *zerolog.Event, error) {
	if logFile != "" {
		//nolint:gosec // G304: the log file path is operator-chosen
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", logFile, err)
		}
		return file, func(e *zerolog.Event) *zerolog.Event {
			return e.Str("path", logFile)
		}, nil
	}
	if pretty {
		return zerolog.ConsoleWriter{Out: os.Stderr}, func(e *zerolog.Event) *zerolog.Event {
			return e.Str("output", "stderr").Str("format", "pretty")
		}, nil
	}
	return os.Stderr, func(e *zerolog.Event) *zerolog.Event {
		return e.Str("output", "stderr")
	}, nil
}

func levelFromEnv() zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
