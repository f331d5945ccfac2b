package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger creates a structured JSON logger writing to stdout.
// Production default: info. Set via SWAP_LOG_LEVEL env var.
func NewLogger(component string) zerolog.Logger {
	level := parseLogLevel(os.Getenv("SWAP_LOG_LEVEL"))

	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// NewLoggerWithLevel creates a logger with an explicit level.
func NewLoggerWithLevel(component string, level zerolog.Level) zerolog.Logger {
	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

func parseLogLevel(s string) zerolog.Level {
	switch s {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
