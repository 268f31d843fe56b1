// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var Logger = zerolog.Nop()

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	SetGlobalLogger(Logger)
}

// SetGlobalLogger installs logger as the fallback for zerolog.Ctx.
func SetGlobalLogger(logger zerolog.Logger) {
	Logger = logger
	zerolog.DefaultContextLogger = &Logger
}

// ParseLevel maps LOG_LEVEL values onto zerolog levels. Unknown values mean info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates a JSON logger writing to output (stdout when nil).
func New(level string, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stdout
	}
	return zerolog.New(output).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// Initialize builds the service logger and installs it globally. In
// production it appends to logs/app.log when that file can be opened.
func Initialize(level, environment string) zerolog.Logger {
	var output io.Writer = os.Stdout

	if environment == "production" {
		if err := os.MkdirAll("logs", 0o755); err == nil {
			if file, err := os.OpenFile(filepath.Join("logs", "app.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				output = file
			}
		}
	}

	logger := New(level, output)
	SetGlobalLogger(logger)
	return logger
}

func Info() *zerolog.Event { return Logger.Info() }
