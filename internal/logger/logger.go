package logger

import (
	"os"
	"strings"
	"time"

	"github.com/piholeup/piholeup/internal/config"
	"github.com/rs/zerolog"
)

// New builds the process-wide logger from the logging configuration.
// The debug flag forces DEBUG regardless of the configured level so the
// command echo of external invocations becomes visible.
func New(cfg *config.LoggingConfig) zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "2006-01-02 15:04:05",
	}

	levelStr := strings.ToLower(cfg.Level)
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Debug {
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(consoleWriter).
		With().
		Timestamp().
		Str("service", "piholeup").
		Logger()

	return logger
}
