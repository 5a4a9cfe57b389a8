// Package logging configures the global zerolog logger and emits the
// one-line startup summary.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// LevelEnv selects the log level: debug, info, warn, error (default: info).
	LevelEnv = "DRAWFAST_LOG_LEVEL"
	// FormatEnv set to "json" keeps raw JSON lines instead of console output.
	FormatEnv = "DRAWFAST_LOG_FORMAT"
)

// Init initializes the global logger from environment variables.
func Init() {
	InitWith(os.Stderr, os.Getenv(LevelEnv), os.Getenv(FormatEnv))
}

// InitWith configures the global logger to write to w.
func InitWith(w io.Writer, level, format string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	if strings.EqualFold(format, "json") {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"})
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// EnvOrDefault returns the value of the named environment variable, or
// defaultVal if the variable is empty or unset.
func EnvOrDefault(envVar, defaultVal string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return defaultVal
}
