// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"

	// LevelDisabled turns logging off entirely.
	LevelDisabled LogLevel = "disabled"
)

// Component names used by the service objects of this module.
const (
	ComponentClient     = "catalog-client"
	ComponentCache      = "cache"
	ComponentHTTPCache  = "http-cache"
	ComponentCatalog    = "catalog"
	ComponentMoveType   = "move-type"
	ComponentEvolution  = "evolution"
	ComponentAggregate  = "aggregate"
	ComponentPagination = "pagination"
	ComponentCollection = "collection"
	ComponentDex        = "dex"
	ComponentRateLimit  = "rate-limit"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts LogLevel to zerolog.Level. Unknown values map to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off", "none":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// OrDefault returns *logger when set, otherwise a component logger derived
// from the global logger.
func OrDefault(logger *zerolog.Logger, component string) zerolog.Logger {
	if logger != nil {
		return *logger
	}
	return NewLogger(component)
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss/shared, key, TTL)
//   - Fan-out branches of a composite fetch
//   - Move-type semaphore waits
//
// Info: Normal operation events
//   - Retried requests that eventually succeeded
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts (429, 5xx, network, timeout)
//   - Degraded sub-fetches (abilities, species, lineage, move types)
//   - HTTP cache (Redis) errors
//
// Error: Error conditions requiring attention
//   - Retries exhausted on a transport failure
//   - Base record fetch failures
//   - Configuration errors
//
// Context Fields:
//   - path: upstream resource path
//   - status: HTTP status code
//   - attempt: retry attempt number
//   - error_class: client, server, rate_limit, network, timeout
//   - key: cache key
//   - variant: lite or full
//   - id: entity id
