// Package logging configures zerolog for pokeref: one global logger set up
// from configuration, and component loggers derived from it.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

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
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty switches from JSON lines to human-readable console output.
	Pretty bool

	// Service is attached to every line as "service". Empty omits it.
	Service string

	// Output receives the log lines. Nil means os.Stderr.
	Output io.Writer
}

// DefaultConfig returns JSON logging at info level for the pokeref service.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Service: "pokeref",
		Output:  os.Stderr,
	}
}

// Setup configures the global zerolog logger that NewLogger derives from
// and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level.ZerologLevel())

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.TimeOnly}
	}

	fields := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		fields = fields.Str("service", cfg.Service)
	}

	log.Logger = fields.Logger()
	return log.Logger
}

// ZerologLevel maps the level onto zerolog. Unknown levels log at info.
func (l LogLevel) ZerologLevel() zerolog.Level {
	parsed, err := ParseLogLevel(string(l))
	if err != nil {
		return zerolog.InfoLevel
	}
	switch parsed {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLogLevel validates a configured level name.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithRequestID returns a copy of ctx carrying a logger tagged with the
// request ID, for FromContext further down the call chain.
func WithRequestID(ctx context.Context, id string) context.Context {
	return log.With().Str("request_id", id).Logger().WithContext(ctx)
}

// FromContext returns the request scoped logger stored in ctx, or a
// component logger if ctx carries none.
func FromContext(ctx context.Context, component string) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l.With().Str("component", component).Logger()
	}
	return NewLogger(component)
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Query cache operations (hit/miss, key, shared load)
//   - Procedure calls and fan-out progress
//   - Persistent store reads and writes
//
// Info: Normal operation events
//   - Completed aggregations (kind, entries, duration)
//   - HTTP requests served
//   - Invalidations
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts
//   - Store errors (query served without persistence)
//   - Failed prefetches
//   - Client errors (4xx) on the HTTP surface
//
// Error: Error conditions requiring attention
//   - Failed upstream requests (after retries)
//   - Failed aggregations
//   - Configuration errors
//
// Context Fields:
//   - component: Emitting component (set by NewLogger)
//   - request_id: HTTP request ID
//   - kind: Resource kind (abilities, berries, items, moves, types, pokemon)
//   - name: Resource name
//   - endpoint: PokeAPI endpoint label (e.g. "berry:list")
//   - status_code: HTTP status code
//   - error_class: Error classification (client, server, rate_limit, network, validation)
//   - key: Query cache key
//   - duration: Request or aggregation duration
