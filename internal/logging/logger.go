// Package logging provides the structured logger used across the service.
// It is a thin wrapper over zerolog: a package-level logger configured once
// at startup, plus a context carrier so request-scoped fields (request id,
// user id) ride along through the call chain without threading an explicit
// *zerolog.Logger parameter everywhere.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls how the global logger is constructed.
type Config struct {
	// Level is one of: debug, info, warn, error.
	Level string
	// Format is "console" (human-readable, for local dev) or "json".
	Format string
	Output io.Writer
}

// DefaultConfig returns console-formatted, info-level logging to stderr.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: os.Stderr,
	}
}

var log zerolog.Logger

func init() {
	log = build(DefaultConfig())
}

// Init configures the global logger. Call once at process startup before
// any other package logs.
func Init(cfg Config) {
	log = build(cfg)
}

func build(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var writer io.Writer = out
	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// L returns the global logger.
func L() *zerolog.Logger {
	return &log
}

type ctxKey struct{}

// WithLogger attaches a logger (typically one enriched with request-scoped
// fields via With()) to ctx.
func WithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached to ctx, or the global logger if
// none was attached.
func FromContext(ctx context.Context) *zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return &l
	}
	return &log
}

// WithRequestID returns a context carrying a logger tagged with requestID,
// used by the API middleware so log lines from one HTTP request can be
// correlated. The request id is not propagated into outbox records or
// message headers, so materializer log lines are not tagged with it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	l := log.With().Str("request_id", requestID).Logger()
	return WithLogger(ctx, l)
}
