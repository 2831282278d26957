package conveyor

import (
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// Option mutates a Config before Open is called, for the rarely-set knobs
// that don't deserve a positional Config field. See SPEC_FULL.md §2.3.1.
type Option func(*Config)

// WithLogger overrides the default slog.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithTracer overrides the default no-op otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Config) { c.Tracer = t }
}

// WithSharedLock opts into serialized backend access across Conveyor
// instances sharing one backend handle. Omitting this leaves
// cross-instance ordering undefined, per spec.md §9.
func WithSharedLock(l sync.Locker) Option {
	return func(c *Config) { c.SharedLock = l }
}
