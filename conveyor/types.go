// Package conveyor implements a buffered I/O shim over a slow,
// byte-addressable storage backend. One Conveyor binds a backend handle, an
// access mode, a triple of backend callables and two ring-buffer capacity
// configurations, and exposes a synchronous, file-like Write/Read/Seek/
// Flush/Close interface whose latency is dominated by memory copies rather
// than backend round trips.
package conveyor

import (
	"io"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// AccessMode selects which of the write and read engines an instance owns.
type AccessMode int

const (
	// ReadOnly: no write engine; Write returns ErrBadMode.
	ReadOnly AccessMode = iota
	// WriteOnly: no read engine; Read returns ErrBadMode.
	WriteOnly
	// ReadWrite: both engines exist.
	ReadWrite
	// Append: both engines exist; every flush repositions the backend to
	// end-of-stream before writing, regardless of the last Seek.
	Append
)

func (m AccessMode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	case ReadWrite:
		return "read-write"
	case Append:
		return "append"
	default:
		return "unknown"
	}
}

// CanRead reports whether this mode owns a read engine.
func (m AccessMode) CanRead() bool { return m == ReadOnly || m == ReadWrite || m == Append }

// CanWrite reports whether this mode owns a write engine.
func (m AccessMode) CanWrite() bool { return m == WriteOnly || m == ReadWrite || m == Append }

// IsAppend reports whether every flush must reseek to end-of-stream first.
func (m AccessMode) IsAppend() bool { return m == Append }

// Whence values match io.Seeker's (io.SeekStart, io.SeekCurrent, io.SeekEnd)
// so callers can pass a standard Go seek constant straight through.
type Whence = int

// WriteFunc performs a positional write at the backend's current cursor.
// It returns the number of bytes actually written; a negative count (or a
// non-nil error) signals a backend failure.
type WriteFunc func(p []byte) (int, error)

// ReadFunc performs a positional read at the backend's current cursor.
// Zero bytes with a nil error signals end-of-stream.
type ReadFunc func(p []byte) (int, error)

// SeekFunc repositions the backend's cursor and returns the new absolute
// offset.
type SeekFunc func(offset int64, whence Whence) (int64, error)

// Ops is the triple of backend callables a Conveyor drives. The caller
// binds these to whatever handle the backend needs; Conveyor never sees the
// handle directly except as an opaque logging/tracing tag (Config.Handle).
type Ops struct {
	Write WriteFunc
	Read  ReadFunc
	Seek  SeekFunc
}

func (o Ops) validate(mode AccessMode) error {
	if mode.CanWrite() && o.Write == nil {
		return ErrInvalidArg
	}
	if mode.CanRead() && o.Read == nil {
		return ErrInvalidArg
	}
	if o.Seek == nil {
		return ErrInvalidArg
	}
	return nil
}

// Capacity bounds a ring's initial and maximum size in bytes.
type Capacity struct {
	Initial int
	Max     int
}

func (c Capacity) normalized() Capacity {
	if c.Initial <= 0 {
		c.Initial = defaultInitialCapacity
	}
	if c.Max <= 0 {
		c.Max = defaultMaxCapacity
	}
	if c.Max < c.Initial {
		c.Max = c.Initial
	}
	return c
}

const (
	defaultInitialCapacity = 64 * 1024
	defaultMaxCapacity     = 8 * 1024 * 1024
)

// Config is the single factory input for Open, replacing the positional-arg
// and config-struct factories that coexisted in earlier revisions of this
// shim (see DESIGN.md, Open Question 2).
type Config struct {
	// Handle is an opaque tag identifying the backend target, used only
	// for logging and tracing; Conveyor never dereferences it.
	Handle any

	Mode AccessMode
	Ops  Ops

	WriteCapacity Capacity
	ReadCapacity  Capacity

	// StartOffset is the logical/physical offset the backend cursor is
	// already at when Open is called (0 for a fresh backend).
	StartOffset int64

	Logger *slog.Logger
	Tracer trace.Tracer

	// SharedLock, when set, is held around every backend call (flush,
	// prefetch, seek) so two Conveyor instances pointed at the same
	// backend handle can opt into serialized ordering. See spec.md §9 and
	// SPEC_FULL.md §4: omitted, ordering across instances is undefined.
	SharedLock sync.Locker
}

func (c *Config) setDefaults() {
	c.WriteCapacity = c.WriteCapacity.normalized()
	c.ReadCapacity = c.ReadCapacity.normalized()
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tracer == nil {
		c.Tracer = trace.NewNoopTracerProvider().Tracer("conveyor")
	}
}

// SeekStart, SeekCurrent and SeekEnd re-export the io package's whence constants for callers
// that want them without importing io directly.
const (
	SeekStart   = io.SeekStart
	SeekCurrent = io.SeekCurrent
	SeekEnd     = io.SeekEnd
)
