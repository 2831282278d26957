package conveyor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/conveyorio/conveyor/ring"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Conveyor is one instance of the buffered I/O shim: a backend handle, an
// access mode, a triple of backend callables, and up to two engines. See
// spec.md §3 for the full invariant list.
type Conveyor struct {
	id uuid.UUID

	handle any
	mode   AccessMode
	ops    Ops

	logger *slog.Logger
	tracer trace.Tracer

	sharedLock sync.Locker

	// Position/state block (spec.md §3). logicalOffset is the single
	// shared fd-style cursor both engines advance (write moves it forward
	// by bytes enqueued, read by bytes delivered) and that Seek
	// repositions; it is what the next Write or Read targets, matching the
	// glossary's singular "application's view of the current position."
	// physicalOffset is the backend's one real cursor. Both are atomics
	// since Write/Read may be called concurrently from different threads.
	logicalOffset  atomic.Int64
	physicalOffset atomic.Int64
	generation     atomic.Uint64

	stickyErr atomic.Pointer[BackendError]
	closed    atomic.Bool

	write *writeEngine
	read  *readEngine

	stats statsBlock

	closeOnce sync.Once
}

// ID returns the instance's generated identifier, used to correlate log
// lines and trace spans for this Conveyor across its lifetime.
func (c *Conveyor) ID() uuid.UUID { return c.id }

// Open constructs a Conveyor, starts whichever background workers the
// access mode permits, and returns. This is the one real constructor
// (SPEC_FULL.md §2.3.1 resolves spec.md §9's dual-factory duplication);
// New is functional-option sugar over the same path.
func Open(cfg Config) (*Conveyor, error) {
	if err := cfg.Ops.validate(cfg.Mode); err != nil {
		return nil, fmt.Errorf("conveyor: open: %w", err)
	}
	cfg.setDefaults()

	c := &Conveyor{
		id:         uuid.New(),
		handle:     cfg.Handle,
		mode:       cfg.Mode,
		ops:        cfg.Ops,
		logger:     cfg.Logger,
		tracer:     cfg.Tracer,
		sharedLock: cfg.SharedLock,
	}
	c.logicalOffset.Store(cfg.StartOffset)
	c.physicalOffset.Store(cfg.StartOffset)

	if cfg.Mode.CanWrite() {
		c.write = newWriteEngine(c, cfg.WriteCapacity, cfg.StartOffset)
	}
	if cfg.Mode.CanRead() {
		c.read = newReadEngine(c, cfg.ReadCapacity, cfg.StartOffset)
	}

	if c.write != nil {
		c.write.start()
	}
	if c.read != nil {
		c.read.start()
	}

	c.logger.Info("conveyor opened", "instance", c.id, "mode", cfg.Mode.String())
	return c, nil
}

// New applies functional options on top of a Config and calls Open. It
// exists purely as ergonomic sugar (spec.md §1 calls the typed wrapper an
// out-of-scope external collaborator); Open remains the real entry point.
func New(cfg Config, opts ...Option) (*Conveyor, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	return Open(cfg)
}

// Write enqueues n bytes for background flushing. See writeEngine.Write.
func (c *Conveyor) Write(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, fmt.Errorf("conveyor: write: %w", ErrClosed)
	}
	if c.write == nil {
		return 0, fmt.Errorf("conveyor: write: %w", ErrBadMode)
	}
	return c.write.Write(p)
}

// Read delivers up to len(p) bytes, sourced from the write ring (snoop), the
// read ring, or the backend, in that priority order. See readEngine.Read.
func (c *Conveyor) Read(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, fmt.Errorf("conveyor: read: %w", ErrClosed)
	}
	if c.read == nil {
		return 0, fmt.Errorf("conveyor: read: %w", ErrBadMode)
	}
	return c.read.Read(p)
}

// Flush blocks until the write ring has drained and its contents have been
// handed to the backend, or until a sticky error latches.
func (c *Conveyor) Flush() error {
	if c.closed.Load() {
		return fmt.Errorf("conveyor: flush: %w", ErrClosed)
	}
	if c.write == nil {
		return nil
	}
	return c.write.Flush()
}

// Seek repositions the instance, invalidating both rings. See spec.md §4.4.
func (c *Conveyor) Seek(offset int64, whence Whence) (int64, error) {
	if c.closed.Load() {
		return -1, fmt.Errorf("conveyor: seek: %w", ErrClosed)
	}
	if err := c.stickyErrorOrNil(); err != nil {
		return -1, err
	}

	// Fixed lock order (write before read) shared by every code path that
	// nests both engines' mutexes; see DESIGN.md "lock ordering".
	if c.write != nil {
		c.write.mu.Lock()
		defer c.write.mu.Unlock()
	}
	if c.read != nil {
		c.read.mu.Lock()
		defer c.read.mu.Unlock()
	}

	newPos, err := c.doSeek(offset, whence, "seek")
	if err != nil {
		return -1, err
	}

	c.logicalOffset.Store(newPos)
	c.physicalOffset.Store(newPos)
	c.generation.Add(1)

	// A ring whose buffered window already covers newPos still holds
	// exactly the bytes a subsequent read at newPos needs (a write at
	// newPos first drains it; see writeEngine.Write), so clearing it would
	// destroy data without reason; only clear a ring the reposition
	// actually moved outside of. This is what lets
	// "seek back into a pending write, then read" observe that write via
	// snoop even though the write hasn't been flushed yet.
	if c.write != nil {
		if !windowContains(c.write.ring, newPos) {
			c.write.ring.Clear()
			c.write.ring.SetBaseOffset(newPos)
		}
		c.write.producerCond.Broadcast()
		c.write.consumerCond.Broadcast()
	}
	if c.read != nil {
		// invalidateTo fast-forwards the ring if newPos still falls inside
		// its buffered window (preserving it lets "seek back into a
		// pending write, then read" observe that write via snoop even
		// though the write hasn't been flushed yet) or clears and marks it
		// stale otherwise.
		c.read.invalidateTo(newPos)
	}

	c.logger.Debug("seek invalidated rings", "instance", c.id, "new_offset", newPos)
	return newPos, nil
}

// Stats returns a snapshot of the instance's counters without mutating
// them; see Stats and SPEC_FULL.md §4.
func (c *Conveyor) Stats() Stats { return c.stats.snapshot() }

// ResetStats zeroes the cumulative counters, restoring the reset-on-read
// behavior spec.md originally described.
func (c *Conveyor) ResetStats() { c.stats.reset() }

// Len returns the current number of buffered bytes per direction
// (write, read), for diagnostics; either is 0 if that engine is absent.
func (c *Conveyor) Len() (writeLen, readLen int) {
	if c.write != nil {
		c.write.mu.Lock()
		writeLen = c.write.ring.Len()
		c.write.mu.Unlock()
	}
	if c.read != nil {
		c.read.mu.Lock()
		readLen = c.read.ring.Len()
		c.read.mu.Unlock()
	}
	return
}

// Cap returns the current ring capacities per direction.
func (c *Conveyor) Cap() (writeCap, readCap int) {
	if c.write != nil {
		c.write.mu.Lock()
		writeCap = c.write.ring.Cap()
		c.write.mu.Unlock()
	}
	if c.read != nil {
		c.read.mu.Lock()
		readCap = c.read.ring.Cap()
		c.read.mu.Unlock()
	}
	return
}

// Close drains the write engine, stops both workers and joins them. Close
// is not retryable; calling it twice is safe but the second call is a
// no-op.
func (c *Conveyor) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.write != nil {
			_ = c.write.Flush()
			c.write.stop()
		}
		if c.read != nil {
			c.read.stop()
		}
		c.logger.Info("conveyor closed", "instance", c.id)
	})
	return nil
}

func (c *Conveyor) stickyErrorOrNil() error {
	if e := c.stickyErr.Load(); e != nil {
		return e
	}
	return nil
}

// latch stores the first backend failure observed by either engine. It is
// idempotent: only the first call wins, matching spec.md §3's "once
// non-zero, poisons every subsequent call" rule.
func (c *Conveyor) latch(op string, err error) *BackendError {
	be := backendErr(op, err)
	if c.stickyErr.CompareAndSwap(nil, be) {
		c.stats.setLastError(be.Error())
		c.logger.Error("backend call failed, instance poisoned", "instance", c.id, "op", op, "error", err)
		return be
	}
	return c.stickyErr.Load()
}

func (c *Conveyor) physicalMatches(want int64) bool {
	return c.physicalOffset.Load() == want
}

// windowContains reports whether pos falls within a ring's current
// buffered window [BaseOffset, BaseOffset+Len()).
func windowContains(r *ring.Ring, pos int64) bool {
	start := r.BaseOffset()
	end := start + int64(r.Len())
	return pos >= start && pos < end
}

// invalidateReadRing is the write side of spec.md §4.3's cross-engine
// interaction: every successful enqueue into the write ring bumps the
// generation counter the prefetcher checks before trusting a speculative
// result, and re-homes the read ring to the new logical offset — per
// spec.md §4.2, a write marks the read ring stale and signals the
// prefetcher so a ring-copy read can never deliver bytes from in front of
// a write that just landed (those bytes belong to the old window; the
// write superseded them). It must never be called while holding w.mu AND
// attempt to acquire read.mu's lock path that nests back into write.mu; it
// only takes read.mu here, which is consistent with the fixed
// write-before-read order since the caller (writeEngine.Write) already
// holds write.mu and this is the terminal step of that critical section.
func (c *Conveyor) invalidateReadRing() {
	if c.read == nil {
		return
	}
	c.generation.Add(1)
	pos := c.logicalOffset.Load()
	c.read.mu.Lock()
	c.read.invalidateTo(pos)
	c.read.mu.Unlock()
}

// doSeek issues the backend seek under a trace span, honoring the optional
// shared lock (SPEC_FULL.md §4's answer to spec.md §9's multi-instance
// sharing question).
func (c *Conveyor) doSeek(offset int64, whence Whence, reason string) (int64, error) {
	ctx, span := c.tracer.Start(context.Background(), "conveyor.seek",
		trace.WithAttributes(
			attribute.String("conveyor.instance", c.id.String()),
			attribute.String("conveyor.reason", reason),
			attribute.Int64("conveyor.offset", offset),
		))
	defer span.End()
	_ = ctx

	if c.sharedLock != nil {
		c.sharedLock.Lock()
		defer c.sharedLock.Unlock()
	}
	newPos, err := c.ops.Seek(offset, whence)
	if err != nil {
		span.RecordError(err)
		return -1, c.latch("seek", err)
	}
	return newPos, nil
}

func (c *Conveyor) traceBackendCall(ctx context.Context, name string, n int) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("conveyor.instance", c.id.String()),
		attribute.Int("conveyor.bytes", n),
	))
}
