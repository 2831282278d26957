package conveyor

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/conveyorio/conveyor/ring"
)

// readEngine owns the consumer-side drain path (Read) and the background
// prefetcher goroutine, per spec.md §4.3.
type readEngine struct {
	c *Conveyor

	mu           sync.Mutex
	producerCond *sync.Cond // signaled when the ring gains space, or on stale/stop
	consumerCond *sync.Cond // signaled when the ring gains data, or a write lands (snoop)

	ring *ring.Ring

	stopped  bool
	poisoned bool
	eof      bool // backend reported EOF on the last prefetch
	stale    bool // generation advanced since the ring's contents were sourced

	generation int64 // prefetcher's last-known generation, captured outside the lock

	readWaitStreak int
	scratch        []byte

	wg sync.WaitGroup
}

func newReadEngine(c *Conveyor, cap Capacity, startOffset int64) *readEngine {
	r := &readEngine{
		c:       c,
		ring:    ring.New(cap.Initial, cap.Max),
		scratch: make([]byte, cap.Initial),
	}
	r.ring.SetBaseOffset(startOffset)
	r.producerCond = sync.NewCond(&r.mu)
	r.consumerCond = sync.NewCond(&r.mu)
	return r
}

func (r *readEngine) start() {
	r.wg.Add(1)
	go r.prefetcherLoop()
}

func (r *readEngine) stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.producerCond.Broadcast()
	r.consumerCond.Broadcast()
	r.wg.Wait()
}

// Read delivers up to len(p) bytes, per spec.md §4.3's priority order:
// first a snoop into the write ring for bytes this instance itself wrote
// but hasn't flushed yet, then bytes already in the read ring (blocking on
// the prefetcher to pull more from the backend when it is empty), then a
// second snoop for whatever the read ring left unsatisfied. The two snoop calls
// bracket the read-ring critical section rather than nesting inside it,
// so readEngine never holds r.mu while acquiring the write engine's mutex
// (see DESIGN.md "lock ordering").
func (r *readEngine) Read(p []byte) (int, error) {
	if err := r.c.stickyErrorOrNil(); err != nil {
		return -1, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	total := 0
	logical := r.c.logicalOffset.Load()

	if n := r.snoopWriteRing(logical, p); n > 0 {
		total += n
		newLogical := r.c.logicalOffset.Add(int64(n))
		r.mu.Lock()
		r.invalidateTo(newLogical)
		r.mu.Unlock()
	}

	r.mu.Lock()
	for total < len(p) {
		if r.stopped {
			break
		}
		if err := r.c.stickyErrorOrNil(); err != nil {
			r.mu.Unlock()
			return total, err
		}

		if r.ring.Len() > 0 {
			n := r.ring.Read(p[total:])
			total += n
			r.c.logicalOffset.Add(int64(n))
			r.readWaitStreak = 0
			r.producerCond.Signal()
			continue
		}

		if r.eof {
			break
		}
		if total > 0 {
			// Return what we have rather than blocking for more; matches
			// io.Reader's "may return fewer bytes than requested" contract.
			break
		}

		r.readWaitStreak++
		r.growIfWarranted(len(p) - total)
		r.producerCond.Signal() // nudge prefetcher in case it is waiting
		r.consumerCond.Wait()
	}
	eof := r.eof && r.ring.Empty()
	r.mu.Unlock()

	logical = r.c.logicalOffset.Load()
	if n := r.snoopWriteRing(logical, p[total:]); n > 0 {
		total += n
		newLogical := r.c.logicalOffset.Add(int64(n))
		r.mu.Lock()
		r.invalidateTo(newLogical)
		r.mu.Unlock()
	}

	if total == 0 && eof {
		return 0, io.EOF
	}
	if err := r.c.stickyErrorOrNil(); err != nil && total == 0 {
		return 0, err
	}
	return total, nil
}

// snoopWriteRing serves bytes for the window [absOffset, absOffset+len(dst))
// directly out of the write engine's ring, for the read-your-writes
// guarantee of spec.md §4.3. It only fills a prefix of dst: PeekAt returns
// 0 once the requested window stops overlapping the write ring, and this
// helper never looks past the first gap, since a gap means the next byte
// must come from the backend (once flushed) rather than from memory.
func (r *readEngine) snoopWriteRing(absOffset int64, dst []byte) int {
	w := r.c.write
	if w == nil || len(dst) == 0 {
		return 0
	}
	w.mu.Lock()
	n := w.ring.PeekAt(absOffset, dst)
	w.mu.Unlock()

	// PeekAt fills dst starting at whatever offset within dst overlaps the
	// ring's window; a snoop is only useful to our caller as a contiguous
	// prefix starting at absOffset, so reject a result that doesn't start
	// there (the overlap began later in the window).
	if n == 0 {
		return 0
	}
	return r.contiguousPrefix(absOffset, dst, n)
}

// contiguousPrefix confirms absOffset itself fell inside the write ring's
// window at peek time. PeekAt fills dst starting at whatever index
// overlaps the window; if absOffset is before the window, that index is
// greater than 0 and the result isn't usable as a prefix starting at
// absOffset, since bytes at absOffset would have to come from elsewhere.
func (r *readEngine) contiguousPrefix(absOffset int64, dst []byte, peeked int) int {
	w := r.c.write
	w.mu.Lock()
	winStart := w.ring.BaseOffset()
	w.mu.Unlock()
	if absOffset < winStart {
		return 0
	}
	return peeked
}

// invalidateTo ensures the ring's buffered window starts no earlier than
// pos: bytes in front of pos are superseded (served via snoop, or
// overwritten by a write) and discarded, and anything outside the
// remaining window is dropped entirely with the ring marked stale so the
// prefetcher re-homes and refetches from pos, per spec.md §4.2's
// "marks the read ring stale, and signals the prefetcher." Caller holds
// r.mu. Shared by Seek (which may move pos in either direction) and by
// write/snoop invalidation (which only ever move pos forward).
func (r *readEngine) invalidateTo(pos int64) {
	if windowContains(r.ring, pos) {
		r.ring.Discard(int(pos - r.ring.BaseOffset()))
	} else {
		r.ring.Clear()
		r.ring.SetBaseOffset(pos)
		r.stale = true
	}
	r.eof = false
	r.producerCond.Broadcast()
	r.consumerCond.Broadcast()
}

// growIfWarranted mirrors writeEngine's adaptive growth policy for the read
// ring: pressure from repeated full-wait cycles under sequential access
// grows the ring so the prefetcher can stay further ahead. Caller holds
// r.mu.
func (r *readEngine) growIfWarranted(requested int) {
	if r.ring.Cap() >= r.ring.MaxCap() {
		return
	}
	pressure := r.readWaitStreak >= growthPressureThreshold || requested > r.ring.Cap()
	if !pressure {
		return
	}
	old := r.ring.Cap()
	newCap := nextCapacity(old, r.ring.MaxCap(), requested)
	r.ring.ResizeTo(newCap)
	if len(r.scratch) < r.ring.Cap() {
		r.scratch = make([]byte, r.ring.Cap())
	}
	r.readWaitStreak = 0
	r.c.stats.recordGrowth()
	r.c.logger.Info("read ring grown", "instance", r.c.id, "old_capacity", old, "new_capacity", r.ring.Cap())
}

// prefetcherLoop is the single background task filling this engine's ring
// from the backend. It captures the generation counter before issuing the
// backend call (which happens outside r.mu) and discards the result if the
// generation moved in the meantime — a Seek happened mid-flight and the
// bytes it just fetched no longer correspond to the ring's current
// window, per spec.md §4.4.
func (r *readEngine) prefetcherLoop() {
	defer r.wg.Done()

	for {
		r.mu.Lock()
		for r.ring.Space() == 0 && !r.stopped && !r.stale {
			r.producerCond.Wait()
		}
		if r.stopped {
			r.mu.Unlock()
			return
		}
		if r.stale {
			r.ring.Clear()
			r.ring.SetBaseOffset(r.c.logicalOffset.Load())
			r.stale = false
			r.eof = false
		}
		if r.poisoned {
			r.mu.Unlock()
			r.consumerCond.Broadcast()
			// Degraded mode: wait for stop. A stale wake-up re-homes the
			// ring above and comes back here, since poisoned is never
			// cleared.
			r.mu.Lock()
			for !r.stopped && !r.stale {
				r.producerCond.Wait()
			}
			r.mu.Unlock()
			continue
		}

		space := r.ring.Space()
		if space == 0 {
			r.mu.Unlock()
			continue
		}
		if len(r.scratch) < space {
			r.scratch = make([]byte, space)
		}
		buf := r.scratch[:space]
		target := r.ring.BaseOffset() + int64(r.ring.Len())
		gen := r.c.generation.Load()
		r.mu.Unlock()

		n, err := r.fetchFromBackend(target, buf)

		r.mu.Lock()
		if r.stopped {
			r.mu.Unlock()
			return
		}
		if r.c.generation.Load() != gen {
			// Seek landed while this fetch was in flight; drop the result
			// and let the next loop iteration re-home against the new
			// window.
			r.mu.Unlock()
			continue
		}
		if err != nil {
			if err == io.EOF {
				r.eof = true
			} else {
				r.poisoned = true
			}
			r.mu.Unlock()
			r.consumerCond.Broadcast()
			continue
		}
		if n > 0 {
			r.ring.Write(buf[:n])
		} else {
			r.eof = true
		}
		r.mu.Unlock()
		r.consumerCond.Broadcast()
	}
}

// fetchFromBackend performs exactly one backend read cycle outside the
// engine's lock.
func (r *readEngine) fetchFromBackend(target int64, buf []byte) (int, error) {
	c := r.c

	if !c.physicalMatches(target) {
		if _, err := c.doSeek(target, io.SeekStart, "prefetch-seek"); err != nil {
			return 0, err
		}
		c.physicalOffset.Store(target)
	}

	if c.sharedLock != nil {
		c.sharedLock.Lock()
	}
	ctx, span := c.traceBackendCall(context.Background(), "conveyor.prefetch", len(buf))
	start := time.Now()
	n, err := c.ops.Read(buf)
	lat := time.Since(start)
	span.End()
	_ = ctx
	if c.sharedLock != nil {
		c.sharedLock.Unlock()
	}

	if err != nil && err != io.EOF {
		span.RecordError(err)
		return n, c.latch("read", err)
	}

	if n > 0 {
		c.physicalOffset.Store(target + int64(n))
		c.stats.recordRead(n, lat)
	}
	if err == io.EOF {
		return n, io.EOF
	}
	return n, nil
}
