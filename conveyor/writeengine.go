package conveyor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/conveyorio/conveyor/ring"
	"golang.org/x/crypto/blake2b"
)

// writeEngine owns the producer-side enqueue path (Write, Flush) and the
// background flusher goroutine, per spec.md §4.2.
type writeEngine struct {
	c *Conveyor

	mu           sync.Mutex
	producerCond *sync.Cond // signaled when the ring gains space or I/O completes
	consumerCond *sync.Cond // signaled when the ring gains data, or on force-flush/stop

	ring *ring.Ring

	stopped    bool
	forceFlush bool
	poisoned   bool

	fullWaitStreak int
	scratch        []byte

	wg sync.WaitGroup
}

func newWriteEngine(c *Conveyor, cap Capacity, startOffset int64) *writeEngine {
	w := &writeEngine{
		c:       c,
		ring:    ring.New(cap.Initial, cap.Max),
		scratch: make([]byte, cap.Initial),
	}
	w.ring.SetBaseOffset(startOffset)
	w.producerCond = sync.NewCond(&w.mu)
	w.consumerCond = sync.NewCond(&w.mu)
	return w
}

func (w *writeEngine) start() {
	w.wg.Add(1)
	go w.flusherLoop()
}

// Write is the producer operation of spec.md §4.2: it blocks only while
// the ring is full and growth isn't warranted, copying as many bytes as
// fit on each iteration until n bytes are accepted, the engine stops, or a
// sticky error latches.
func (w *writeEngine) Write(p []byte) (int, error) {
	if err := w.c.stickyErrorOrNil(); err != nil {
		return -1, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	total := 0
	requested := len(p)
	for total < len(p) {
		if w.stopped {
			break
		}
		if err := w.c.stickyErrorOrNil(); err != nil {
			return total, err
		}

		// The ring's bytes are flushed to [BaseOffset, BaseOffset+Len()), so
		// new bytes are only appended when that window ends at the logical
		// offset; otherwise the ring is drained first and re-homed there.
		if pos := w.c.logicalOffset.Load(); pos != w.ring.BaseOffset()+int64(w.ring.Len()) {
			if !w.ring.Empty() {
				w.forceFlush = true
				w.consumerCond.Signal()
				w.producerCond.Wait()
				continue
			}
			w.ring.SetBaseOffset(pos)
		}

		remaining := p[total:]
		if w.ring.Space() == 0 {
			if w.growIfWarranted(requested) {
				continue
			}
			w.fullWaitStreak++
			w.producerCond.Wait()
			continue
		}

		n := w.ring.Write(remaining)
		total += n
		w.c.logicalOffset.Add(int64(n))
		w.fullWaitStreak = 0
		w.consumerCond.Signal()
		w.c.invalidateReadRing()
	}
	return total, nil
}

// growIfWarranted consults the adaptive growth policy (spec.md §4.2) and
// grows the ring in place if either the pressure streak or the current
// request size crosses the threshold. Caller holds w.mu. Returns true if
// it grew the ring (caller should retry the copy).
func (w *writeEngine) growIfWarranted(requested int) bool {
	if w.ring.Cap() >= w.ring.MaxCap() {
		return false
	}
	pressure := w.fullWaitStreak >= growthPressureThreshold || requested > w.ring.Cap()
	if !pressure {
		return false
	}
	old := w.ring.Cap()
	newCap := nextCapacity(old, w.ring.MaxCap(), requested)
	w.ring.ResizeTo(newCap)
	if len(w.scratch) < w.ring.Cap() {
		w.scratch = make([]byte, w.ring.Cap())
	}
	w.fullWaitStreak = 0
	w.c.stats.recordGrowth()
	w.c.logger.Info("write ring grown", "instance", w.c.id, "old_capacity", old, "new_capacity", w.ring.Cap())
	return true
}

// Flush sets the force-flush flag, wakes the flusher, and blocks until the
// ring drains and its bytes have been handed to the backend, or until the
// engine stops or a sticky error latches.
func (w *writeEngine) Flush() error {
	if err := w.c.stickyErrorOrNil(); err != nil {
		return err
	}

	w.mu.Lock()
	w.forceFlush = true
	w.consumerCond.Signal()
	for !w.ring.Empty() && !w.stopped {
		if err := w.c.stickyErrorOrNil(); err != nil {
			w.mu.Unlock()
			return err
		}
		w.producerCond.Wait()
	}
	w.mu.Unlock()

	return w.c.stickyErrorOrNil()
}

func (w *writeEngine) stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.producerCond.Broadcast()
	w.consumerCond.Broadcast()
	w.wg.Wait()
}

// flusherLoop is the single background task draining this engine's ring.
// It loops until stop && ring.empty (spec.md §4.5's per-engine state
// machine). Once poisoned, it keeps draining the ring into the void so
// producers never deadlock against a backend that is never going to
// accept more data (spec.md §4.2's "drain-and-discard" fallback).
//
// The bytes being flushed stay in the ring — visible to snoop — for the
// full duration of the backend call: flushToBackend only peeks them into
// scratch, so a concurrent Read's snoop can still serve them while the
// (possibly slow) backend write is in flight. They are only removed once
// the attempt (success, short write, or failure) is known, matching
// spec.md §4.3's "read-your-writes holds regardless of flush state."
func (w *writeEngine) flusherLoop() {
	defer w.wg.Done()

	for {
		w.mu.Lock()
		for w.ring.Empty() && !w.forceFlush && !w.stopped {
			w.consumerCond.Wait()
		}
		if w.stopped && w.ring.Empty() {
			w.mu.Unlock()
			return
		}

		n := w.ring.Len()
		w.forceFlush = false
		if n == 0 {
			w.mu.Unlock()
			w.producerCond.Signal()
			continue
		}

		if len(w.scratch) < n {
			w.scratch = make([]byte, n)
		}
		buf := w.scratch[:n]
		target := w.ring.BaseOffset()
		w.ring.PeekAt(target, buf) // copy without removing; stays snoopable

		poisoned := w.poisoned
		w.mu.Unlock()

		if poisoned {
			w.mu.Lock()
			w.ring.Discard(n)
			w.mu.Unlock()
			w.producerCond.Signal()
			continue
		}

		w.flushToBackend(target, buf)

		w.mu.Lock()
		w.ring.Discard(n)
		w.mu.Unlock()
		w.producerCond.Signal()
	}
}

// flushToBackend performs exactly one backend write cycle outside the
// engine's lock, per spec.md §4.2, then re-acquires the lock to record the
// result.
func (w *writeEngine) flushToBackend(target int64, buf []byte) {
	c := w.c
	dest := target

	if c.mode.IsAppend() {
		end, err := c.doSeek(0, io.SeekEnd, "flush-append-seek")
		if err != nil {
			w.mu.Lock()
			w.poisoned = true
			w.mu.Unlock()
			return
		}
		dest = end
	} else if !c.physicalMatches(dest) {
		if _, err := c.doSeek(dest, io.SeekStart, "flush-seek"); err != nil {
			w.mu.Lock()
			w.poisoned = true
			w.mu.Unlock()
			return
		}
	}

	if c.sharedLock != nil {
		c.sharedLock.Lock()
	}
	ctx, span := c.traceBackendCall(context.Background(), "conveyor.flush", len(buf))
	start := time.Now()
	k, err := c.ops.Write(buf)
	lat := time.Since(start)
	span.End()
	_ = ctx
	if c.sharedLock != nil {
		c.sharedLock.Unlock()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		c.latch("write", err)
		w.poisoned = true
		return
	}
	if k < 0 {
		c.latch("write", fmt.Errorf("backend write returned negative count %d", k))
		w.poisoned = true
		return
	}

	c.physicalOffset.Store(dest + int64(k))
	c.stats.recordWrite(k, lat)
	sum := blake2b.Sum256(buf[:k])
	c.stats.setChecksum(fmt.Sprintf("%x", sum))

	if k < len(buf) {
		lost := len(buf) - k
		c.stats.recordShortWrite(lost)
		c.logger.Warn("backend short write, suffix dropped from ring",
			"instance", c.id, "requested", len(buf), "written", k, "bytes_lost", lost)
	}
}
