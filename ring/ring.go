// Package ring implements the single-producer/single-consumer circular byte
// buffer that underlies both the write and read engines of a Conveyor. It
// has no locking of its own: the owning engine holds a mutex around every
// call into a Ring.
package ring

// Ring is a growable circular byte buffer. The bytes it holds represent a
// contiguous window of some larger address space; BaseOffset is the
// absolute offset corresponding to the byte at Tail (the oldest byte still
// buffered).
type Ring struct {
	buf        []byte
	head       int // next write position
	tail       int // next read position
	size       int // bytes currently stored
	capacity   int
	maxCap     int
	baseOffset int64
}

// New allocates a Ring with the given initial capacity, bounded growth at
// maxCapacity. maxCapacity is clamped up to at least capacity.
func New(capacity, maxCapacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	if maxCapacity < capacity {
		maxCapacity = capacity
	}
	return &Ring{
		buf:      make([]byte, capacity),
		capacity: capacity,
		maxCap:   maxCapacity,
	}
}

// Len returns the number of bytes currently buffered.
func (r *Ring) Len() int { return r.size }

// Cap returns the current capacity.
func (r *Ring) Cap() int { return r.capacity }

// MaxCap returns the configured maximum capacity.
func (r *Ring) MaxCap() int { return r.maxCap }

// Space returns the number of bytes that can still be written before the
// ring is full.
func (r *Ring) Space() int { return r.capacity - r.size }

// Full reports whether the ring has no space left.
func (r *Ring) Full() bool { return r.size == r.capacity }

// Empty reports whether the ring holds no bytes.
func (r *Ring) Empty() bool { return r.size == 0 }

// BaseOffset returns the absolute offset of the oldest buffered byte.
func (r *Ring) BaseOffset() int64 { return r.baseOffset }

// SetBaseOffset re-homes the ring's notion of its absolute address without
// touching its contents. Callers use this after Clear, or after draining
// bytes out-of-band (e.g. a flush that bypassed Read).
func (r *Ring) SetBaseOffset(off int64) { r.baseOffset = off }

// AdvanceBaseOffset moves the base offset forward by n, as bytes leave the
// ring from the tail end.
func (r *Ring) AdvanceBaseOffset(n int64) { r.baseOffset += n }

// Write copies as many bytes of src as fit into the remaining space,
// returning the count accepted. It never blocks and never grows the ring;
// growth is the engine's responsibility via ResizeTo.
func (r *Ring) Write(src []byte) int {
	n := len(src)
	if n > r.Space() {
		n = r.Space()
	}
	if n == 0 {
		return 0
	}
	first := r.capacity - r.head
	if first > n {
		first = n
	}
	copy(r.buf[r.head:], src[:first])
	if n > first {
		copy(r.buf[0:], src[first:n])
	}
	r.head = (r.head + n) % r.capacity
	r.size += n
	return n
}

// Read copies up to len(dst) bytes (and no more than Len()) out of the
// ring into dst, advancing tail and BaseOffset. A nil or empty dst reads
// nothing and returns 0; advancing without copying is done with Discard.
// Read returns the number of bytes delivered.
func (r *Ring) Read(dst []byte) int {
	n := len(dst)
	if n > r.size {
		n = r.size
	}
	if n == 0 {
		return 0
	}
	first := r.capacity - r.tail
	if first > n {
		first = n
	}
	copy(dst[:first], r.buf[r.tail:])
	if n > first {
		copy(dst[first:n], r.buf[0:])
	}
	r.tail = (r.tail + n) % r.capacity
	r.size -= n
	r.baseOffset += int64(n)
	return n
}

// Discard advances tail by up to n bytes without copying them out,
// returning the number actually discarded. This is the "dst is null"
// behavior spec.md describes for Read.
func (r *Ring) Discard(n int) int {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return 0
	}
	r.tail = (r.tail + n) % r.capacity
	r.size -= n
	r.baseOffset += int64(n)
	return n
}

// PeekAt copies into dst the bytes of the ring's window
// [BaseOffset, BaseOffset+Len()) that overlap [absOffset, absOffset+len(dst)),
// without advancing tail. It returns the number of bytes actually copied,
// which is 0 if absOffset is entirely outside the ring's current window.
// The caller is responsible for interpreting a short result as "not fully
// covered by this ring" and falling through to the next source.
func (r *Ring) PeekAt(absOffset int64, dst []byte) int {
	if len(dst) == 0 || r.size == 0 {
		return 0
	}
	winStart := r.baseOffset
	winEnd := r.baseOffset + int64(r.size)
	reqEnd := absOffset + int64(len(dst))
	if absOffset >= winEnd || reqEnd <= winStart {
		return 0
	}
	start := absOffset
	if start < winStart {
		start = winStart
	}
	end := reqEnd
	if end > winEnd {
		end = winEnd
	}
	n := int(end - start)
	if n <= 0 {
		return 0
	}
	skip := int(start - winStart)
	dstOff := int(start - absOffset)

	pos := (r.tail + skip) % r.capacity
	remaining := n
	written := 0
	for remaining > 0 {
		chunk := r.capacity - pos
		if chunk > remaining {
			chunk = remaining
		}
		copy(dst[dstOff+written:dstOff+written+chunk], r.buf[pos:pos+chunk])
		written += chunk
		remaining -= chunk
		pos = (pos + chunk) % r.capacity
	}
	return written
}

// ResizeTo grows the ring's capacity in place, unrolling any wrapped
// content into a fresh linear buffer. It is a no-op if newCapacity is not
// larger than the current capacity, and it never exceeds MaxCap.
func (r *Ring) ResizeTo(newCapacity int) {
	if newCapacity > r.maxCap {
		newCapacity = r.maxCap
	}
	if newCapacity <= r.capacity {
		return
	}
	fresh := make([]byte, newCapacity)
	if r.size > 0 {
		first := r.capacity - r.tail
		if first > r.size {
			first = r.size
		}
		copy(fresh[0:first], r.buf[r.tail:r.tail+first])
		if r.size > first {
			copy(fresh[first:r.size], r.buf[0:r.size-first])
		}
	}
	r.buf = fresh
	r.tail = 0
	r.head = r.size
	r.capacity = newCapacity
}

// Clear empties the ring without touching BaseOffset; the owning engine is
// responsible for re-homing BaseOffset afterward.
func (r *Ring) Clear() {
	r.head = 0
	r.tail = 0
	r.size = 0
}
