package conveyor

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of an instance's counters. SPEC_FULL.md
// §4 fixes the read-and-reset race spec.md §9 flags: the engine keeps
// monotonic cumulative sums internally and Stats computes averages from
// them without mutating anything, so concurrent readers never see a torn
// reset. ResetStats restores the old semantics for callers that want it.
type Stats struct {
	BytesWritten uint64
	BytesRead    uint64

	AvgWriteLatencyMs float64
	AvgReadLatencyMs  float64

	// ShortWrites and ShortWriteBytesLost track spec.md §9's documented
	// anomaly: a short write from the backend drops the unwritten suffix
	// from the ring rather than retrying it in place.
	ShortWrites         uint64
	ShortWriteBytesLost uint64

	GrowthEvents uint64

	LastErrorCode string

	// LastFlushChecksum is the blake2b-256 checksum of the most recently
	// flushed segment, hex-encoded. Empty until the first flush lands.
	LastFlushChecksum string
}

type statsBlock struct {
	bytesWritten uint64
	bytesRead    uint64

	writeLatencyNs uint64
	writeCount     uint64
	readLatencyNs  uint64
	readCount      uint64

	shortWrites         uint64
	shortWriteBytesLost uint64
	growthEvents        uint64

	mu            sync.Mutex
	lastErrorCode string
	lastChecksum  string
}

func (s *statsBlock) recordWrite(n int, lat time.Duration) {
	atomic.AddUint64(&s.bytesWritten, uint64(n))
	atomic.AddUint64(&s.writeLatencyNs, uint64(lat.Nanoseconds()))
	atomic.AddUint64(&s.writeCount, 1)
}

func (s *statsBlock) recordRead(n int, lat time.Duration) {
	atomic.AddUint64(&s.bytesRead, uint64(n))
	atomic.AddUint64(&s.readLatencyNs, uint64(lat.Nanoseconds()))
	atomic.AddUint64(&s.readCount, 1)
}

func (s *statsBlock) recordShortWrite(lost int) {
	atomic.AddUint64(&s.shortWrites, 1)
	atomic.AddUint64(&s.shortWriteBytesLost, uint64(lost))
}

func (s *statsBlock) recordGrowth() {
	atomic.AddUint64(&s.growthEvents, 1)
}

func (s *statsBlock) setLastError(code string) {
	s.mu.Lock()
	s.lastErrorCode = code
	s.mu.Unlock()
}

func (s *statsBlock) setChecksum(hex string) {
	s.mu.Lock()
	s.lastChecksum = hex
	s.mu.Unlock()
}

func (s *statsBlock) snapshot() Stats {
	writeCount := atomic.LoadUint64(&s.writeCount)
	readCount := atomic.LoadUint64(&s.readCount)

	var avgWrite, avgRead float64
	if writeCount > 0 {
		avgWrite = float64(atomic.LoadUint64(&s.writeLatencyNs)) / float64(writeCount) / 1e6
	}
	if readCount > 0 {
		avgRead = float64(atomic.LoadUint64(&s.readLatencyNs)) / float64(readCount) / 1e6
	}

	s.mu.Lock()
	code := s.lastErrorCode
	checksum := s.lastChecksum
	s.mu.Unlock()

	return Stats{
		BytesWritten:        atomic.LoadUint64(&s.bytesWritten),
		BytesRead:           atomic.LoadUint64(&s.bytesRead),
		AvgWriteLatencyMs:   avgWrite,
		AvgReadLatencyMs:    avgRead,
		ShortWrites:         atomic.LoadUint64(&s.shortWrites),
		ShortWriteBytesLost: atomic.LoadUint64(&s.shortWriteBytesLost),
		GrowthEvents:        atomic.LoadUint64(&s.growthEvents),
		LastErrorCode:       code,
		LastFlushChecksum:   checksum,
	}
}

func (s *statsBlock) reset() {
	atomic.StoreUint64(&s.bytesWritten, 0)
	atomic.StoreUint64(&s.bytesRead, 0)
	atomic.StoreUint64(&s.writeLatencyNs, 0)
	atomic.StoreUint64(&s.writeCount, 0)
	atomic.StoreUint64(&s.readLatencyNs, 0)
	atomic.StoreUint64(&s.readCount, 0)
	atomic.StoreUint64(&s.shortWrites, 0)
	atomic.StoreUint64(&s.shortWriteBytesLost, 0)
	atomic.StoreUint64(&s.growthEvents, 0)
}
