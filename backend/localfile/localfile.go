// Package localfile adapts a local, positional, byte-addressable file into
// the three backend callables a conveyor.Conveyor expects: Write, Read,
// Seek. It is the simplest of the module's backend adapters and the one
// most directly grounded on the teacher's pkg/appendlog.fsStore, trading
// that store's append-only segment/rotation model for plain positional
// access at an *os.File cursor, since the shim's backend contract is
// cursor-positioned Write/Read/Seek rather than append-only.
package localfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

// Config configures the file-backed backend.
type Config struct {
	// Path is the file to open. It is created if it does not exist.
	Path string
	// Sync, when true, calls File.Sync after every Write so every flush
	// cycle is durable before it returns, mirroring the teacher's
	// DurabilityFsync mode.
	Sync bool
}

// DefaultConfig returns a conservative default: durable writes.
func DefaultConfig(path string) Config {
	return Config{Path: path, Sync: true}
}

// Backend is a *os.File wrapped with the counters conveyor's backend
// contract doesn't otherwise surface.
type Backend struct {
	cfg  Config
	file *os.File

	writtenBytes int64 // atomic
	readBytes    int64 // atomic
	seekCount    int64 // atomic
}

// Open opens or creates the backing file at cfg.Path.
func Open(cfg Config) (*Backend, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("localfile: path is required")
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("localfile: open %s: %w", cfg.Path, err)
	}
	return &Backend{cfg: cfg, file: f}, nil
}

// Write implements conveyor.WriteFunc: a positional write at the file's
// current cursor, matching the write engine's flush-then-seek protocol.
func (b *Backend) Write(p []byte) (int, error) {
	n, err := b.file.Write(p)
	atomic.AddInt64(&b.writtenBytes, int64(n))
	if err != nil {
		return n, fmt.Errorf("localfile: write: %w", err)
	}
	if b.cfg.Sync {
		if err := b.file.Sync(); err != nil {
			return n, fmt.Errorf("localfile: sync: %w", err)
		}
	}
	return n, nil
}

// Read implements conveyor.ReadFunc: a positional read at the file's
// current cursor. io.EOF propagates unwrapped so the read engine's
// io.EOF == io.EOF check keeps working.
func (b *Backend) Read(p []byte) (int, error) {
	n, err := b.file.Read(p)
	atomic.AddInt64(&b.readBytes, int64(n))
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("localfile: read: %w", err)
	}
	return n, err
}

// Seek implements conveyor.SeekFunc.
func (b *Backend) Seek(offset int64, whence int) (int64, error) {
	atomic.AddInt64(&b.seekCount, 1)
	pos, err := b.file.Seek(offset, whence)
	if err != nil {
		return pos, fmt.Errorf("localfile: seek: %w", err)
	}
	return pos, nil
}

// Close closes the underlying file.
func (b *Backend) Close() error {
	return b.file.Close()
}

// Counters is a snapshot of this backend's activity, independent of
// anything the Conveyor tracks in its own Stats.
type Counters struct {
	WrittenBytes int64
	ReadBytes    int64
	SeekCount    int64
}

// Snapshot returns the current counters.
func (b *Backend) Snapshot() Counters {
	return Counters{
		WrittenBytes: atomic.LoadInt64(&b.writtenBytes),
		ReadBytes:    atomic.LoadInt64(&b.readBytes),
		SeekCount:    atomic.LoadInt64(&b.seekCount),
	}
}
