package wsremote

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Config configures a client Backend.
type Config struct {
	// URL is the wsremoted server's websocket URL, e.g. "ws://host:port/rpc".
	URL string
	// Token is the bearer JWT sent in the upgrade request's Authorization
	// header.
	Token string
	// RequestTimeout bounds how long a single call waits for its reply.
	RequestTimeout time.Duration
}

// Backend is the websocket RPC client adapter. The write engine's flusher
// and the read engine's prefetcher may call it concurrently from different
// goroutines (spec.md §4's two independent background workers), so a single
// websocket connection is shared behind a read loop that dispatches
// responses back to the caller that's waiting on each request ID.
type Backend struct {
	conn           *websocket.Conn
	requestTimeout time.Duration

	writeMu sync.Mutex // serializes concurrent WriteJSON calls on the one connection

	mu      sync.Mutex
	pending map[string]chan Frame

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// Open dials the wsremoted server and authenticates the connection.
func Open(cfg Config) (*Backend, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(cfg.URL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("wsremote: unauthorized: %w", err)
		}
		return nil, fmt.Errorf("wsremote: dial %s: %w", cfg.URL, err)
	}

	b := &Backend{
		conn:           conn,
		requestTimeout: cfg.RequestTimeout,
		pending:        make(map[string]chan Frame),
		done:           make(chan struct{}),
	}
	go b.readLoop()
	return b, nil
}

func (b *Backend) readLoop() {
	defer close(b.done)
	for {
		var fr Frame
		if err := b.conn.ReadJSON(&fr); err != nil {
			b.failAllPending(err)
			return
		}
		b.mu.Lock()
		ch, ok := b.pending[fr.ID]
		if ok {
			delete(b.pending, fr.ID)
		}
		b.mu.Unlock()
		if ok {
			ch <- fr
		}
	}
}

func (b *Backend) failAllPending(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.pending {
		ch <- Frame{ID: id, Err: err.Error()}
		delete(b.pending, id)
	}
}

func (b *Backend) call(req Frame) (Frame, error) {
	req.ID = newRequestID()
	reply := make(chan Frame, 1)

	b.mu.Lock()
	b.pending[req.ID] = reply
	b.mu.Unlock()

	b.writeMu.Lock()
	err := b.conn.WriteJSON(req)
	b.writeMu.Unlock()
	if err != nil {
		b.mu.Lock()
		delete(b.pending, req.ID)
		b.mu.Unlock()
		return Frame{}, fmt.Errorf("wsremote: send %s: %w", req.Op, err)
	}

	select {
	case fr := <-reply:
		if fr.Err != "" {
			return Frame{}, errors.New(fr.Err)
		}
		return fr, nil
	case <-time.After(b.requestTimeout):
		b.mu.Lock()
		delete(b.pending, req.ID)
		b.mu.Unlock()
		return Frame{}, fmt.Errorf("wsremote: %s timed out after %s", req.Op, b.requestTimeout)
	case <-b.done:
		return Frame{}, fmt.Errorf("wsremote: connection closed")
	}
}

// Write implements conveyor.WriteFunc.
func (b *Backend) Write(p []byte) (int, error) {
	fr, err := b.call(Frame{Op: OpWrite, Data: p})
	if err != nil {
		return 0, err
	}
	return fr.N, nil
}

// Read implements conveyor.ReadFunc.
func (b *Backend) Read(p []byte) (int, error) {
	fr, err := b.call(Frame{Op: OpRead, Len: len(p)})
	if err != nil {
		return 0, err
	}
	n := copy(p, fr.Data)
	if n == 0 && fr.EOF {
		return 0, io.EOF
	}
	if fr.EOF {
		return n, io.EOF
	}
	return n, nil
}

// Seek implements conveyor.SeekFunc.
func (b *Backend) Seek(offset int64, whence int) (int64, error) {
	fr, err := b.call(Frame{Op: OpSeek, Offset: offset, Whence: whence})
	if err != nil {
		return 0, err
	}
	return fr.Pos, nil
}

// Close closes the websocket connection.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.conn.Close()
	})
	return b.closeErr
}

func newRequestID() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}
