package wsremote

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

// Store is the minimal shape wsremoted needs from whatever is actually
// storing the bytes — a plain io.ReadWriteSeeker, which backend/localfile's
// Backend and *os.File both satisfy.
type Store interface {
	io.Reader
	io.Writer
	io.Seeker
}

// ServerConfig configures the wsremoted RPC handler.
type ServerConfig struct {
	// Secret validates the bearer JWT on the upgrade request. Only HMAC
	// tokens are accepted, mirroring pkg/web/middleware/auth/jwt.go's
	// default signing-method restriction against alg-confusion attacks.
	Secret string
}

// Handler serves the websocket RPC protocol against one Store. All frames
// from all connections are applied to the single Store under one mutex,
// matching the fact that the Store itself has one cursor.
type Handler struct {
	cfg      ServerConfig
	store    Store
	upgrader websocket.Upgrader

	mu sync.Mutex
}

// NewHandler builds a Handler serving store.
func NewHandler(cfg ServerConfig, store Store) *Handler {
	return &Handler{
		cfg:   cfg,
		store: store,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements http.Handler: validates the bearer token, upgrades
// the connection, then serves RPC frames until the client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.authenticate(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var req Frame
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		resp := h.handle(req)
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func (h *Handler) authenticate(r *http.Request) error {
	if h.cfg.Secret == "" {
		return nil
	}
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return fmt.Errorf("wsremote: missing bearer token")
	}

	_, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(h.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return fmt.Errorf("wsremote: invalid token: %w", err)
	}
	return nil
}

func (h *Handler) handle(req Frame) Frame {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch req.Op {
	case OpWrite:
		n, err := h.store.Write(req.Data)
		if err != nil {
			return Frame{ID: req.ID, Op: req.Op, Err: err.Error()}
		}
		return Frame{ID: req.ID, Op: req.Op, N: n}
	case OpRead:
		buf := make([]byte, req.Len)
		n, err := h.store.Read(buf)
		if err != nil && err != io.EOF {
			return Frame{ID: req.ID, Op: req.Op, Err: err.Error()}
		}
		return Frame{ID: req.ID, Op: req.Op, Data: buf[:n], EOF: err == io.EOF}
	case OpSeek:
		pos, err := h.store.Seek(req.Offset, req.Whence)
		if err != nil {
			return Frame{ID: req.ID, Op: req.Op, Err: err.Error()}
		}
		return Frame{ID: req.ID, Op: req.Op, Pos: pos}
	default:
		return Frame{ID: req.ID, Op: req.Op, Err: fmt.Sprintf("unknown op %q", req.Op)}
	}
}
