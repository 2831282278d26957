package wsremote

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory io.ReadWriteSeeker for exercising the RPC
// protocol without a real file.
type memStore struct {
	data   []byte
	cursor int64
}

func (m *memStore) Write(p []byte) (int, error) {
	end := m.cursor + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	n := copy(m.data[m.cursor:end], p)
	m.cursor += int64(n)
	return n, nil
}

func (m *memStore) Read(p []byte) (int, error) {
	if m.cursor >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.cursor:])
	m.cursor += int64(n)
	return n, nil
}

func (m *memStore) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = m.cursor + offset
	case io.SeekEnd:
		pos = int64(len(m.data)) + offset
	}
	m.cursor = pos
	return pos, nil
}

func signToken(t *testing.T, secret string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "test-client"})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func startServer(t *testing.T, secret string, store Store) string {
	t.Helper()
	h := NewHandler(ServerConfig{Secret: secret}, store)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWriteReadSeekRoundTrip(t *testing.T) {
	store := &memStore{}
	url := startServer(t, "sekrit", store)
	token := signToken(t, "sekrit")

	b, err := Open(Config{URL: url, Token: token, RequestTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	n, err := b.Write([]byte("hello remote"))
	require.NoError(t, err)
	require.Equal(t, 12, n)

	_, err = b.Seek(0, io.SeekStart)
	require.NoError(t, err)

	buf := make([]byte, 12)
	got, err := io.ReadFull(b, buf)
	require.NoError(t, err)
	require.Equal(t, "hello remote", string(buf[:got]))
}

func TestRejectsMissingToken(t *testing.T) {
	store := &memStore{}
	url := startServer(t, "sekrit", store)

	_, err := Open(Config{URL: url, RequestTimeout: 2 * time.Second})
	require.Error(t, err)
}

func TestRejectsWrongSecret(t *testing.T) {
	store := &memStore{}
	url := startServer(t, "sekrit", store)
	badToken := signToken(t, "wrong-secret")

	_, err := Open(Config{URL: url, Token: badToken, RequestTimeout: 2 * time.Second})
	require.Error(t, err)
}

func TestReadPastEndReportsEOF(t *testing.T) {
	store := &memStore{}
	url := startServer(t, "", store)

	b, err := Open(Config{URL: url, RequestTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	buf := make([]byte, 4)
	_, err = b.Read(buf)
	require.ErrorIs(t, err, io.EOF)
}
