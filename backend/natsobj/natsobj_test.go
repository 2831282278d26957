package natsobj

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	url, shutdown, err := StartTestServer(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(shutdown)

	b, err := Open(context.Background(), Config{URL: url, Bucket: "conveyor-test", Key: "segment-1"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestWriteReadRoundTrip(t *testing.T) {
	b := openTestBackend(t)

	n, err := b.Write([]byte("hello nats"))
	require.NoError(t, err)
	require.Equal(t, 10, n)

	_, err = b.Seek(0, io.SeekStart)
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err = io.ReadFull(b, buf)
	require.NoError(t, err)
	require.Equal(t, "hello nats", string(buf[:n]))
}

func TestReadPastEndIsEOF(t *testing.T) {
	b := openTestBackend(t)

	buf := make([]byte, 4)
	_, err := b.Read(buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestSeekEndAfterWrite(t *testing.T) {
	b := openTestBackend(t)

	_, err := b.Write([]byte("0123456789"))
	require.NoError(t, err)

	pos, err := b.Seek(-4, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(6), pos)

	buf := make([]byte, 4)
	n, err := io.ReadFull(b, buf)
	require.NoError(t, err)
	require.Equal(t, "6789", string(buf[:n]))
}

func TestDataSurvivesReconnectViaSharedBucket(t *testing.T) {
	url, shutdown, err := StartTestServer(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(shutdown)

	b1, err := Open(context.Background(), Config{URL: url, Bucket: "shared", Key: "k"})
	require.NoError(t, err)
	_, err = b1.Write([]byte("persisted"))
	require.NoError(t, err)
	require.NoError(t, b1.Close())

	b2, err := Open(context.Background(), Config{URL: url, Bucket: "shared", Key: "k"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b2.Close() })

	buf := make([]byte, 9)
	n, err := io.ReadFull(b2, buf)
	require.NoError(t, err)
	require.Equal(t, "persisted", string(buf[:n]))
}
