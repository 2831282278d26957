package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	r := New(16, 16)
	n := r.Write([]byte("hello"))
	require.Equal(t, 5, n)
	require.Equal(t, 5, r.Len())

	dst := make([]byte, 5)
	n = r.Read(dst)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(dst))
	require.True(t, r.Empty())
}

func TestWriteFullReturnsPartial(t *testing.T) {
	r := New(4, 4)
	n := r.Write([]byte("abcdef"))
	require.Equal(t, 4, n)
	require.True(t, r.Full())
	require.Equal(t, 0, r.Write([]byte("z")))
}

func TestWrapAround(t *testing.T) {
	r := New(8, 8)
	require.Equal(t, 6, r.Write([]byte("abcdef")))
	dst := make([]byte, 4)
	require.Equal(t, 4, r.Read(dst))
	require.Equal(t, "abcd", string(dst))

	// head is now at 6, tail at 4, size 2. Writing 5 more bytes wraps.
	require.Equal(t, 5, r.Write([]byte("ghijk")))
	require.Equal(t, 7, r.Len())

	out := make([]byte, 7)
	require.Equal(t, 7, r.Read(out))
	require.Equal(t, "efghijk", string(out))
}

func TestDiscard(t *testing.T) {
	r := New(8, 8)
	r.Write([]byte("abcdef"))
	n := r.Discard(3)
	require.Equal(t, 3, n)
	require.Equal(t, 3, r.Len())
	require.Equal(t, int64(3), r.BaseOffset())

	dst := make([]byte, 3)
	r.Read(dst)
	require.Equal(t, "def", string(dst))
}

func TestPeekAtOverlap(t *testing.T) {
	r := New(16, 16)
	r.SetBaseOffset(100)
	r.Write([]byte("0123456789"))

	dst := make([]byte, 4)
	n := r.PeekAt(102, dst)
	require.Equal(t, 4, n)
	require.Equal(t, "2345", string(dst))
	// PeekAt must not advance tail.
	require.Equal(t, 10, r.Len())
}

func TestPeekAtPartialOverlapAtTail(t *testing.T) {
	r := New(16, 16)
	r.SetBaseOffset(100)
	r.Write([]byte("0123456789"))

	dst := make([]byte, 6)
	// window [98,104) overlaps ring [100,110) only in [100,104)
	n := r.PeekAt(98, dst)
	require.Equal(t, 4, n)
	require.Equal(t, "0123", string(dst[2:6]))
}

func TestPeekAtNoOverlap(t *testing.T) {
	r := New(16, 16)
	r.SetBaseOffset(100)
	r.Write([]byte("0123456789"))

	dst := make([]byte, 4)
	require.Equal(t, 0, r.PeekAt(200, dst))
	require.Equal(t, 0, r.PeekAt(50, dst))
}

func TestResizeWhileWrapped(t *testing.T) {
	r := New(10, 100)
	require.Equal(t, 8, r.Write([]byte("11111111")))
	dst := make([]byte, 5)
	require.Equal(t, 5, r.Read(dst))
	// head=8, tail=5, size=3
	require.Equal(t, 4, r.Write([]byte("2222")))
	// head=(8+4)%10=2, tail=5, size=7 -> wrapped (head < tail)
	require.Equal(t, 7, r.Len())

	r.ResizeTo(50)
	require.Equal(t, 50, r.Cap())
	require.Equal(t, 7, r.Len())

	out := make([]byte, 7)
	require.Equal(t, 7, r.Read(out))
	require.Equal(t, "1112222", string(out))
}

func TestResizeNeverExceedsMaxCapacity(t *testing.T) {
	r := New(10, 20)
	r.ResizeTo(1000)
	require.Equal(t, 20, r.Cap())
}

func TestResizeNeverShrinks(t *testing.T) {
	r := New(10, 20)
	r.ResizeTo(15)
	require.Equal(t, 15, r.Cap())
	r.ResizeTo(12)
	require.Equal(t, 15, r.Cap())
}

// TestWrappedGrowthScenario mirrors spec.md §8 scenario 7: a ring that
// wraps under sustained pressure and then grows while wrapped must unroll
// its wrapped content into the correct logical order, with room for
// everything still pending.
func TestWrappedGrowthScenario(t *testing.T) {
	r := New(100, 500)

	ones := make([]byte, 80)
	for i := range ones {
		ones[i] = '1'
	}
	require.Equal(t, 80, r.Write(ones))

	drained := make([]byte, 50)
	require.Equal(t, 50, r.Read(drained))
	require.Equal(t, 30, r.Len())

	twos := make([]byte, 40)
	for i := range twos {
		twos[i] = '2'
	}
	require.Equal(t, 40, r.Write(twos))
	require.Equal(t, 70, r.Len())

	r.ResizeTo(500) // forces growth while wrapped (head=20 < tail=50)
	require.Equal(t, 500, r.Cap())
	require.Equal(t, 70, r.Len())

	threes := make([]byte, 200)
	for i := range threes {
		threes[i] = '3'
	}
	require.Equal(t, 200, r.Write(threes))
	require.Equal(t, 270, r.Len())

	out := make([]byte, 270)
	require.Equal(t, 270, r.Read(out))
	require.Equal(t, string(ones[50:]), string(out[0:30]))
	require.Equal(t, string(twos), string(out[30:70]))
	require.Equal(t, string(threes), string(out[70:270]))
}

func TestClearPreservesBaseOffsetUntilSetExternally(t *testing.T) {
	r := New(8, 8)
	r.SetBaseOffset(40)
	r.Write([]byte("abcd"))
	r.Clear()
	require.True(t, r.Empty())
	require.Equal(t, int64(40), r.BaseOffset())
	r.SetBaseOffset(99)
	require.Equal(t, int64(99), r.BaseOffset())
}
