package localtier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetMissOnEmptyTier(t *testing.T) {
	tr := New(LRU, 10, 0)
	_, ok := tr.Get("missing")
	require.False(t, ok)
}

func TestPutGetRoundTrip(t *testing.T) {
	tr := New(LRU, 10, 0)
	tr.Put("a", []byte("1"), time.Hour)
	v, ok := tr.Get("a")
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
}

func TestTTLExpiry(t *testing.T) {
	tr := New(LRU, 10, 0)
	tr.Put("a", []byte("1"), time.Nanosecond)
	time.Sleep(time.Millisecond)
	_, ok := tr.Get("a")
	require.False(t, ok)
}

func TestNoTTLNeverExpires(t *testing.T) {
	tr := New(LRU, 10, 0)
	tr.Put("a", []byte("1"), 0)
	time.Sleep(time.Millisecond)
	v, ok := tr.Get("a")
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	tr := New(LRU, 2, 0)
	tr.Put("a", []byte("1"), 0)
	tr.Put("b", []byte("2"), 0)
	_, _ = tr.Get("a") // a is now MRU, b is LRU
	tr.Put("c", []byte("3"), 0)

	_, ok := tr.Get("b")
	require.False(t, ok, "b should have been evicted as least-recently-used")
	_, ok = tr.Get("a")
	require.True(t, ok)
	_, ok = tr.Get("c")
	require.True(t, ok)
}

func TestFIFOEvictsInsertionOrderRegardlessOfReads(t *testing.T) {
	tr := New(FIFO, 2, 0)
	tr.Put("a", []byte("1"), 0)
	tr.Put("b", []byte("2"), 0)
	_, _ = tr.Get("a") // reads never postpone FIFO eviction
	tr.Put("c", []byte("3"), 0)

	_, ok := tr.Get("a")
	require.False(t, ok, "a should have been evicted first regardless of the read")
	_, ok = tr.Get("b")
	require.True(t, ok)
	_, ok = tr.Get("c")
	require.True(t, ok)
}

func TestLFUEvictsLeastFrequentlyUsed(t *testing.T) {
	tr := New(LFU, 2, 0)
	tr.Put("a", []byte("1"), 0)
	tr.Put("b", []byte("2"), 0)
	for i := 0; i < 5; i++ {
		_, _ = tr.Get("a")
	}
	tr.Put("c", []byte("3"), 0)

	_, ok := tr.Get("b")
	require.False(t, ok, "b should have been evicted as least-frequently-used")
	_, ok = tr.Get("a")
	require.True(t, ok)
}

func TestWeightEvictsLowestWeightFirstUntilUnderBound(t *testing.T) {
	tr := New(WEIGHT, 0, 10)
	tr.Put("small", []byte("12345"), 0)
	tr.Put("big", []byte("1234567890"), 0)

	_, ok := tr.Get("small")
	require.False(t, ok, "small should have been evicted to bring total weight back under the bound")
	_, ok = tr.Get("big")
	require.True(t, ok)
}

func TestEvictRemovesRegardlessOfTTL(t *testing.T) {
	tr := New(LRU, 10, 0)
	tr.Put("a", []byte("1"), time.Hour)
	tr.Evict("a")
	_, ok := tr.Get("a")
	require.False(t, ok)
}

func TestClearEmptiesTier(t *testing.T) {
	tr := New(LRU, 10, 0)
	tr.Put("a", []byte("1"), 0)
	tr.Put("b", []byte("2"), 0)
	tr.Clear()
	require.Equal(t, 0, tr.Len())
	_, ok := tr.Get("a")
	require.False(t, ok)
}

func TestOverwriteUpdatesValueAndWeight(t *testing.T) {
	tr := New(WEIGHT, 0, 100)
	tr.Put("a", []byte("short"), 0)
	tr.Put("a", []byte("a longer value"), 0)
	v, ok := tr.Get("a")
	require.True(t, ok)
	require.Equal(t, []byte("a longer value"), v)
}
