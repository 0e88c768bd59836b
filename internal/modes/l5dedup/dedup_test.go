package l5dedup

import (
	"testing"
	"time"

	"github.com/banshee-data/modes1090/internal/modes/l4frames"
	"github.com/banshee-data/modes1090/internal/monitoring"
	"github.com/banshee-data/modes1090/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 7, 4, 18, 0, 0, 0, time.UTC)

func frame(hex, source string, at time.Duration, integrity l4frames.Integrity) l4frames.DecodedFrame {
	return l4frames.DecodedFrame{
		Payload:   testutil.MustHex(hex),
		SourceID:  source,
		Timestamp: t0.Add(at),
		Integrity: integrity,
	}
}

const (
	msgA = "8D406B902015A678D4D220AA4BDA"
	msgB = "8d8960ed58bf053cf11bc5932b7d"
)

func TestOffer_SuppressesWithinWindow(t *testing.T) {
	t.Parallel()

	counters := monitoring.NewCounters()
	d := New(300*time.Millisecond, counters)

	assert.True(t, d.Offer(frame(msgA, "rx1", 0, l4frames.Valid)))
	assert.False(t, d.Offer(frame(msgA, "rx1", 100*time.Millisecond, l4frames.Valid)))
	assert.True(t, d.Offer(frame(msgB, "rx1", 150*time.Millisecond, l4frames.Valid)))
	assert.Equal(t, uint64(1), counters.DuplicatesSuppressed.Load())
}

func TestOffer_ForwardsOutsideWindow(t *testing.T) {
	t.Parallel()

	d := New(300*time.Millisecond, nil)
	assert.True(t, d.Offer(frame(msgA, "rx1", 0, l4frames.Valid)))
	assert.True(t, d.Offer(frame(msgA, "rx1", 400*time.Millisecond, l4frames.Valid)))
	assert.Equal(t, 1, d.Len(), "the first entry was evicted")
}

func TestOffer_WindowBoundaryIsInclusive(t *testing.T) {
	t.Parallel()

	d := New(300*time.Millisecond, nil)
	assert.True(t, d.Offer(frame(msgA, "rx1", 0, l4frames.Valid)))
	assert.False(t, d.Offer(frame(msgA, "rx1", 300*time.Millisecond, l4frames.Valid)))
}

func TestOffer_SkewedReceiverDoesNotPinStaleEntries(t *testing.T) {
	t.Parallel()

	d := New(300*time.Millisecond, nil)
	// rxA runs a second ahead of rxB, so its entry sits at the head of the
	// eviction queue and holds B behind it.
	assert.True(t, d.Offer(frame(msgA, "rxA", time.Second, l4frames.Valid)))
	assert.True(t, d.Offer(frame(msgB, "rxB", 0, l4frames.Valid)))
	assert.True(t, d.Offer(frame(msgB, "rxB", 500*time.Millisecond, l4frames.Valid)))

	e, ok := d.Lookup(KeyOf(testutil.MustHex(msgB)))
	require.True(t, ok)
	assert.Equal(t, t0.Add(500*time.Millisecond), e.FirstSeen)
	assert.Equal(t, 1, e.Copies)
}

func TestOffer_KeepsBestAndMergesSources(t *testing.T) {
	t.Parallel()

	d := New(0, nil)
	first := frame(msgA, "rx1", 0, l4frames.Corrected(40))
	require.True(t, d.Offer(first))
	assert.False(t, d.Offer(frame(msgA, "rx2", 2*time.Millisecond, l4frames.Valid)))
	assert.False(t, d.Offer(frame(msgA, "rx3", 3*time.Millisecond, l4frames.Corrected(7))))

	e, ok := d.Lookup(KeyOf(first.Payload))
	require.True(t, ok)
	assert.Equal(t, l4frames.Valid, e.Best.Integrity)
	assert.Equal(t, "rx2", e.Best.SourceID)
	assert.Equal(t, t0, e.FirstSeen)
	assert.Equal(t, 3, e.Copies)
	assert.Equal(t, []string{"rx1", "rx2", "rx3"}, e.Sources())
}

func TestOffer_EvictionCompacts(t *testing.T) {
	t.Parallel()

	d := New(time.Millisecond, nil)
	payload := make([]byte, 14)
	for i := 0; i < 5000; i++ {
		payload[0], payload[1] = byte(i>>8), byte(i)
		f := l4frames.DecodedFrame{Payload: append([]byte(nil), payload...), Timestamp: t0.Add(time.Duration(i) * time.Millisecond)}
		require.True(t, d.Offer(f))
	}
	assert.LessOrEqual(t, d.Len(), 2)
	assert.Less(t, len(d.order)-d.head, 3)
	assert.Less(t, len(d.order), 2100)
}

func TestKeyOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KeyOf(testutil.MustHex(msgA)), KeyOf(testutil.MustHex(msgA)))
	assert.NotEqual(t, KeyOf(testutil.MustHex(msgA)), KeyOf(testutil.MustHex(msgB)))
}
