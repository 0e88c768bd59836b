package l2preamble

import (
	"slices"
	"testing"
	"time"

	"github.com/banshee-data/modes1090/internal/modes/l1samples"
	"github.com/banshee-data/modes1090/internal/monitoring"
	"github.com/banshee-data/modes1090/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	longFrame  = testutil.MustHex("8D406B902015A678D4D220AA4BDA")
	shortFrame = testutil.MustHex("5D4CA251FFFFFF")
	start      = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
)

func detect(t *testing.T, sig testutil.Signal, blockSize int, cfg DetectorConfig) ([]Burst, *monitoring.Counters) {
	t.Helper()
	if cfg.Counters == nil {
		cfg.Counters = monitoring.NewCounters()
	}
	d := NewDetector(cfg)
	blocks := testutil.Blocks(sig.Generate(), blockSize, "rx1", start)
	bursts := slices.Collect(d.Bursts(slices.Values(blocks)))
	return bursts, cfg.Counters
}

func TestDetector_FindsBursts(t *testing.T) {
	t.Parallel()

	sig := testutil.Signal{
		Length: 4000,
		Noise:  0.01,
		Seed:   1,
		Bursts: []testutil.BurstSpec{
			{Payload: longFrame, At: 300},
			{Payload: shortFrame, At: 1200, Amplitude: 0.2},
			{Payload: longFrame, At: 2500},
		},
	}
	bursts, counters := detect(t, sig, 1000, DetectorConfig{})
	require.Len(t, bursts, 3)

	assert.Equal(t, uint64(300), bursts[0].SampleIndex)
	assert.Equal(t, uint64(1200), bursts[1].SampleIndex)
	assert.Equal(t, uint64(2500), bursts[2].SampleIndex)
	assert.Equal(t, LongBurstSamples, bursts[0].Len())
	assert.InDelta(t, 0.5, bursts[0].SignalLevel, 0.02)
	assert.InDelta(t, 0.2, bursts[1].SignalLevel, 0.02)
	assert.Equal(t, "rx1", bursts[0].SourceID)
	assert.Equal(t, start.Add(150*time.Microsecond), bursts[0].Timestamp)
	assert.Equal(t, uint64(3), counters.BurstsDetected.Load())
}

func TestDetector_BurstSpanningBlocks(t *testing.T) {
	t.Parallel()

	sig := testutil.Signal{
		Length: 2048,
		Noise:  0.01,
		Seed:   2,
		Bursts: []testutil.BurstSpec{{Payload: longFrame, At: 900}},
	}
	// The burst straddles the boundary at 1024 in the middle of its data.
	bursts, counters := detect(t, sig, 1024, DetectorConfig{})
	require.Len(t, bursts, 1)
	assert.Equal(t, uint64(900), bursts[0].SampleIndex)
	assert.Equal(t, start.Add(450*time.Microsecond), bursts[0].Timestamp)

	want := testutil.Modulate(longFrame, nil, nil)
	for i, m := range want {
		assert.InDelta(t, m*0.5, bursts[0].Magnitude[i], 0.02, "sample %d", i)
	}
	assert.Zero(t, counters.CarryOverflows.Load())
}

func TestDetector_NoiseOnly(t *testing.T) {
	t.Parallel()

	sig := testutil.Signal{Length: 20000, Noise: 0.05, Seed: 3}
	bursts, _ := detect(t, sig, 4096, DetectorConfig{})
	assert.Empty(t, bursts)
}

func TestDetector_TieBreakKeepsStrongest(t *testing.T) {
	t.Parallel()

	// Two overlapping copies one sample apart both pass the filter; the
	// later one is stronger.
	sig := testutil.Signal{
		Length: 1200,
		Noise:  0.005,
		Seed:   4,
		Bursts: []testutil.BurstSpec{
			{Payload: longFrame, At: 400, Amplitude: 0.3},
			{Payload: longFrame, At: 401, Amplitude: 0.6},
		},
	}
	bursts, counters := detect(t, sig, 1200, DetectorConfig{})
	require.Len(t, bursts, 1)
	assert.Equal(t, uint64(401), bursts[0].SampleIndex)
	assert.Equal(t, uint64(1), counters.BurstsDetected.Load())
}

func TestDetector_OverlapKeepsStrongest(t *testing.T) {
	t.Parallel()

	// A strong reply starts 60 samples into a weak one, well past the tie
	// window.
	sig := testutil.Signal{
		Length: 1500,
		Noise:  0.005,
		Seed:   10,
		Bursts: []testutil.BurstSpec{
			{Payload: shortFrame, At: 300, Amplitude: 0.15},
			{Payload: longFrame, At: 360, Amplitude: 0.8},
		},
	}
	bursts, counters := detect(t, sig, 1500, DetectorConfig{})
	require.Len(t, bursts, 1)
	assert.Equal(t, uint64(360), bursts[0].SampleIndex)
	assert.Greater(t, bursts[0].Correlation, float32(0.5))
	assert.Equal(t, uint64(1), counters.BurstsDetected.Load())
}

func TestDetector_DiscontinuityDropsPartialBurst(t *testing.T) {
	t.Parallel()

	counters := monitoring.NewCounters()
	d := NewDetector(DetectorConfig{Counters: counters})

	sig := testutil.Signal{
		Length: 2000,
		Noise:  0.01,
		Seed:   5,
		Bursts: []testutil.BurstSpec{{Payload: longFrame, At: 900}},
	}
	blocks := testutil.Blocks(sig.Generate(), 1000, "rx1", start)

	var got []Burst
	collect := func(b Burst) bool { got = append(got, b); return true }
	d.Process(blocks[0], collect)

	// Samples were lost between the blocks.
	gap := blocks[1]
	gap.StartIndex += 500
	d.Process(gap, collect)

	assert.Empty(t, got)
	assert.Equal(t, uint64(1), counters.CarryOverflows.Load())
	assert.ErrorIs(t, d.Err(), ErrCarryOverflow)
}

func TestDetector_CarryCapacityOverflow(t *testing.T) {
	t.Parallel()

	sig := testutil.Signal{
		Length: 2000,
		Noise:  0.01,
		Seed:   6,
		Bursts: []testutil.BurstSpec{{Payload: longFrame, At: 900}},
	}
	bursts, counters := detect(t, sig, 1000, DetectorConfig{CarryCapacity: 100})
	assert.Empty(t, bursts)
	assert.Equal(t, uint64(1), counters.CarryOverflows.Load())
}

func TestDetector_FlushEmitsTruncatedBurst(t *testing.T) {
	t.Parallel()

	sig := testutil.Signal{
		Length: 1000,
		Noise:  0.01,
		Seed:   7,
		Bursts: []testutil.BurstSpec{{Payload: shortFrame, At: 850}},
	}
	bursts, _ := detect(t, sig, 1000, DetectorConfig{})
	require.Len(t, bursts, 1)
	assert.Equal(t, uint64(850), bursts[0].SampleIndex)
	assert.Equal(t, 150, bursts[0].Len())
}

func TestDetector_StopAndResume(t *testing.T) {
	t.Parallel()

	sig := testutil.Signal{
		Length: 2000,
		Noise:  0.01,
		Seed:   8,
		Bursts: []testutil.BurstSpec{
			{Payload: longFrame, At: 100},
			{Payload: longFrame, At: 600},
		},
	}
	d := NewDetector(DetectorConfig{})
	blocks := testutil.Blocks(sig.Generate(), 2000, "rx1", start)

	var got []uint64
	ok := d.Process(blocks[0], func(b Burst) bool {
		got = append(got, b.SampleIndex)
		return false
	})
	assert.False(t, ok)
	require.Equal(t, []uint64{100}, got)

	d.Flush(func(b Burst) bool {
		got = append(got, b.SampleIndex)
		return true
	})
	assert.Equal(t, []uint64{100, 600}, got)
}

func TestDetector_Reset(t *testing.T) {
	t.Parallel()

	d := NewDetector(DetectorConfig{})
	sig := testutil.Signal{Length: 1000, Noise: 0.02, Seed: 9}
	for _, b := range testutil.Blocks(sig.Generate(), 1000, "rx1", start) {
		d.Process(b, func(Burst) bool { return true })
	}
	assert.Greater(t, d.NoiseFloor(), float32(0))

	d.Reset()
	assert.Zero(t, d.NoiseFloor())

	// A new run may restart the sample index at zero.
	next := l1samples.SampleBlock{Samples: make([]complex64, 10), SampleRate: l1samples.DefaultSampleRate}
	assert.True(t, d.Process(next, func(Burst) bool { return true }))
	assert.NoError(t, d.Err())
}
