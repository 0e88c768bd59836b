package l1samples

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/modes1090/internal/monitoring"
	"github.com/banshee-data/modes1090/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(n int) []complex64 {
	out := make([]complex64, n)
	for i := range out {
		v := float32(i%16)/16 - 0.5
		out[i] = complex(v, -v)
	}
	return out
}

func openMock(t *testing.T, dev *TestableDevice, blockSize int) (*Source, *monitoring.Counters, *timeutil.MockClock) {
	t.Helper()
	counters := monitoring.NewCounters()
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	src, err := Open(context.Background(), NewMockDriver(dev), DeviceConfig{Address: "mock0"}, SourceOptions{
		BlockSize: blockSize,
		SourceID:  "rx1",
		Clock:     clock,
		Counters:  counters,
	})
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	return src, counters, clock
}

func TestSource_ReadBlock(t *testing.T) {
	t.Parallel()

	dev := NewTestableDevice(FormatCS16LE)
	samples := ramp(64)
	dev.AddSamples(samples)
	src, counters, clock := openMock(t, dev, 32)

	b0, err := src.ReadBlock(context.Background())
	require.NoError(t, err)
	// Wall time jumps between reads; block times stay on the sample clock.
	clock.Advance(time.Second)
	b1, err := src.ReadBlock(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 32, b0.Len())
	assert.Equal(t, uint64(0), b0.StartIndex)
	assert.Equal(t, uint64(32), b1.StartIndex)
	assert.Equal(t, uint64(1), b1.Seq)
	assert.Equal(t, "rx1", b1.SourceID)
	assert.Equal(t, DefaultSampleRate, b1.SampleRate)
	for i := range b0.Samples {
		assert.InDelta(t, real(samples[i]), real(b0.Samples[i]), 1e-4)
		assert.InDelta(t, imag(samples[32+i]), imag(b1.Samples[i]), 1e-4)
	}

	// The first block is backdated by its duration.
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, start.Add(-16*time.Microsecond), b0.Timestamp)
	assert.Equal(t, start, b1.Timestamp)
	assert.Equal(t, uint64(2), counters.BlocksRead.Load())
}

func TestSource_EndOfStreamDropsPartialBlock(t *testing.T) {
	t.Parallel()

	dev := NewTestableDevice(FormatCU8)
	dev.AddSamples(ramp(40))
	dev.Finish()
	src, _, _ := openMock(t, dev, 32)

	_, err := src.ReadBlock(context.Background())
	require.NoError(t, err)
	_, err = src.ReadBlock(context.Background())
	assert.ErrorIs(t, err, ErrEndOfStream)
}

func TestSource_Disconnect(t *testing.T) {
	t.Parallel()

	dev := NewTestableDevice(FormatCU8)
	src, _, _ := openMock(t, dev, 32)

	go func() {
		time.Sleep(10 * time.Millisecond)
		dev.InjectError(errors.New("usb transfer failed"))
	}()

	_, err := src.ReadBlock(context.Background())
	assert.ErrorIs(t, err, ErrDeviceDisconnected)
	assert.NotErrorIs(t, err, ErrEndOfStream)
}

func TestSource_CloseUnblocksRead(t *testing.T) {
	t.Parallel()

	dev := NewTestableDevice(FormatCU8)
	src, _, _ := openMock(t, dev, 32)

	errCh := make(chan error, 1)
	go func() {
		_, err := src.ReadBlock(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, src.Close())
	require.NoError(t, src.Close(), "Close is idempotent")

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSourceClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadBlock did not return after Close")
	}
	assert.True(t, dev.IsClosed())

	_, err := src.ReadBlock(context.Background())
	assert.ErrorIs(t, err, ErrSourceClosed)
}

func TestOpen_DeviceError(t *testing.T) {
	t.Parallel()

	drv := NewMockDriver(nil)
	drv.Error = errors.New("usb_claim_interface error -6")

	_, err := Open(context.Background(), drv, DeviceConfig{Address: "0"}, SourceOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDevice)

	var de *DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "mock", de.Driver)
	assert.Equal(t, "open", de.Op)
	assert.Contains(t, err.Error(), "usb_claim_interface")
}

func TestOpen_Defaults(t *testing.T) {
	t.Parallel()

	drv := NewMockDriver(NewTestableDevice(FormatCU8))
	src, err := Open(context.Background(), drv, DeviceConfig{DeviceIndex: 2}, SourceOptions{})
	require.NoError(t, err)
	defer src.Close()

	require.Len(t, drv.OpenCalls, 1)
	assert.Equal(t, uint32(DefaultCenterFrequency), drv.OpenCalls[0].CenterFrequency)
	assert.Equal(t, DefaultSampleRate, src.SampleRate())
	assert.Equal(t, "mock-2", src.SourceID())
}
