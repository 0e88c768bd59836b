package l1samples

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleFormat_RoundTrip(t *testing.T) {
	t.Parallel()

	samples := []complex64{0, complex(0.5, -0.5), complex(-1, 0.99), complex(0.25, 0.125)}
	tests := []struct {
		format SampleFormat
		delta  float64
	}{
		{FormatCU8, 1.0 / 127},
		{FormatCS16LE, 1.0 / 32768},
		{FormatCS16BE, 1.0 / 32768},
		{FormatCF32LE, 0},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			raw := tt.format.Encode(nil, samples)
			require.Len(t, raw, len(samples)*tt.format.BytesPerSample())

			got := make([]complex64, len(samples))
			tt.format.Convert(got, raw)
			for i := range samples {
				assert.InDelta(t, real(samples[i]), real(got[i]), tt.delta+1e-6)
				assert.InDelta(t, imag(samples[i]), imag(got[i]), tt.delta+1e-6)
			}
		})
	}
}

func TestParseSampleFormat(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]SampleFormat{
		"":       FormatCU8,
		"CU8":    FormatCU8,
		"cs16":   FormatCS16LE,
		"cs16be": FormatCS16BE,
		"cf32":   FormatCF32LE,
	} {
		got, err := ParseSampleFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSampleFormat("sc12")
	assert.Error(t, err)
}

func TestSampleBlock_TimeAt(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	b := SampleBlock{Timestamp: ts, StartIndex: 1000, SampleRate: DefaultSampleRate}

	assert.Equal(t, ts, b.TimeAt(1000))
	assert.Equal(t, ts.Add(5*time.Microsecond), b.TimeAt(1010))
	assert.Equal(t, ts.Add(-time.Microsecond), b.TimeAt(998))
}
