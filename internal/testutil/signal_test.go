package testutil

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModulate(t *testing.T) {
	t.Parallel()

	env := Modulate([]byte{0x80}, nil, nil)
	require.Len(t, env, 16+16)
	assert.Equal(t, []float32{1, 0, 1, 0, 0, 0, 0, 1, 0, 1, 0, 0, 0, 0, 0, 0}, env[:16])
	// bit 0 is 1: pulse in the first half; bit 1 is 0: pulse in the second.
	assert.Equal(t, []float32{1, 0, 0, 1}, env[16:20])

	flipped := Modulate([]byte{0x80}, []int{0}, nil)
	assert.Equal(t, []float32{0, 1}, flipped[16:18])

	weak := Modulate([]byte{0x80}, nil, []int{0})
	assert.Equal(t, []float32{weakLow, weakHigh}, weak[16:18])
}

func TestSignalGenerate(t *testing.T) {
	t.Parallel()

	s := Signal{
		Length: 400,
		Noise:  0.01,
		Seed:   7,
		Bursts: []BurstSpec{{Payload: MustHex("5d 4ca251 ffffff"), At: 100}},
	}
	a := s.Generate()
	b := s.Generate()
	assert.Equal(t, a, b, "noise is deterministic")
	assert.InDelta(t, 0.5, real(a[100]), 0.011)
	assert.InDelta(t, 0, real(a[101]), 0.011)
	assert.LessOrEqual(t, imag(a[50]), float32(0.01))
}

func TestBlocks(t *testing.T) {
	t.Parallel()

	start := time.Unix(1_700_000_000, 0)
	blocks := Blocks(make([]complex64, 250), 100, "rx", start)
	require.Len(t, blocks, 3)
	assert.Equal(t, uint64(200), blocks[2].StartIndex)
	assert.Equal(t, 50, blocks[2].Len())
	assert.Equal(t, start.Add(50*time.Microsecond), blocks[1].Timestamp)
}

func TestHTTPHelpers(t *testing.T) {
	t.Parallel()

	req := NewTestRequest(http.MethodGet, "/metrics")
	assert.Equal(t, "/metrics", req.URL.Path)
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
}
