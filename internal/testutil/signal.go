package testutil

import (
	"encoding/hex"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/banshee-data/modes1090/internal/modes/l1samples"
)

// Chip layout at 2 MS/s.
const (
	preambleSamples = 16
	samplesPerBit   = 2
)

// Contrast of a weakly flipped bit: the wrong chip wins by a small margin.
const (
	weakHigh = 0.30
	weakLow  = 0.25
)

// BurstSpec places one Mode S reply in a synthetic signal.
type BurstSpec struct {
	Payload   []byte
	At        int     // sample offset of the first preamble pulse
	Amplitude float32 // pulse magnitude; zero means 0.5

	// FlipBits inverts bits with full contrast, so the error looks trusted.
	FlipBits []int
	// WeakFlips inverts bits with low contrast, as a noisy chip would.
	WeakFlips []int
}

// Signal describes a synthetic capture.
type Signal struct {
	Length int     // total samples
	Noise  float32 // peak noise amplitude per I/Q component
	Seed   uint64
	Bursts []BurstSpec
}

// BurstLength returns the number of samples a payload occupies.
func BurstLength(payload []byte) int {
	return preambleSamples + len(payload)*8*samplesPerBit
}

// Generate renders the signal as complex samples. Noise is deterministic
// for a given seed.
func (s Signal) Generate() []complex64 {
	out := make([]complex64, s.Length)
	if s.Noise > 0 {
		rng := rand.New(rand.NewPCG(s.Seed, s.Seed^0x5eed))
		for i := range out {
			re := (rng.Float32()*2 - 1) * s.Noise
			im := (rng.Float32()*2 - 1) * s.Noise
			out[i] = complex(re, im)
		}
	}
	for _, b := range s.Bursts {
		amp := b.Amplitude
		if amp == 0 {
			amp = 0.5
		}
		for i, m := range Modulate(b.Payload, b.FlipBits, b.WeakFlips) {
			if j := b.At + i; j >= 0 && j < len(out) {
				out[j] += complex(m*amp, 0)
			}
		}
	}
	return out
}

// Modulate returns the unit-amplitude pulse envelope of a reply: the
// preamble followed by one pulse per bit in the first or second half of the
// bit period.
func Modulate(payload []byte, flip, weak []int) []float32 {
	env := make([]float32, BurstLength(payload))
	for _, p := range []int{0, 2, 7, 9} {
		env[p] = 1
	}
	flipped := make(map[int]bool, len(flip))
	for _, i := range flip {
		flipped[i] = true
	}
	weakened := make(map[int]bool, len(weak))
	for _, i := range weak {
		weakened[i] = true
	}

	for i := 0; i < len(payload)*8; i++ {
		bit := payload[i/8]>>(7-uint(i%8))&1 == 1
		if flipped[i] {
			bit = !bit
		}
		first, second := float32(0), float32(1)
		if bit {
			first, second = 1, 0
		}
		if weakened[i] {
			first, second = weakHigh, weakLow
			if bit {
				first, second = weakLow, weakHigh
			}
		}
		o := preambleSamples + i*samplesPerBit
		env[o] = first
		env[o+1] = second
	}
	return env
}

// Blocks cuts samples into contiguous SampleBlocks. A trailing partial
// block is kept so no burst is lost.
func Blocks(samples []complex64, blockSize int, sourceID string, start time.Time) []l1samples.SampleBlock {
	var blocks []l1samples.SampleBlock
	for off, seq := 0, uint64(0); off < len(samples); off, seq = off+blockSize, seq+1 {
		end := min(off+blockSize, len(samples))
		blocks = append(blocks, l1samples.SampleBlock{
			Samples:    samples[off:end],
			Timestamp:  start.Add(time.Duration(off) * time.Second / l1samples.DefaultSampleRate),
			StartIndex: uint64(off),
			Seq:        seq,
			SourceID:   sourceID,
			SampleRate: l1samples.DefaultSampleRate,
		})
	}
	return blocks
}

// MustHex decodes a hex string, ignoring spaces, and panics on error.
func MustHex(s string) []byte {
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		panic(err)
	}
	return b
}
