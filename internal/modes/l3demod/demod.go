package l3demod

import (
	"errors"
	"time"

	"github.com/banshee-data/modes1090/internal/modes/l2preamble"
	"github.com/banshee-data/modes1090/internal/monitoring"
)

// MaxBits is the length of the longest Mode S frame. Every BitSequence has
// this length; the frame decoder picks the real length from the DF field.
const MaxBits = 112

// MinBurstSamples is the shortest burst that holds a short (56 bit) frame.
const MinBurstSamples = l2preamble.ShortBurstSamples

// ErrDemodulationUnderrun is returned for bursts too short to hold a short
// frame. Such bursts are counted and dropped.
var ErrDemodulationUnderrun = errors.New("demodulation underrun")

// BitSequence is the soft output of the demodulator.
type BitSequence struct {
	Bits       [MaxBits]byte    // 0 or 1
	Confidence [MaxBits]float32 // |a-b|/(a+b), 0 when the bit had no samples

	// Available counts the bits backed by samples.
	Available int

	Timestamp   time.Time
	SampleIndex uint64
	SourceID    string
	SignalLevel float32
}

// Bytes packs the first n bits into bytes, MSB first.
func (s *BitSequence) Bytes(n int) []byte {
	out := make([]byte, (n+7)/8)
	for i := 0; i < n; i++ {
		out[i/8] |= s.Bits[i] << (7 - uint(i%8))
	}
	return out
}

// Demodulator converts bursts into bit sequences.
type Demodulator struct {
	counters *monitoring.Counters
}

// NewDemodulator returns a Demodulator counting underruns in counters.
func NewDemodulator(counters *monitoring.Counters) *Demodulator {
	if counters == nil {
		counters = monitoring.NewCounters()
	}
	return &Demodulator{counters: counters}
}

// Demodulate decodes b. Each bit compares the energy of the two halves of
// its period: a pulse in the first half is a one.
func (d *Demodulator) Demodulate(b l2preamble.Burst) (BitSequence, error) {
	if b.Len() < MinBurstSamples {
		d.counters.DemodUnderruns.Add(1)
		return BitSequence{}, ErrDemodulationUnderrun
	}

	seq := BitSequence{
		Timestamp:   b.Timestamp,
		SampleIndex: b.SampleIndex,
		SourceID:    b.SourceID,
		SignalLevel: b.SignalLevel,
	}
	for i := 0; i < MaxBits; i++ {
		o := l2preamble.PreambleSamples + 2*i
		if o+1 >= b.Len() {
			break
		}
		a, c := b.Magnitude[o], b.Magnitude[o+1]
		if a > c {
			seq.Bits[i] = 1
		}
		if sum := a + c; sum > 0 {
			diff := a - c
			if diff < 0 {
				diff = -diff
			}
			seq.Confidence[i] = diff / sum
		}
		seq.Available = i + 1
	}
	return seq, nil
}
