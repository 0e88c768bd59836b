package l2preamble

import "time"

// Sample geometry at 2 MS/s: the preamble spans 16 samples and each data
// bit two.
const (
	PreambleSamples   = 16
	ShortBurstSamples = PreambleSamples + 2*56
	LongBurstSamples  = PreambleSamples + 2*112
)

// pulse and quiet offsets inside the preamble window.
var (
	pulseOffsets = [...]int{0, 2, 7, 9}
	quietOffsets = [...]int{1, 3, 4, 5, 6, 8, 10, 11, 12, 13, 14, 15}

	// guardOffsets must stay well below the pulses. Any 16-sample window
	// inside pulse-position data has a pulse at one of them.
	guardOffsets = [...]int{4, 5, 11, 12, 13, 14}
)

// Burst is a window of magnitudes suspected to hold one Mode S reply,
// starting at the first preamble pulse. Magnitude is a private copy, so a
// burst spanning two blocks is contiguous.
type Burst struct {
	Magnitude   []float32
	SampleIndex uint64 // absolute index of Magnitude[0]
	Timestamp   time.Time
	SourceID    string
	SampleRate  int

	SignalLevel float32 // mean preamble pulse magnitude
	NoiseLevel  float32 // noise floor when the burst was accepted
	Correlation float32
}

// Len returns the number of samples in the burst.
func (b Burst) Len() int { return len(b.Magnitude) }
