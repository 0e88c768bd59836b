package l2preamble

import (
	"errors"
	"iter"
	"math"
	"sort"

	"github.com/banshee-data/modes1090/internal/modes/l1samples"
	"github.com/banshee-data/modes1090/internal/monitoring"
	"gonum.org/v1/gonum/stat"
)

// ErrCarryOverflow reports a partial burst dropped at a block boundary,
// either because the carry buffer is too small or because the next block
// was not contiguous. It is counted, never returned from Process.
var ErrCarryOverflow = errors.New("carry-over overflow")

// Detector scans a contiguous run of sample blocks for Mode S preambles.
// It holds the adaptive noise floor and the carry-over buffer for one run
// and is not safe for concurrent use.
type Detector struct {
	cfg DetectorConfig

	noise  float32
	seeded bool

	// buf holds magnitudes starting at absolute index bufStart: the carried
	// tail of earlier blocks followed by the current block.
	buf      []float32
	bufStart uint64
	nextScan uint64
	expected uint64
	started  bool

	// last block seen, for timestamps and identity of emitted bursts
	last l1samples.SampleBlock

	lastErr error
}

// NewDetector creates a Detector. Zero fields of cfg take defaults.
func NewDetector(cfg DetectorConfig) *Detector {
	cfg.applyDefaults()
	return &Detector{
		cfg: cfg,
		buf: make([]float32, 0, cfg.CarryCapacity+l1samples.DefaultBlockSize),
	}
}

// NoiseFloor returns the current noise estimate.
func (d *Detector) NoiseFloor() float32 { return d.noise }

// Err returns the last locally recovered condition, currently only
// ErrCarryOverflow. It is informational.
func (d *Detector) Err() error { return d.lastErr }

// Reset discards all run state. The next block starts a fresh sequence.
func (d *Detector) Reset() {
	d.noise = 0
	d.seeded = false
	d.buf = d.buf[:0]
	d.bufStart, d.nextScan, d.expected = 0, 0, 0
	d.started = false
	d.last = l1samples.SampleBlock{}
	d.lastErr = nil
}

// Bursts adapts a sequence of blocks into a lazy sequence of bursts. The
// trailing partial burst, if any, is flushed when blocks ends.
func (d *Detector) Bursts(blocks iter.Seq[l1samples.SampleBlock]) iter.Seq[Burst] {
	return func(yield func(Burst) bool) {
		for block := range blocks {
			if !d.Process(block, yield) {
				return
			}
		}
		d.Flush(yield)
	}
}

// Process scans one block, calling yield for each accepted burst in stream
// order. It returns false if yield asked to stop; unscanned samples are
// kept for the next call.
func (d *Detector) Process(block l1samples.SampleBlock, yield func(Burst) bool) bool {
	if d.started && block.StartIndex != d.expected {
		d.dropCarry()
	}
	if len(d.buf) == 0 {
		d.bufStart = block.StartIndex
		if d.nextScan < d.bufStart || !d.started {
			d.nextScan = d.bufStart
		}
	}
	d.started = true
	d.expected = block.StartIndex + uint64(len(block.Samples))
	d.last = block

	for _, s := range block.Samples {
		re, im := float64(real(s)), float64(imag(s))
		d.buf = append(d.buf, float32(math.Sqrt(re*re+im*im)))
	}
	if !d.seeded {
		d.seedNoise(d.buf)
	}

	// A candidate needs room for its tie window, every burst overlapping
	// it, and the winner's full burst.
	limit := len(d.buf) - 2*LongBurstSamples - d.cfg.TieWindow + 1
	p := int(d.nextScan - d.bufStart)
	stopped := false
	for p < limit {
		corr, level, ok := d.correlate(p)
		if !ok || corr <= d.threshold() {
			d.observeNoise(d.buf[p])
			p++
			continue
		}
		best, bestLevel := p, level
		for q := p + 1; q <= p+d.cfg.TieWindow; q++ {
			if c, l, ok := d.correlate(q); ok && c > corr {
				best, corr, bestLevel = q, c, l
			}
		}
		// A stronger reply starting inside this one wins the overlap.
		end := best + LongBurstSamples
		for q := best + 1; q < end; q++ {
			if c, l, ok := d.correlate(q); ok && c > corr {
				best, corr, bestLevel = q, c, l
			}
		}
		burst := d.burstAt(best, LongBurstSamples, corr, bestLevel)
		p = best + LongBurstSamples
		d.cfg.Counters.BurstsDetected.Add(1)
		if !yield(burst) {
			stopped = true
			break
		}
	}
	d.nextScan = d.bufStart + uint64(p)
	d.keepTail(stopped)
	return !stopped
}

// Flush scans whatever remains in the carry buffer at end of stream and
// emits truncated bursts for any preambles found there. The detector keeps
// its noise estimate but forgets the carried samples.
func (d *Detector) Flush(yield func(Burst) bool) bool {
	p := int(d.nextScan - d.bufStart)
	if d.nextScan < d.bufStart {
		p = 0
	}
	for ; p+PreambleSamples <= len(d.buf); p++ {
		corr, level, ok := d.correlate(p)
		if !ok || corr <= d.threshold() {
			continue
		}
		n := min(LongBurstSamples, len(d.buf)-p)
		burst := d.burstAt(p, n, corr, level)
		d.cfg.Counters.BurstsDetected.Add(1)
		if !yield(burst) {
			d.clearCarry()
			return false
		}
		p += n - 1
	}
	d.clearCarry()
	return true
}

func (d *Detector) threshold() float32 {
	return d.cfg.SNRRatio * max(d.noise, d.cfg.MinNoiseFloor)
}

// correlate evaluates the preamble matched filter at buf[p]. ok is false
// when any pulse fails to rise above the quiet mean or a guard sample
// reaches two thirds of the mean pulse level.
func (d *Detector) correlate(p int) (corr, level float32, ok bool) {
	if p+PreambleSamples > len(d.buf) {
		return 0, 0, false
	}
	w := d.buf[p : p+PreambleSamples]
	var quiet float32
	for _, o := range quietOffsets {
		quiet += w[o]
	}
	quiet /= float32(len(quietOffsets))

	for _, o := range pulseOffsets {
		if w[o] <= quiet {
			return 0, 0, false
		}
		level += w[o]
	}
	level /= float32(len(pulseOffsets))

	guard := level * 2 / 3
	for _, o := range guardOffsets {
		if w[o] >= guard {
			return 0, 0, false
		}
	}
	return level - quiet, level, true
}

func (d *Detector) burstAt(p, n int, corr, level float32) Burst {
	idx := d.bufStart + uint64(p)
	mag := make([]float32, n)
	copy(mag, d.buf[p:p+n])
	return Burst{
		Magnitude:   mag,
		SampleIndex: idx,
		Timestamp:   d.last.TimeAt(idx),
		SourceID:    d.last.SourceID,
		SampleRate:  d.last.SampleRate,
		SignalLevel: level,
		NoiseLevel:  d.noise,
		Correlation: corr,
	}
}

func (d *Detector) observeNoise(m float32) {
	d.noise += d.cfg.NoiseAlpha * (m - d.noise)
}

// seedNoise starts the noise floor at the median magnitude so the first
// block is not scanned against a zero threshold.
func (d *Detector) seedNoise(mags []float32) {
	if len(mags) == 0 {
		return
	}
	sorted := make([]float64, len(mags))
	for i, m := range mags {
		sorted[i] = float64(m)
	}
	sort.Float64s(sorted)
	d.noise = float32(stat.Quantile(0.5, stat.Empirical, sorted, nil))
	d.seeded = true
}

// keepTail moves unscanned samples to the front of buf. A tail larger than
// the carry capacity is an overflow.
func (d *Detector) keepTail(stopped bool) {
	from := int(d.nextScan - d.bufStart)
	if d.nextScan < d.bufStart {
		from = 0
	}
	if from >= len(d.buf) {
		// An accepted burst ran past the end of the buffer; resume after it.
		d.buf = d.buf[:0]
		d.bufStart = d.nextScan
		return
	}
	tail := d.buf[from:]
	if !stopped && len(tail) > d.cfg.CarryCapacity {
		d.overflow(tail)
		d.buf = d.buf[:0]
		d.bufStart = d.expected
		d.nextScan = d.expected
		return
	}
	n := copy(d.buf, tail)
	d.buf = d.buf[:n]
	d.bufStart += uint64(from)
}

// dropCarry discards the carried tail after a discontinuity.
func (d *Detector) dropCarry() {
	from := int(d.nextScan - d.bufStart)
	if d.nextScan >= d.bufStart && from < len(d.buf) {
		d.overflow(d.buf[from:])
	}
	d.clearCarry()
	d.nextScan = 0
}

// overflow counts a dropped tail when it held the start of a burst.
func (d *Detector) overflow(tail []float32) {
	saved, savedStart := d.buf, d.bufStart
	d.buf = tail
	defer func() { d.buf, d.bufStart = saved, savedStart }()

	for p := 0; p+PreambleSamples <= len(tail); p++ {
		if corr, _, ok := d.correlate(p); ok && corr > d.threshold() {
			d.cfg.Counters.CarryOverflows.Add(1)
			d.lastErr = ErrCarryOverflow
			monitoring.Logf("[Detector] %s: dropped partial burst at sample %d", d.last.SourceID, d.nextScan+uint64(p))
			return
		}
	}
}

func (d *Detector) clearCarry() {
	d.buf = d.buf[:0]
	d.bufStart = d.expected
	d.nextScan = d.expected
}
