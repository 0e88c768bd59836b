package l2preamble

import "github.com/banshee-data/modes1090/internal/monitoring"

// DetectorConfig tunes the preamble detector.
type DetectorConfig struct {
	SNRRatio      float32 // Correlation must exceed SNRRatio x noise floor (default: 3.0)
	MinNoiseFloor float32 // Lower bound on the noise estimate (default: 0.005)
	NoiseAlpha    float32 // EMA weight of each non-burst sample (default: 0.001)
	TieWindow     int     // Candidates closer than this compete (default: 4)
	CarryCapacity int     // Max samples carried into the next block, at least 2*LongBurstSamples+TieWindow (default: 512)

	Counters *monitoring.Counters
}

// DefaultDetectorConfig returns the defaults used by the receiver.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SNRRatio:      3.0,
		MinNoiseFloor: 0.005,
		NoiseAlpha:    0.001,
		TieWindow:     4,
		CarryCapacity: 512,
	}
}

func (c *DetectorConfig) applyDefaults() {
	d := DefaultDetectorConfig()
	if c.SNRRatio <= 0 {
		c.SNRRatio = d.SNRRatio
	}
	if c.MinNoiseFloor <= 0 {
		c.MinNoiseFloor = d.MinNoiseFloor
	}
	if c.NoiseAlpha <= 0 || c.NoiseAlpha > 1 {
		c.NoiseAlpha = d.NoiseAlpha
	}
	if c.TieWindow <= 0 {
		c.TieWindow = d.TieWindow
	}
	if c.CarryCapacity <= 0 {
		c.CarryCapacity = d.CarryCapacity
	}
	if c.Counters == nil {
		c.Counters = monitoring.NewCounters()
	}
}
