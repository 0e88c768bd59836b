package monitoring

import (
	"math"
	"sync"
	"sync/atomic"
)

// Reject reasons recorded by the frame decoder.
const (
	RejectChecksum     = "checksum"
	RejectUnverifiable = "unverifiable"
	RejectTrustedBit   = "trusted_bit"
)

// Counters collects the quality signals of one pipeline instance. Every
// stage receives the same *Counters at construction; all fields are safe for
// concurrent use.
type Counters struct {
	BlocksRead           atomic.Uint64
	BurstsDetected       atomic.Uint64
	CarryOverflows       atomic.Uint64
	DemodUnderruns       atomic.Uint64
	FramesValid          atomic.Uint64
	FramesCorrected      atomic.Uint64
	FramesRejected       atomic.Uint64
	DuplicatesSuppressed atomic.Uint64
	RecordsPublished     atomic.Uint64
	ChannelDrops         atomic.Uint64
	SinkErrors           atomic.Uint64

	rejectMu      sync.Mutex
	rejectReasons map[string]uint64

	// rejectionRate is a float64 EWMA stored as bits.
	rejectionRate atomic.Uint64
}

// rejectionAlpha weights the most recent decode outcome in the rolling
// rejection rate.
const rejectionAlpha = 0.01

// NewCounters returns a zeroed counter set.
func NewCounters() *Counters {
	return &Counters{rejectReasons: make(map[string]uint64)}
}

// AddRejected counts one rejected frame under reason and folds it into the
// rolling rejection rate.
func (c *Counters) AddRejected(reason string) {
	c.FramesRejected.Add(1)
	c.rejectMu.Lock()
	if c.rejectReasons == nil {
		c.rejectReasons = make(map[string]uint64)
	}
	c.rejectReasons[reason]++
	c.rejectMu.Unlock()
	c.observe(1)
}

// AddAccepted counts one accepted frame, corrected or not.
func (c *Counters) AddAccepted(corrected bool) {
	if corrected {
		c.FramesCorrected.Add(1)
	} else {
		c.FramesValid.Add(1)
	}
	c.observe(0)
}

func (c *Counters) observe(outcome float64) {
	for {
		old := c.rejectionRate.Load()
		rate := math.Float64frombits(old)
		next := rate + rejectionAlpha*(outcome-rate)
		if c.rejectionRate.CompareAndSwap(old, math.Float64bits(next)) {
			return
		}
	}
}

// RejectionRate returns the rolling fraction of decoded bursts that were
// rejected. It is for observability only.
func (c *Counters) RejectionRate() float64 {
	return math.Float64frombits(c.rejectionRate.Load())
}

// RejectReasons returns a copy of the per-reason rejection counts.
func (c *Counters) RejectReasons() map[string]uint64 {
	c.rejectMu.Lock()
	defer c.rejectMu.Unlock()
	out := make(map[string]uint64, len(c.rejectReasons))
	for k, v := range c.rejectReasons {
		out[k] = v
	}
	return out
}

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	BlocksRead           uint64            `json:"blocks_read"`
	BurstsDetected       uint64            `json:"bursts_detected"`
	CarryOverflows       uint64            `json:"carry_overflows"`
	DemodUnderruns       uint64            `json:"demod_underruns"`
	FramesValid          uint64            `json:"frames_valid"`
	FramesCorrected      uint64            `json:"frames_corrected"`
	FramesRejected       uint64            `json:"frames_rejected"`
	RejectReasons        map[string]uint64 `json:"reject_reasons"`
	DuplicatesSuppressed uint64            `json:"duplicates_suppressed"`
	RecordsPublished     uint64            `json:"records_published"`
	ChannelDrops         uint64            `json:"channel_drops"`
	SinkErrors           uint64            `json:"sink_errors"`
	RejectionRate        float64           `json:"rejection_rate"`
}

// Snapshot copies the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		BlocksRead:           c.BlocksRead.Load(),
		BurstsDetected:       c.BurstsDetected.Load(),
		CarryOverflows:       c.CarryOverflows.Load(),
		DemodUnderruns:       c.DemodUnderruns.Load(),
		FramesValid:          c.FramesValid.Load(),
		FramesCorrected:      c.FramesCorrected.Load(),
		FramesRejected:       c.FramesRejected.Load(),
		RejectReasons:        c.RejectReasons(),
		DuplicatesSuppressed: c.DuplicatesSuppressed.Load(),
		RecordsPublished:     c.RecordsPublished.Load(),
		ChannelDrops:         c.ChannelDrops.Load(),
		SinkErrors:           c.SinkErrors.Load(),
		RejectionRate:        c.RejectionRate(),
	}
}
