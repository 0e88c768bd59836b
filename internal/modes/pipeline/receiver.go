package pipeline

import (
	"context"
	"errors"

	"github.com/banshee-data/modes1090/internal/modes/l1samples"
	"github.com/banshee-data/modes1090/internal/modes/l2preamble"
	"github.com/banshee-data/modes1090/internal/modes/l3demod"
	"github.com/banshee-data/modes1090/internal/modes/l4frames"
	"github.com/banshee-data/modes1090/internal/monitoring"
)

// Receiver drives one device through Layers 1-4. All of its state belongs
// to the goroutine calling Run.
type Receiver struct {
	source   *l1samples.Source
	detector *l2preamble.Detector
	demod    *l3demod.Demodulator
	decoder  *l4frames.Decoder
	counters *monitoring.Counters
}

// NewReceiver wires a receiver around an open source. The receiver takes
// ownership of src and closes it when Run returns.
func NewReceiver(src *l1samples.Source, det l2preamble.DetectorConfig, dec l4frames.DecoderConfig, counters *monitoring.Counters) *Receiver {
	det.Counters = counters
	dec.Counters = counters
	return &Receiver{
		source:   src,
		detector: l2preamble.NewDetector(det),
		demod:    l3demod.NewDemodulator(counters),
		decoder:  l4frames.NewDecoder(dec),
		counters: counters,
	}
}

// SourceID returns the identifier of the receiver's source.
func (r *Receiver) SourceID() string { return r.source.SourceID() }

// Run reads blocks until the source ends and sends every decoded frame to
// frames in detection order. Sends block when frames is full, which is how
// backpressure reaches the device. A clean end (context cancelled, source
// closed, recording exhausted) returns nil after the detector's carry has
// been flushed.
func (r *Receiver) Run(ctx context.Context, frames chan<- l4frames.DecodedFrame) error {
	defer r.source.Close()

	emit := func(b l2preamble.Burst) bool {
		seq, err := r.demod.Demodulate(b)
		if err != nil {
			tracef("%s: burst at %d: %v", b.SourceID, b.SampleIndex, err)
			return true
		}
		f, err := r.decoder.Decode(&seq)
		if err != nil {
			tracef("%s: burst at %d: %v", b.SourceID, b.SampleIndex, err)
			return true
		}
		frames <- f
		return true
	}

	for {
		block, err := r.source.ReadBlock(ctx)
		if err != nil {
			r.detector.Flush(emit)
			switch {
			case errors.Is(err, l1samples.ErrEndOfStream):
				diagf("%s: end of stream", r.SourceID())
				return nil
			case errors.Is(err, l1samples.ErrSourceClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return nil
			}
			return err
		}
		r.detector.Process(block, emit)
	}
}
