package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/modes1090/internal/modes/l1samples"
	"github.com/banshee-data/modes1090/internal/modes/l2preamble"
	"github.com/banshee-data/modes1090/internal/modes/l4frames"
	"github.com/banshee-data/modes1090/internal/modes/l5dedup"
	"github.com/banshee-data/modes1090/internal/modes/l6publish"
	"github.com/banshee-data/modes1090/internal/monitoring"
	"github.com/banshee-data/modes1090/internal/timeutil"
	"github.com/google/uuid"
)

// DefaultFrameBuffer is the capacity of the channel between the receivers
// and the merger.
const DefaultFrameBuffer = 256

// DeviceSpec describes one receiver's hardware.
type DeviceSpec struct {
	Driver    l1samples.Driver
	Device    l1samples.DeviceConfig
	SourceID  string
	BlockSize int
}

// Config assembles a pipeline.
type Config struct {
	Devices []DeviceSpec

	Detector    l2preamble.DetectorConfig
	Decoder     l4frames.DecoderConfig
	DedupWindow time.Duration
	Publisher   l6publish.Config

	// FrameBuffer bounds the receiver to merger channel (default: 256)
	FrameBuffer int

	// RunID identifies this run in every record; a UUID when empty.
	RunID string

	Clock    timeutil.Clock
	Counters *monitoring.Counters
}

// Pipeline is one run over a fixed set of devices. Run may be called once;
// reattaching after a disconnect means building a new Pipeline.
type Pipeline struct {
	cfg       Config
	publisher *l6publish.Publisher
	dedup     *l5dedup.Deduplicator
	counters  *monitoring.Counters
	runID     string

	started sync.Once
}

// New validates cfg and builds the downstream stages.
func New(cfg Config) (*Pipeline, error) {
	if len(cfg.Devices) == 0 {
		return nil, errors.New("pipeline: no devices configured")
	}
	seen := make(map[string]bool, len(cfg.Devices))
	for i, d := range cfg.Devices {
		if d.Driver == nil {
			return nil, fmt.Errorf("pipeline: device %d has no driver", i)
		}
		if d.SourceID != "" {
			if seen[d.SourceID] {
				return nil, fmt.Errorf("pipeline: duplicate source id %q", d.SourceID)
			}
			seen[d.SourceID] = true
		}
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = DefaultFrameBuffer
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Counters == nil {
		cfg.Counters = monitoring.NewCounters()
	}

	pubCfg := cfg.Publisher
	pubCfg.RunID = cfg.RunID
	pubCfg.Counters = cfg.Counters
	if pubCfg.SampleRate <= 0 {
		pubCfg.SampleRate = cfg.Devices[0].Device.SampleRate
	}

	return &Pipeline{
		cfg:       cfg,
		publisher: l6publish.NewPublisher(pubCfg),
		dedup:     l5dedup.New(cfg.DedupWindow, cfg.Counters),
		counters:  cfg.Counters,
		runID:     cfg.RunID,
	}, nil
}

// Records is the outbound channel. The caller must keep reading it until
// it is closed, otherwise Run cannot finish draining.
func (p *Pipeline) Records() <-chan l6publish.PublishedRecord { return p.publisher.Records() }

// RunID returns the identifier stamped on this run's records.
func (p *Pipeline) RunID() string { return p.runID }

// Counters returns the counters shared by every stage.
func (p *Pipeline) Counters() *monitoring.Counters { return p.counters }

// Run opens every device and decodes until ctx is cancelled or every
// source has ended. A DeviceError while opening or reading stops all
// receivers and is returned. So does ErrDeviceDisconnected from any
// receiver, so the caller can reattach the whole set.
func (p *Pipeline) Run(ctx context.Context) error {
	err := errors.New("pipeline: Run called twice")
	p.started.Do(func() { err = p.run(ctx) })
	return err
}

func (p *Pipeline) run(ctx context.Context) error {
	defer p.publisher.Close()

	receivers, err := p.open(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan l4frames.DecodedFrame, p.cfg.FrameBuffer)
	mergeDone := make(chan struct{})
	go func() {
		defer close(mergeDone)
		p.merge(frames)
	}()

	var (
		wg       sync.WaitGroup
		watchers sync.WaitGroup
		mu       sync.Mutex
		errs     []error
	)
	for _, r := range receivers {
		wg.Add(1)
		go func(r *Receiver) {
			defer wg.Done()
			if err := r.Run(ctx, frames); err != nil {
				opsf("%s: receiver stopped: %v", r.SourceID(), err)
				cancel()
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(r)

		// Closing the source is what unblocks a pending read.
		watchers.Add(1)
		go func(r *Receiver) {
			defer watchers.Done()
			<-ctx.Done()
			r.source.Close()
		}(r)
	}

	wg.Wait()
	cancel()
	watchers.Wait()
	close(frames)
	<-mergeDone

	s := p.counters.Snapshot()
	diagf("run %s finished: %d bursts, %d valid, %d corrected, %d rejected, %d duplicates, %d published",
		p.runID, s.BurstsDetected, s.FramesValid, s.FramesCorrected, s.FramesRejected, s.DuplicatesSuppressed, s.RecordsPublished)

	return errors.Join(errs...)
}

func (p *Pipeline) open(ctx context.Context) ([]*Receiver, error) {
	receivers := make([]*Receiver, 0, len(p.cfg.Devices))
	for _, d := range p.cfg.Devices {
		src, err := l1samples.Open(ctx, d.Driver, d.Device, l1samples.SourceOptions{
			BlockSize: d.BlockSize,
			SourceID:  d.SourceID,
			Clock:     p.cfg.Clock,
			Counters:  p.counters,
		})
		if err != nil {
			for _, r := range receivers {
				r.source.Close()
			}
			opsf("open %s %q: %v", d.Driver.Name(), d.Device.Address, err)
			return nil, err
		}
		receivers = append(receivers, NewReceiver(src, p.cfg.Detector, p.cfg.Decoder, p.counters))
	}
	return receivers, nil
}

// merge runs dedup and publish in arrival order until frames is closed.
// Publishing ignores cancellation so frames already decoded are never lost
// half way.
func (p *Pipeline) merge(frames <-chan l4frames.DecodedFrame) {
	ctx := context.Background()
	for f := range frames {
		if !p.dedup.Offer(f) {
			continue
		}
		if err := p.publisher.Publish(ctx, f); err != nil {
			opsf("publish: %v", err)
		}
	}
}
