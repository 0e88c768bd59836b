package l6publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/banshee-data/modes1090/internal/modes/l1samples"
	"github.com/banshee-data/modes1090/internal/modes/l4frames"
	"github.com/banshee-data/modes1090/internal/monitoring"
	"github.com/banshee-data/modes1090/internal/timeutil"
)

var (
	// ErrChannelFull is returned by TryPublish when the outbound channel
	// has no room.
	ErrChannelFull = errors.New("outbound channel full")

	// ErrPublisherClosed is returned after Close.
	ErrPublisherClosed = errors.New("publisher closed")
)

// Policy selects what happens when the outbound channel is full.
type Policy int

const (
	// PolicyBlock blocks the producer until the sink catches up, pushing
	// backpressure up to the sampling loop.
	PolicyBlock Policy = iota
	// PolicyDropOldest evicts the oldest queued record and counts the drop.
	PolicyDropOldest
)

// ParsePolicy parses "block" or "drop-oldest".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return PolicyBlock, nil
	case "drop-oldest", "drop_oldest", "dropoldest":
		return PolicyDropOldest, nil
	}
	return PolicyBlock, fmt.Errorf("unknown backpressure policy %q: expected block or drop-oldest", s)
}

func (p Policy) String() string {
	if p == PolicyDropOldest {
		return "drop-oldest"
	}
	return "block"
}

// DefaultCapacity is the outbound channel size when none is configured.
const DefaultCapacity = 1024

// Config configures a Publisher.
type Config struct {
	Capacity   int    // Outbound channel size (default: 1024)
	Policy     Policy // Backpressure policy (default: block)
	RunID      string // Stamped into every record
	SampleRate int    // Converts sample indices to monotonic time (default: 2 MS/s)

	Counters *monitoring.Counters
}

// PublishedRecord is an accepted frame plus its wire encoding. The
// publisher keeps no reference once it is on the channel.
type PublishedRecord struct {
	Frame l4frames.DecodedFrame
	Bytes []byte
}

// Publisher serializes frames onto a bounded channel for the sink side. It
// has a single producer: Publish and Close must not be called
// concurrently with each other.
type Publisher struct {
	cfg Config
	out chan PublishedRecord

	closeOnce sync.Once
	closed    bool
}

// NewPublisher creates a Publisher.
func NewPublisher(cfg Config) *Publisher {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = l1samples.DefaultSampleRate
	}
	if cfg.Counters == nil {
		cfg.Counters = monitoring.NewCounters()
	}
	return &Publisher{
		cfg: cfg,
		out: make(chan PublishedRecord, cfg.Capacity),
	}
}

// Records is the outbound channel. It is closed by Close.
func (p *Publisher) Records() <-chan PublishedRecord { return p.out }

// RecordFor builds the wire record of a frame.
func (p *Publisher) RecordFor(f l4frames.DecodedFrame) Record {
	return Record{
		WallTime:       f.Timestamp,
		Monotonic:      timeutil.SampleDuration(f.SampleIndex, p.cfg.SampleRate),
		SourceID:       f.SourceID,
		Class:          f.Class,
		Integrity:      f.Integrity,
		Payload:        f.Payload,
		DownlinkFormat: f.DownlinkFormat,
		Address:        f.Address,
		SignalLevel:    f.SignalLevel,
		RunID:          p.cfg.RunID,
	}
}

func (p *Publisher) serialize(f l4frames.DecodedFrame) PublishedRecord {
	return PublishedRecord{Frame: f, Bytes: Encode(p.RecordFor(f))}
}

// Publish serializes f and queues it according to the policy. Under
// PolicyBlock it waits for room or for ctx to end.
func (p *Publisher) Publish(ctx context.Context, f l4frames.DecodedFrame) error {
	if p.closed {
		return ErrPublisherClosed
	}
	rec := p.serialize(f)

	if p.cfg.Policy == PolicyDropOldest {
		for {
			select {
			case p.out <- rec:
				p.cfg.Counters.RecordsPublished.Add(1)
				return nil
			default:
			}
			select {
			case <-p.out:
				p.cfg.Counters.ChannelDrops.Add(1)
			default:
			}
		}
	}

	select {
	case p.out <- rec:
		p.cfg.Counters.RecordsPublished.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish queues f without waiting and without evicting anything.
func (p *Publisher) TryPublish(f l4frames.DecodedFrame) error {
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.out <- p.serialize(f):
		p.cfg.Counters.RecordsPublished.Add(1)
		return nil
	default:
		return ErrChannelFull
	}
}

// Close closes the outbound channel once everything has been queued.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		p.closed = true
		close(p.out)
	})
}

// Drain reads the outbound channel until it closes or ctx ends, handing
// each record to fn. It is a convenience for sinks that process records
// one at a time.
func Drain(ctx context.Context, records <-chan PublishedRecord, fn func(PublishedRecord)) error {
	for {
		select {
		case rec, ok := <-records:
			if !ok {
				return nil
			}
			fn(rec)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
