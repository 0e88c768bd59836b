package l1samples

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/modes1090/internal/monitoring"
	"github.com/banshee-data/modes1090/internal/timeutil"
)

// SourceOptions configures a Source.
type SourceOptions struct {
	// BlockSize is the number of complex samples per block.
	BlockSize int

	// SourceID identifies the receiver in every block and record.
	SourceID string

	Clock    timeutil.Clock
	Counters *monitoring.Counters
}

// Source adapts a Device to a stream of fixed-size SampleBlocks. It owns the
// device handle for its whole lifetime.
type Source struct {
	driver string
	dev    Device
	cfg    DeviceConfig
	opts   SourceOptions
	format SampleFormat

	raw     []byte
	nextIdx uint64
	seq     uint64
	epoch   time.Time // wall time of sample 0

	closeOnce sync.Once
	closeErr  error
	mu        sync.Mutex
	closed    bool
}

// Open acquires a device through drv and wraps it in a Source. It fails with
// a *DeviceError (errors.Is(err, ErrDevice)) when the hardware is absent or
// busy.
func Open(ctx context.Context, drv Driver, cfg DeviceConfig, opts SourceOptions) (*Source, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.CenterFrequency == 0 {
		cfg.CenterFrequency = DefaultCenterFrequency
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Counters == nil {
		opts.Counters = monitoring.NewCounters()
	}
	if opts.SourceID == "" {
		opts.SourceID = fmt.Sprintf("%s-%d", drv.Name(), cfg.DeviceIndex)
	}

	dev, err := drv.Open(ctx, cfg)
	if err != nil {
		return nil, deviceError(drv.Name(), "open", err)
	}

	format := dev.Format()
	monitoring.Logf("[Source] opened %s device %q at %.3f MHz, %d S/s, format %s",
		drv.Name(), cfg.Address, float64(cfg.CenterFrequency)/1e6, cfg.SampleRate, format)

	return &Source{
		driver: drv.Name(),
		dev:    dev,
		cfg:    cfg,
		opts:   opts,
		format: format,
		raw:    make([]byte, opts.BlockSize*format.BytesPerSample()),
	}, nil
}

// SourceID returns the identifier stamped on this source's blocks.
func (s *Source) SourceID() string { return s.opts.SourceID }

// SampleRate returns the configured sample rate.
func (s *Source) SampleRate() int { return s.cfg.SampleRate }

// ReadBlock blocks until a full block is available. It returns
// ErrDeviceDisconnected when the device drops, ErrEndOfStream when a
// recording is exhausted and ErrSourceClosed once Close has been called.
// A trailing partial block at end of stream is discarded.
func (s *Source) ReadBlock(ctx context.Context) (SampleBlock, error) {
	if err := ctx.Err(); err != nil {
		return SampleBlock{}, err
	}
	if s.isClosed() {
		return SampleBlock{}, ErrSourceClosed
	}

	n, err := io.ReadFull(s.dev, s.raw)
	if err != nil {
		switch {
		case s.isClosed():
			return SampleBlock{}, ErrSourceClosed
		case errors.Is(err, ErrDeviceDisconnected):
			return SampleBlock{}, fmt.Errorf("%s: %w", s.opts.SourceID, err)
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			if n > 0 {
				monitoring.Logf("[Source] %s: discarding %d trailing bytes", s.opts.SourceID, n)
			}
			return SampleBlock{}, ErrEndOfStream
		default:
			return SampleBlock{}, fmt.Errorf("%s: %w: %v", s.opts.SourceID, ErrDeviceDisconnected, err)
		}
	}

	samples := make([]complex64, s.opts.BlockSize)
	s.format.Convert(samples, s.raw)

	// The first read returns once its last sample has arrived; every later
	// block is placed on the sample clock from there.
	if s.seq == 0 {
		s.epoch = s.opts.Clock.Now().Add(-timeutil.SampleDuration(uint64(len(samples)), s.cfg.SampleRate))
	}

	block := SampleBlock{
		Samples:    samples,
		Timestamp:  s.epoch.Add(timeutil.SampleDuration(s.nextIdx, s.cfg.SampleRate)),
		StartIndex: s.nextIdx,
		Seq:        s.seq,
		SourceID:   s.opts.SourceID,
		SampleRate: s.cfg.SampleRate,
	}
	s.nextIdx += uint64(len(samples))
	s.seq++
	s.opts.Counters.BlocksRead.Add(1)
	return block, nil
}

// Close releases the device. It is safe to call more than once and from a
// goroutine other than the reader; a blocked ReadBlock returns
// ErrSourceClosed.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.closeErr = s.dev.Close()
		monitoring.Logf("[Source] closed %s device %q", s.driver, s.cfg.Address)
	})
	return s.closeErr
}

func (s *Source) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
