package l1samples

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

// TestableDevice implements Device with configurable behaviour for testing.
// It provides fine-grained control over reads, errors, and latency.
type TestableDevice struct {
	mu sync.Mutex

	// ReadBuffer holds raw IQ bytes to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// SampleFormat is reported by Format
	SampleFormat SampleFormat

	// ReadLatency adds a delay to each Read call
	ReadLatency time.Duration

	// ReadError is returned by the next Read call if set
	ReadError error

	// EOFWhenEmpty makes Read return io.EOF once the buffer is drained,
	// like a recording. Otherwise an empty buffer blocks.
	EOFWhenEmpty bool

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	readCond *sync.Cond
}

// NewTestableDevice creates a new TestableDevice reporting format f.
func NewTestableDevice(f SampleFormat) *TestableDevice {
	d := &TestableDevice{
		ReadBuffer:   bytes.NewBuffer(nil),
		SampleFormat: f,
	}
	d.readCond = sync.NewCond(&d.mu)
	return d
}

// Read returns queued data, blocking while the buffer is empty unless
// EOFWhenEmpty is set.
func (d *TestableDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ReadCalls++

	if d.Closed {
		return 0, ErrSourceClosed
	}

	if d.ReadError != nil {
		err := d.ReadError
		d.ReadError = nil
		return 0, err
	}

	if d.ReadLatency > 0 {
		d.mu.Unlock()
		time.Sleep(d.ReadLatency)
		d.mu.Lock()
	}

	for d.ReadBuffer.Len() == 0 {
		if d.EOFWhenEmpty {
			return 0, io.EOF
		}
		if d.Closed {
			return 0, ErrSourceClosed
		}
		if d.ReadError != nil {
			err := d.ReadError
			d.ReadError = nil
			return 0, err
		}
		d.readCond.Wait()
	}

	return d.ReadBuffer.Read(p)
}

// Close marks the device closed and wakes blocked readers.
func (d *TestableDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Closed = true
	d.readCond.Broadcast()
	return d.CloseError
}

// Format implements Device.
func (d *TestableDevice) Format() SampleFormat {
	return d.SampleFormat
}

// AddReadData queues raw bytes for subsequent Read calls.
func (d *TestableDevice) AddReadData(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ReadBuffer.Write(data)
	d.readCond.Broadcast()
}

// AddSamples encodes samples in the device format and queues them.
func (d *TestableDevice) AddSamples(samples []complex64) {
	d.AddReadData(d.SampleFormat.Encode(nil, samples))
}

// InjectError makes the next Read (including a blocked one) fail with err.
func (d *TestableDevice) InjectError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ReadError = err
	d.readCond.Broadcast()
}

// Finish marks the stream finite so Read returns io.EOF once drained.
func (d *TestableDevice) Finish() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.EOFWhenEmpty = true
	d.readCond.Broadcast()
}

// Reads returns the number of Read calls so far.
func (d *TestableDevice) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ReadCalls
}

// IsClosed reports whether Close was called.
func (d *TestableDevice) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Closed
}

// MockDriver implements Driver for testing.
type MockDriver struct {
	mu sync.Mutex

	// Device is returned from Open
	Device Device

	// Error is returned by Open if set
	Error error

	// OpenCalls records the configuration passed to each Open call
	OpenCalls []DeviceConfig
}

// NewMockDriver creates a MockDriver handing out dev.
func NewMockDriver(dev Device) *MockDriver {
	return &MockDriver{Device: dev}
}

func (m *MockDriver) Name() string { return "mock" }

// Open returns the configured device or error.
func (m *MockDriver) Open(_ context.Context, cfg DeviceConfig) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.OpenCalls = append(m.OpenCalls, cfg)
	if m.Error != nil {
		return nil, m.Error
	}
	return m.Device, nil
}
