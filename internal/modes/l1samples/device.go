package l1samples

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrDevice marks failures to open or configure hardware. It is
	// unrecoverable for the current run.
	ErrDevice = errors.New("device error")

	// ErrDeviceDisconnected is returned when a device stops delivering
	// samples mid-run. Reattaching is the caller's decision.
	ErrDeviceDisconnected = errors.New("device disconnected")

	// ErrEndOfStream is returned when a finite source (a recording) is
	// exhausted.
	ErrEndOfStream = errors.New("end of sample stream")

	// ErrSourceClosed is returned by ReadBlock after Close.
	ErrSourceClosed = errors.New("sample source closed")
)

// DeviceError describes a failed hardware operation.
type DeviceError struct {
	Driver string
	Op     string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Driver, e.Op, e.Err)
}

// Unwrap lets errors.Is match both ErrDevice and the underlying cause.
func (e *DeviceError) Unwrap() []error {
	return []error{ErrDevice, e.Err}
}

// DeviceConfig enumerates the tuning parameters applied when a device is
// opened. Devices never retune during a run.
type DeviceConfig struct {
	// Address locates the device: host:port for rtl_tcp, a file path for
	// recordings, a multicast group for RTP.
	Address string

	CenterFrequency uint32 // Hz
	SampleRate      int    // samples per second
	Gain            float64
	DeviceIndex     int
	PPM             int

	// Format is the sample encoding for drivers that cannot discover it.
	Format SampleFormat
}

// AutoGain selects the tuner's automatic gain control.
const AutoGain = -1.0

// Device is an open hardware handle streaming raw interleaved IQ bytes.
// Read blocks until data is available. Implementations wrap transport
// failures in ErrDeviceDisconnected and return io.EOF only when a finite
// stream is exhausted.
type Device interface {
	io.Reader
	io.Closer
	Format() SampleFormat
}

// Driver is the per-backend capability used to open devices. The pipeline
// never branches on which driver is in use.
type Driver interface {
	Name() string
	// Open acquires and tunes the device. Failures are *DeviceError.
	Open(ctx context.Context, cfg DeviceConfig) (Device, error)
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc struct {
	DriverName string
	OpenFunc   func(ctx context.Context, cfg DeviceConfig) (Device, error)
}

func (d DriverFunc) Name() string { return d.DriverName }

func (d DriverFunc) Open(ctx context.Context, cfg DeviceConfig) (Device, error) {
	return d.OpenFunc(ctx, cfg)
}

// deviceError wraps err unless it is already a *DeviceError.
func deviceError(driver, op string, err error) error {
	var de *DeviceError
	if errors.As(err, &de) {
		return err
	}
	return &DeviceError{Driver: driver, Op: op, Err: err}
}
