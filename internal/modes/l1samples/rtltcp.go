package l1samples

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"time"

	"github.com/banshee-data/modes1090/internal/monitoring"
)

// rtl_tcp command opcodes.
const (
	rtlCmdFrequency  = 0x01
	rtlCmdSampleRate = 0x02
	rtlCmdGainMode   = 0x03
	rtlCmdGain       = 0x04
	rtlCmdPPM        = 0x05
	rtlCmdAGC        = 0x08
)

const rtlHeaderLen = 12

// RTLTCPDriver opens rtl_tcp servers. Address is host:port.
type RTLTCPDriver struct {
	// DialTimeout bounds connection setup; zero means 5s.
	DialTimeout time.Duration
}

func (RTLTCPDriver) Name() string { return "rtltcp" }

// Open connects, validates the RTL0 greeting and tunes the device.
func (d RTLTCPDriver) Open(ctx context.Context, cfg DeviceConfig) (Device, error) {
	timeout := d.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, &DeviceError{Driver: d.Name(), Op: "dial", Err: err}
	}

	dev, err := newRTLTCPDevice(conn, cfg, timeout)
	if err != nil {
		conn.Close()
		return nil, &DeviceError{Driver: d.Name(), Op: "handshake", Err: err}
	}
	return dev, nil
}

type rtlCommand struct {
	op  byte
	arg uint32
}

type rtlTCPDevice struct {
	conn      net.Conn
	r         *bufio.Reader
	tunerType uint32
	gains     uint32
}

func newRTLTCPDevice(conn net.Conn, cfg DeviceConfig, timeout time.Duration) (*rtlTCPDevice, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	var hdr [rtlHeaderLen]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(hdr[:4]) != "RTL0" {
		return nil, fmt.Errorf("unexpected greeting %q", hdr[:4])
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}

	dev := &rtlTCPDevice{
		conn:      conn,
		r:         bufio.NewReaderSize(conn, 1<<16),
		tunerType: binary.BigEndian.Uint32(hdr[4:8]),
		gains:     binary.BigEndian.Uint32(hdr[8:12]),
	}

	cmds := []rtlCommand{
		{rtlCmdSampleRate, uint32(cfg.SampleRate)},
		{rtlCmdFrequency, cfg.CenterFrequency},
	}
	if cfg.PPM != 0 {
		cmds = append(cmds, rtlCommand{rtlCmdPPM, uint32(int32(cfg.PPM))})
	}
	if cfg.Gain < 0 {
		cmds = append(cmds, rtlCommand{rtlCmdGainMode, 0}, rtlCommand{rtlCmdAGC, 1})
	} else {
		cmds = append(cmds, rtlCommand{rtlCmdGainMode, 1}, rtlCommand{rtlCmdGain, uint32(math.Round(cfg.Gain * 10))})
	}
	for _, c := range cmds {
		if err := dev.command(c.op, c.arg); err != nil {
			return nil, err
		}
	}

	monitoring.Logf("[rtltcp] connected to %s (tuner type %d, %d gain steps)",
		conn.RemoteAddr(), dev.tunerType, dev.gains)
	return dev, nil
}

func (d *rtlTCPDevice) command(op byte, arg uint32) error {
	var buf [5]byte
	buf[0] = op
	binary.BigEndian.PutUint32(buf[1:], arg)
	if _, err := d.conn.Write(buf[:]); err != nil {
		return fmt.Errorf("command 0x%02x: %w", op, err)
	}
	return nil
}

// Read returns raw cu8 samples. Any transport error after the handshake
// means the server went away.
func (d *rtlTCPDevice) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return n, ErrSourceClosed
		}
		return n, fmt.Errorf("%w: %v", ErrDeviceDisconnected, err)
	}
	return n, nil
}

func (d *rtlTCPDevice) Close() error { return d.conn.Close() }

func (d *rtlTCPDevice) Format() SampleFormat { return FormatCU8 }
