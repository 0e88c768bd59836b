package l1samples

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/modes1090/internal/monitoring"
	"github.com/pion/rtp"
	"golang.org/x/net/ipv4"
)

// maxFilledGap bounds how many lost RTP packets are replaced with silence.
// Larger gaps are passed through and show up as a timing discontinuity.
const maxFilledGap = 64

// RTPDriver receives IQ streams multicast by ka9q-radio style front ends.
// Address is the group:port. Payloads are interleaved signed 16-bit big
// endian samples unless DeviceConfig.Format says otherwise.
type RTPDriver struct {
	// Interface optionally names the interface used to join the group.
	Interface string
	// SSRC selects one stream on a shared group; zero accepts any.
	SSRC uint32
}

func (RTPDriver) Name() string { return "rtp" }

// Open joins the multicast group.
func (d RTPDriver) Open(ctx context.Context, cfg DeviceConfig) (Device, error) {
	addr, err := net.ResolveUDPAddr("udp4", cfg.Address)
	if err != nil {
		return nil, &DeviceError{Driver: d.Name(), Op: "resolve", Err: err}
	}

	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", addr.Port))
	if err != nil {
		return nil, &DeviceError{Driver: d.Name(), Op: "listen", Err: err}
	}
	conn := pc.(*net.UDPConn)
	if err := conn.SetReadBuffer(4 << 20); err != nil {
		monitoring.Logf("[rtp] failed to set read buffer size: %v", err)
	}

	if addr.IP.IsMulticast() {
		var iface *net.Interface
		if d.Interface != "" {
			if iface, err = net.InterfaceByName(d.Interface); err != nil {
				conn.Close()
				return nil, &DeviceError{Driver: d.Name(), Op: "interface", Err: err}
			}
		}
		if err := ipv4.NewPacketConn(conn).JoinGroup(iface, &net.UDPAddr{IP: addr.IP}); err != nil {
			conn.Close()
			return nil, &DeviceError{Driver: d.Name(), Op: "join", Err: err}
		}
	}

	format := cfg.Format
	if format == FormatCU8 {
		format = FormatCS16BE
	}

	buf := make([]byte, 65536)
	next := func() ([]byte, error) {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil, ErrSourceClosed
			}
			return nil, fmt.Errorf("%w: %v", ErrDeviceDisconnected, err)
		}
		return buf[:n], nil
	}
	return newRTPStream(next, conn.Close, format, d.SSRC), nil
}

// rtpStream reassembles RTP payloads into a byte stream. Lost packets are
// replaced by zero samples so the sample clock stays aligned.
type rtpStream struct {
	next   func() ([]byte, error)
	close  func() error
	format SampleFormat
	ssrc   uint32

	mu      sync.Mutex
	pending []byte
	havePkt bool
	lastSeq uint16
	lastLen int
	lost    atomic.Uint64
}

func newRTPStream(next func() ([]byte, error), closeFn func() error, f SampleFormat, ssrc uint32) *rtpStream {
	return &rtpStream{next: next, close: closeFn, format: f, ssrc: ssrc}
}

func (s *rtpStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.pending) == 0 {
		raw, err := s.next()
		if err != nil {
			return 0, err
		}
		var pkt rtp.Packet
		if err := pkt.Unmarshal(raw); err != nil {
			continue
		}
		if s.ssrc != 0 && pkt.SSRC != s.ssrc {
			continue
		}
		s.accept(&pkt)
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *rtpStream) accept(pkt *rtp.Packet) {
	if s.havePkt {
		gap := pkt.SequenceNumber - s.lastSeq - 1
		switch {
		case gap == 0:
		case gap < maxFilledGap:
			s.lost.Add(uint64(gap))
			s.pending = append(s.pending, make([]byte, int(gap)*s.lastLen)...)
		case gap > 0xFFFF-maxFilledGap:
			// reordered or duplicate packet
			return
		default:
			s.lost.Add(uint64(gap))
			monitoring.Logf("[rtp] lost %d packets, stream discontinuity", gap)
		}
	}
	s.havePkt = true
	s.lastSeq = pkt.SequenceNumber
	whole := len(pkt.Payload) - len(pkt.Payload)%s.format.BytesPerSample()
	s.lastLen = whole
	s.pending = append(s.pending, pkt.Payload[:whole]...)
}

// Lost returns the number of packets missing from the sequence so far.
func (s *rtpStream) Lost() uint64 {
	return s.lost.Load()
}

func (s *rtpStream) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func (s *rtpStream) Format() SampleFormat { return s.format }

var _ io.ReadCloser = (*rtpStream)(nil)
