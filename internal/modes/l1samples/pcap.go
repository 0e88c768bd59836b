package l1samples

import (
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PcapDriver replays RTP IQ streams captured with tcpdump. Address is
// "path" or "path:port"; with a port only UDP datagrams to that port are
// used. The stream ends with the capture.
type PcapDriver struct {
	SSRC uint32
}

func (PcapDriver) Name() string { return "pcap" }

// Open opens the capture file.
func (d PcapDriver) Open(_ context.Context, cfg DeviceConfig) (Device, error) {
	path, port := splitPcapAddress(cfg.Address)

	f, err := os.Open(path)
	if err != nil {
		return nil, &DeviceError{Driver: d.Name(), Op: "open", Err: err}
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, &DeviceError{Driver: d.Name(), Op: "read header", Err: err}
	}

	format := cfg.Format
	if format == FormatCU8 {
		format = FormatCS16BE
	}

	next := func() ([]byte, error) {
		for {
			data, _, err := r.ReadPacketData()
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					return nil, io.EOF
				}
				return nil, err
			}
			pkt := gopacket.NewPacket(data, r.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
			udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
			if !ok {
				continue
			}
			if port != 0 && int(udp.DstPort) != port {
				continue
			}
			return udp.Payload, nil
		}
	}
	return newRTPStream(next, f.Close, format, d.SSRC), nil
}

func splitPcapAddress(addr string) (string, int) {
	i := strings.LastIndexByte(addr, ':')
	if i < 0 {
		return addr, 0
	}
	port, err := strconv.Atoi(addr[i+1:])
	if err != nil || port <= 0 || port > 65535 {
		return addr, 0
	}
	return addr[:i], port
}
