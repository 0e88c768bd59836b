package l1samples

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIQFileDriver(t *testing.T) {
	t.Parallel()

	samples := ramp(256)
	tests := []struct {
		name   string
		file   string
		format SampleFormat
	}{
		{"cu8", "capture.cu8", FormatCU8},
		{"cs16 zstd", "capture.cs16.zst", FormatCS16LE},
		{"cf32", "capture.cf32", FormatCF32LE},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, WriteIQFile(path, tt.format, samples))

			src, err := Open(context.Background(), IQFileDriver{}, DeviceConfig{Address: path}, SourceOptions{BlockSize: 100})
			require.NoError(t, err)
			defer src.Close()

			var got []complex64
			for {
				b, err := src.ReadBlock(context.Background())
				if err != nil {
					assert.ErrorIs(t, err, ErrEndOfStream)
					break
				}
				got = append(got, b.Samples...)
			}
			// 256 samples in blocks of 100: the 56-sample tail is dropped.
			require.Len(t, got, 200)
			for i := range got {
				assert.InDelta(t, real(samples[i]), real(got[i]), 0.01)
			}
		})
	}
}

func TestIQFileDriver_Missing(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), IQFileDriver{}, DeviceConfig{Address: "/nonexistent/capture.cu8"}, SourceOptions{})
	assert.ErrorIs(t, err, ErrDevice)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// fakeRTLTCP serves the RTL0 greeting, records tuning commands and then
// streams payload before hanging up.
func fakeRTLTCP(t *testing.T, payload []byte) (string, <-chan []byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	cmds := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		hdr := []byte("RTL0")
		hdr = binary.BigEndian.AppendUint32(hdr, 5)
		hdr = binary.BigEndian.AppendUint32(hdr, 29)
		conn.Write(hdr)

		// rate, freq, gain mode, gain
		buf := make([]byte, 4*5)
		io.ReadFull(conn, buf)
		cmds <- buf

		conn.Write(payload)
	}()
	return ln.Addr().String(), cmds
}

func TestRTLTCPDriver(t *testing.T) {
	t.Parallel()

	samples := ramp(64)
	addr, cmds := fakeRTLTCP(t, FormatCU8.Encode(nil, samples))

	src, err := Open(context.Background(), RTLTCPDriver{DialTimeout: time.Second}, DeviceConfig{
		Address:         addr,
		CenterFrequency: 1_090_000_000,
		SampleRate:      2_000_000,
		Gain:            49.6,
	}, SourceOptions{BlockSize: 64})
	require.NoError(t, err)
	defer src.Close()

	sent := <-cmds
	assert.Equal(t, byte(rtlCmdSampleRate), sent[0])
	assert.Equal(t, uint32(2_000_000), binary.BigEndian.Uint32(sent[1:5]))
	assert.Equal(t, byte(rtlCmdFrequency), sent[5])
	assert.Equal(t, uint32(1_090_000_000), binary.BigEndian.Uint32(sent[6:10]))
	assert.Equal(t, byte(rtlCmdGainMode), sent[10])
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(sent[11:15]))
	assert.Equal(t, byte(rtlCmdGain), sent[15])
	assert.Equal(t, uint32(496), binary.BigEndian.Uint32(sent[16:20]))

	b, err := src.ReadBlock(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, real(samples[3]), real(b.Samples[3]), 0.01)

	// The server hangs up after one block.
	_, err = src.ReadBlock(context.Background())
	assert.ErrorIs(t, err, ErrDeviceDisconnected)
}

func TestRTLTCPDriver_BadGreeting(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("HTTP/1.1 200"))
	}()

	_, err = Open(context.Background(), RTLTCPDriver{DialTimeout: time.Second}, DeviceConfig{Address: ln.Addr().String()}, SourceOptions{})
	assert.ErrorIs(t, err, ErrDevice)
	assert.Contains(t, err.Error(), "greeting")
}

func rtpPacket(t *testing.T, seq uint16, ssrc uint32, payload []byte) []byte {
	t.Helper()
	pkt := rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 97, SequenceNumber: seq, SSRC: ssrc},
		Payload: payload,
	}
	raw, err := pkt.Marshal()
	require.NoError(t, err)
	return raw
}

func TestRTPStream_FillsGaps(t *testing.T) {
	t.Parallel()

	payload := FormatCS16BE.Encode(nil, []complex64{complex(0.5, 0.5), complex(0.5, 0.5)})
	packets := [][]byte{
		rtpPacket(t, 10, 7, payload),
		rtpPacket(t, 11, 99, payload), // other stream
		rtpPacket(t, 11, 7, payload),
		rtpPacket(t, 14, 7, payload), // 12 and 13 lost
		[]byte{0x00},                 // not RTP
	}
	next := func() ([]byte, error) {
		if len(packets) == 0 {
			return nil, io.EOF
		}
		p := packets[0]
		packets = packets[1:]
		return p, nil
	}
	s := newRTPStream(next, nil, FormatCS16BE, 7)

	raw, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.Lost())

	got := make([]complex64, len(raw)/4)
	FormatCS16BE.Convert(got, raw)
	require.Len(t, got, 10)
	assert.InDelta(t, 0.5, real(got[3]), 1e-3)
	assert.Zero(t, got[4])
	assert.Zero(t, got[7])
	assert.InDelta(t, 0.5, real(got[8]), 1e-3)
}

func TestPcapDriver(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "iq.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	samples := ramp(32)
	write := func(seq uint16, dstPort layers.UDPPort, chunk []complex64) {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
			DstMAC:       net.HardwareAddr{1, 0, 0x5e, 0, 0, 1},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version: 4, TTL: 1, Protocol: layers.IPProtocolUDP,
			SrcIP: net.IP{10, 0, 0, 1}, DstIP: net.IP{239, 1, 2, 3},
		}
		udp := &layers.UDP{SrcPort: 5004, DstPort: dstPort}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		payload := gopacket.Payload(rtpPacket(t, seq, 1, FormatCS16BE.Encode(nil, chunk)))
		require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, payload))
		data := buf.Bytes()
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{
			Timestamp: time.Unix(1700000000, 0), CaptureLength: len(data), Length: len(data),
		}, data))
	}
	write(1, 5004, samples[:16])
	write(1, 9999, samples[:16]) // filtered by port
	write(2, 5004, samples[16:])
	require.NoError(t, f.Close())

	src, err := Open(context.Background(), PcapDriver{}, DeviceConfig{Address: path + ":5004"}, SourceOptions{BlockSize: 32})
	require.NoError(t, err)
	defer src.Close()

	b, err := src.ReadBlock(context.Background())
	require.NoError(t, err)
	for i := range samples {
		assert.InDelta(t, real(samples[i]), real(b.Samples[i]), 1e-3)
	}
	_, err = src.ReadBlock(context.Background())
	assert.ErrorIs(t, err, ErrEndOfStream)
}

func TestSplitPcapAddress(t *testing.T) {
	t.Parallel()

	path, port := splitPcapAddress("/tmp/x.pcap:5004")
	assert.Equal(t, "/tmp/x.pcap", path)
	assert.Equal(t, 5004, port)

	path, port = splitPcapAddress("x.pcap")
	assert.Equal(t, "x.pcap", path)
	assert.Zero(t, port)
}
