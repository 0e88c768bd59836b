package l1samples

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/banshee-data/modes1090/internal/timeutil"
)

// Mode S receivers sample at 2 MS/s so that every 0.5 µs chip maps to one
// sample.
const (
	DefaultSampleRate      = 2_000_000
	DefaultCenterFrequency = 1_090_000_000
	DefaultBlockSize       = 1 << 16
)

// SampleBlock is a fixed-size run of complex samples captured from one
// device. Blocks are immutable once produced by a Source.
type SampleBlock struct {
	Samples    []complex64
	Timestamp  time.Time // capture time of Samples[0]
	StartIndex uint64    // absolute index of Samples[0] since the run started
	Seq        uint64
	SourceID   string
	SampleRate int
}

// Len returns the number of samples in the block.
func (b SampleBlock) Len() int { return len(b.Samples) }

// TimeAt returns the capture time of the sample with absolute index idx,
// which may precede the block when it was carried over from earlier blocks.
func (b SampleBlock) TimeAt(idx uint64) time.Time {
	if idx >= b.StartIndex {
		return b.Timestamp.Add(timeutil.SampleDuration(idx-b.StartIndex, b.SampleRate))
	}
	return b.Timestamp.Add(-timeutil.SampleDuration(b.StartIndex-idx, b.SampleRate))
}

// SampleFormat describes how a device encodes interleaved I/Q pairs.
type SampleFormat int

const (
	FormatCU8    SampleFormat = iota // unsigned 8-bit, rtl-sdr native
	FormatCS16LE                     // signed 16-bit little endian
	FormatCS16BE                     // signed 16-bit big endian, ka9q-radio RTP
	FormatCF32LE                     // float32 little endian
)

// ParseSampleFormat parses the short names used in configuration files.
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cu8", "u8":
		return FormatCU8, nil
	case "cs16", "cs16le", "s16":
		return FormatCS16LE, nil
	case "cs16be", "s16be":
		return FormatCS16BE, nil
	case "cf32", "cf32le", "f32":
		return FormatCF32LE, nil
	}
	return FormatCU8, fmt.Errorf("unsupported sample format %q: expected cu8, cs16le, cs16be or cf32le", s)
}

func (f SampleFormat) String() string {
	switch f {
	case FormatCU8:
		return "cu8"
	case FormatCS16LE:
		return "cs16le"
	case FormatCS16BE:
		return "cs16be"
	case FormatCF32LE:
		return "cf32le"
	}
	return fmt.Sprintf("SampleFormat(%d)", int(f))
}

// BytesPerSample returns the encoded size of one complex sample.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatCS16LE, FormatCS16BE:
		return 4
	case FormatCF32LE:
		return 8
	}
	return 2
}

// cu8LUT pre-computes normalised values with the usual rtl-sdr DC offset.
var cu8LUT = func() (lut [256]float32) {
	for i := range lut {
		lut[i] = (float32(i) - 127.5) / 127.5
	}
	return
}()

// Convert decodes len(dst) complex samples from src. src must hold at least
// len(dst)*f.BytesPerSample() bytes.
func (f SampleFormat) Convert(dst []complex64, src []byte) {
	switch f {
	case FormatCU8:
		for i := range dst {
			dst[i] = complex(cu8LUT[src[2*i]], cu8LUT[src[2*i+1]])
		}
	case FormatCS16LE:
		for i := range dst {
			re := int16(binary.LittleEndian.Uint16(src[4*i:]))
			im := int16(binary.LittleEndian.Uint16(src[4*i+2:]))
			dst[i] = complex(float32(re)/32768, float32(im)/32768)
		}
	case FormatCS16BE:
		for i := range dst {
			re := int16(binary.BigEndian.Uint16(src[4*i:]))
			im := int16(binary.BigEndian.Uint16(src[4*i+2:]))
			dst[i] = complex(float32(re)/32768, float32(im)/32768)
		}
	case FormatCF32LE:
		for i := range dst {
			re := math.Float32frombits(binary.LittleEndian.Uint32(src[8*i:]))
			im := math.Float32frombits(binary.LittleEndian.Uint32(src[8*i+4:]))
			dst[i] = complex(re, im)
		}
	}
}

// Encode is the inverse of Convert. It is used by recorders and by the
// synthetic signal generator.
func (f SampleFormat) Encode(dst []byte, src []complex64) []byte {
	for _, s := range src {
		re, im := real(s), imag(s)
		switch f {
		case FormatCU8:
			dst = append(dst, quantizeU8(re), quantizeU8(im))
		case FormatCS16LE:
			dst = binary.LittleEndian.AppendUint16(dst, uint16(quantizeS16(re)))
			dst = binary.LittleEndian.AppendUint16(dst, uint16(quantizeS16(im)))
		case FormatCS16BE:
			dst = binary.BigEndian.AppendUint16(dst, uint16(quantizeS16(re)))
			dst = binary.BigEndian.AppendUint16(dst, uint16(quantizeS16(im)))
		case FormatCF32LE:
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(re))
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(im))
		}
	}
	return dst
}

func quantizeU8(v float32) byte {
	x := math.Round(float64(v)*127.5 + 127.5)
	return byte(math.Max(0, math.Min(255, x)))
}

func quantizeS16(v float32) int16 {
	x := math.Round(float64(v) * 32768)
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, x)))
}
