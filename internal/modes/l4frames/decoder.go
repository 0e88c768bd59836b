package l4frames

import (
	"errors"
	"fmt"

	"github.com/banshee-data/modes1090/internal/modes/l3demod"
	"github.com/banshee-data/modes1090/internal/monitoring"
)

// ErrIntegrity is wrapped by every RejectError.
var ErrIntegrity = errors.New("integrity check failed")

// RejectError describes a dropped frame. Rejections are counted and never
// propagate past the decoder.
type RejectError struct {
	Reason         string
	DownlinkFormat uint8
	Remainder      uint32
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("DF%d rejected (%s, remainder %06x)", e.DownlinkFormat, e.Reason, e.Remainder)
}

func (e *RejectError) Unwrap() error { return ErrIntegrity }

// DecoderConfig tunes the frame decoder.
type DecoderConfig struct {
	// TrustThreshold is the bit confidence at or above which a bit is
	// believed and never flipped (default: 0.35).
	TrustThreshold float32
	// DisableCorrection turns off single-bit repair.
	DisableCorrection bool
	// AcceptInterrogatorCode accepts DF11 replies whose remainder is a
	// non-zero interrogator code. Such a remainder is indistinguishable
	// from a flipped parity bit, so it is off by default.
	AcceptInterrogatorCode bool

	Counters *monitoring.Counters
}

// DefaultTrustThreshold is used when DecoderConfig.TrustThreshold is zero.
const DefaultTrustThreshold = 0.35

// Decoder validates bit sequences. It is stateless apart from its counters
// and safe for concurrent use.
type Decoder struct {
	cfg DecoderConfig
}

// NewDecoder creates a Decoder.
func NewDecoder(cfg DecoderConfig) *Decoder {
	if cfg.TrustThreshold <= 0 {
		cfg.TrustThreshold = DefaultTrustThreshold
	}
	if cfg.Counters == nil {
		cfg.Counters = monitoring.NewCounters()
	}
	return &Decoder{cfg: cfg}
}

// Decode maps seq onto a frame and checks its parity. On failure it
// returns a *RejectError and counts the rejection.
func (d *Decoder) Decode(seq *l3demod.BitSequence) (DecodedFrame, error) {
	df := uint8(seq.Bits[0]<<4 | seq.Bits[1]<<3 | seq.Bits[2]<<2 | seq.Bits[3]<<1 | seq.Bits[4])
	if df >= 24 {
		df = 24
	}
	class := ClassOf(df)
	n := class.Bits()
	payload := seq.Bytes(n)
	rem := Checksum(payload)

	integrity, reason := d.check(df, payload, rem, seq)
	if reason != "" {
		d.cfg.Counters.AddRejected(reason)
		return DecodedFrame{}, &RejectError{Reason: reason, DownlinkFormat: df, Remainder: rem}
	}
	d.cfg.Counters.AddAccepted(integrity.Status == StatusCorrected)

	f := DecodedFrame{
		Class:          class,
		Payload:        payload,
		DownlinkFormat: df,
		Integrity:      integrity,
		Timestamp:      seq.Timestamp,
		SampleIndex:    seq.SampleIndex,
		SourceID:       seq.SourceID,
		SignalLevel:    seq.SignalLevel,
	}
	if f.HasAddress() {
		f.Capability = payload[0] & 0x07
		f.Address = uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3])
	}
	if df == 17 || df == 18 {
		f.TypeCode = payload[4] >> 3
	}
	return f, nil
}

// check validates payload in place, repairing one bit when allowed. It
// returns the reject reason or "".
func (d *Decoder) check(df uint8, payload []byte, rem uint32, seq *l3demod.BitSequence) (Integrity, string) {
	switch df {
	case 17, 18:
		if rem == 0 {
			return Valid, ""
		}
	case 11:
		if rem == 0 {
			return Valid, ""
		}
		// The low seven bits are the interrogator code.
		if d.cfg.AcceptInterrogatorCode && rem&^0x7F == 0 {
			return Valid, ""
		}
	default:
		// Address/parity: the remainder is the aircraft address, which
		// cannot be confirmed from a single frame.
		return Integrity{}, monitoring.RejectUnverifiable
	}

	if d.cfg.DisableCorrection {
		return Integrity{}, monitoring.RejectChecksum
	}
	bit, ok := syndromeBit(len(payload)*8, rem)
	if !ok {
		return Integrity{}, monitoring.RejectChecksum
	}
	if seq.Confidence[bit] >= d.cfg.TrustThreshold {
		return Integrity{}, monitoring.RejectTrustedBit
	}
	payload[bit/8] ^= 1 << (7 - uint(bit%8))
	if Checksum(payload) != 0 {
		payload[bit/8] ^= 1 << (7 - uint(bit%8))
		return Integrity{}, monitoring.RejectChecksum
	}
	return Corrected(bit), ""
}
