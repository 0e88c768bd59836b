package l6publish

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/modes1090/internal/modes/l4frames"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of modes.v1.Record.
const (
	fieldWallUnixNanos   protowire.Number = 1
	fieldMonotonicNanos  protowire.Number = 2
	fieldSourceID        protowire.Number = 3
	fieldFrameClass      protowire.Number = 4
	fieldIntegrityStatus protowire.Number = 5
	fieldCorrectedBit    protowire.Number = 6
	fieldPayload         protowire.Number = 7
	fieldDownlinkFormat  protowire.Number = 8
	fieldAddress         protowire.Number = 9
	fieldSignalLevel     protowire.Number = 10
	fieldRunID           protowire.Number = 11
)

// ErrMalformedRecord is returned by Decode for bytes that are not a record.
var ErrMalformedRecord = errors.New("malformed record")

// Record is the decoded form of one wire record.
type Record struct {
	WallTime  time.Time
	Monotonic time.Duration // sample-clock time since the run started
	SourceID  string
	Class     l4frames.FrameClass
	Integrity l4frames.Integrity
	Payload   []byte

	DownlinkFormat uint8
	Address        uint32
	SignalLevel    float32
	RunID          string
}

// AppendRecord appends the wire encoding of r to b. Zero-valued optional
// fields are omitted.
func AppendRecord(b []byte, r Record) []byte {
	b = protowire.AppendTag(b, fieldWallUnixNanos, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, uint64(r.WallTime.UnixNano()))
	if r.Monotonic > 0 {
		b = protowire.AppendTag(b, fieldMonotonicNanos, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.Monotonic))
	}
	if r.SourceID != "" {
		b = protowire.AppendTag(b, fieldSourceID, protowire.BytesType)
		b = protowire.AppendString(b, r.SourceID)
	}
	b = protowire.AppendTag(b, fieldFrameClass, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Class))
	b = protowire.AppendTag(b, fieldIntegrityStatus, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Integrity.Status))
	if r.Integrity.Status == l4frames.StatusCorrected {
		b = protowire.AppendTag(b, fieldCorrectedBit, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(r.Integrity.BitIndex)))
	}
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Payload)
	b = protowire.AppendTag(b, fieldDownlinkFormat, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.DownlinkFormat))
	if r.Address != 0 {
		b = protowire.AppendTag(b, fieldAddress, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.Address))
	}
	if r.SignalLevel != 0 {
		b = protowire.AppendTag(b, fieldSignalLevel, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(r.SignalLevel))
	}
	if r.RunID != "" {
		b = protowire.AppendTag(b, fieldRunID, protowire.BytesType)
		b = protowire.AppendString(b, r.RunID)
	}
	return b
}

// Encode returns the wire encoding of r.
func Encode(r Record) []byte {
	return AppendRecord(make([]byte, 0, 64), r)
}

// Decode parses a wire record. Unknown fields are skipped so newer writers
// stay readable.
func Decode(b []byte) (Record, error) {
	r := Record{Integrity: l4frames.Integrity{BitIndex: -1}}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldWallUnixNanos && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(b)
			n = m
			if m >= 0 {
				r.WallTime = time.Unix(0, int64(v)).UTC()
			}
		case num == fieldSourceID && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			n = m
			r.SourceID = v
		case num == fieldRunID && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			n = m
			r.RunID = v
		case num == fieldPayload && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			n = m
			r.Payload = append([]byte(nil), v...)
		case num == fieldSignalLevel && typ == protowire.Fixed32Type:
			v, m := protowire.ConsumeFixed32(b)
			n = m
			r.SignalLevel = math.Float32frombits(v)
		case typ == protowire.VarintType && num >= fieldMonotonicNanos && num <= fieldAddress:
			v, m := protowire.ConsumeVarint(b)
			n = m
			r.setVarint(num, v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return Record{}, fmt.Errorf("%w: field %d: %v", ErrMalformedRecord, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return r, nil
}

func (r *Record) setVarint(num protowire.Number, v uint64) {
	switch num {
	case fieldMonotonicNanos:
		r.Monotonic = time.Duration(v)
	case fieldFrameClass:
		r.Class = l4frames.FrameClass(v)
	case fieldIntegrityStatus:
		r.Integrity.Status = l4frames.IntegrityStatus(v)
	case fieldCorrectedBit:
		r.Integrity.BitIndex = int(int32(v))
	case fieldDownlinkFormat:
		r.DownlinkFormat = uint8(v)
	case fieldAddress:
		r.Address = uint32(v)
	}
}
