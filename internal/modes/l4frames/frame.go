package l4frames

import (
	"fmt"
	"time"
)

// FrameClass is the frame length class.
type FrameClass uint8

const (
	ClassShort FrameClass = iota + 1 // 56 bits
	ClassLong                        // 112 bits
)

// Bits returns the frame length in bits.
func (c FrameClass) Bits() int {
	if c == ClassLong {
		return 112
	}
	return 56
}

func (c FrameClass) String() string {
	switch c {
	case ClassShort:
		return "short"
	case ClassLong:
		return "long"
	}
	return fmt.Sprintf("FrameClass(%d)", uint8(c))
}

// ClassOf returns the length class implied by a downlink format.
func ClassOf(df uint8) FrameClass {
	if df >= 16 {
		return ClassLong
	}
	return ClassShort
}

// IntegrityStatus is the outcome of the parity check for an accepted frame.
type IntegrityStatus uint8

const (
	StatusValid IntegrityStatus = iota + 1
	StatusCorrected
)

func (s IntegrityStatus) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusCorrected:
		return "corrected"
	}
	return fmt.Sprintf("IntegrityStatus(%d)", uint8(s))
}

// Integrity records how a frame passed the parity check. BitIndex is the
// repaired bit for StatusCorrected and -1 otherwise.
type Integrity struct {
	Status   IntegrityStatus
	BitIndex int
}

// Valid is the integrity of a frame that passed unmodified.
var Valid = Integrity{Status: StatusValid, BitIndex: -1}

// Corrected returns the integrity of a frame repaired at bit.
func Corrected(bit int) Integrity {
	return Integrity{Status: StatusCorrected, BitIndex: bit}
}

// Better reports whether i is strictly better than other: an unmodified
// frame beats a corrected one.
func (i Integrity) Better(other Integrity) bool {
	return i.Status == StatusValid && other.Status == StatusCorrected
}

func (i Integrity) String() string {
	if i.Status == StatusCorrected {
		return fmt.Sprintf("corrected(%d)", i.BitIndex)
	}
	return i.Status.String()
}

// DecodedFrame is a frame that passed, or was repaired to pass, the parity
// check. Frames that fail never become a DecodedFrame.
type DecodedFrame struct {
	Class          FrameClass
	Payload        []byte
	DownlinkFormat uint8
	Capability     uint8  // CA for DF11/17, CF for DF18
	Address        uint32 // AA for DF11/17/18, 0 otherwise
	TypeCode       uint8  // ME type code for DF17/18, 0 otherwise
	Integrity      Integrity

	Timestamp   time.Time
	SampleIndex uint64
	SourceID    string
	SignalLevel float32
}

// HasAddress reports whether the frame carries the aircraft address in
// clear.
func (f DecodedFrame) HasAddress() bool {
	switch f.DownlinkFormat {
	case 11, 17, 18:
		return true
	}
	return false
}

// FormatName returns a short description of a downlink format.
func FormatName(df uint8) string {
	switch df {
	case 0:
		return "short air-air surveillance"
	case 4:
		return "surveillance, altitude reply"
	case 5:
		return "surveillance, identity reply"
	case 11:
		return "all-call reply"
	case 16:
		return "long air-air surveillance"
	case 17:
		return "extended squitter"
	case 18:
		return "extended squitter, non-transponder"
	case 19:
		return "military extended squitter"
	case 20:
		return "Comm-B, altitude reply"
	case 21:
		return "Comm-B, identity reply"
	case 24:
		return "Comm-D"
	}
	return fmt.Sprintf("DF%d", df)
}
