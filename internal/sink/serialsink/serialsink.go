// Package serialsink writes records to a serial port in the AVR text
// format read by common Mode S tooling: "*<hex>;" per frame, or
// "@<timestamp><hex>;" with a 12 MHz timestamp for multilateration.
package serialsink

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/banshee-data/modes1090/internal/modes/l6publish"
)

// LineWriter is the part of serialmux.SerialMux the sink needs.
type LineWriter interface {
	WriteLine(line string) error
	Close() error
}

// Sink formats records as AVR lines.
type Sink struct {
	w         LineWriter
	timestamp bool
}

// New returns a sink writing to w. With timestamp set every line carries
// the record's sample-clock time as a 48-bit 12 MHz counter.
func New(w LineWriter, timestamp bool) *Sink {
	return &Sink{w: w, timestamp: timestamp}
}

func (s *Sink) Name() string { return "serial" }

// Send writes one AVR line.
func (s *Sink) Send(_ context.Context, record []byte) error {
	r, err := l6publish.Decode(record)
	if err != nil {
		return err
	}
	return s.w.WriteLine(FormatAVR(r, s.timestamp))
}

// Close closes the underlying port.
func (s *Sink) Close() error { return s.w.Close() }

// FormatAVR renders r as an AVR line without the trailing newline.
func FormatAVR(r l6publish.Record, timestamp bool) string {
	var b strings.Builder
	if timestamp {
		ticks := (uint64(r.Monotonic.Nanoseconds()) * 12 / 1000) & (1<<48 - 1)
		b.WriteByte('@')
		var ts [6]byte
		for i := range ts {
			ts[i] = byte(ticks >> (8 * (5 - i)))
		}
		b.WriteString(strings.ToUpper(hex.EncodeToString(ts[:])))
	} else {
		b.WriteByte('*')
	}
	b.WriteString(strings.ToUpper(hex.EncodeToString(r.Payload)))
	b.WriteByte(';')
	return b.String()
}
