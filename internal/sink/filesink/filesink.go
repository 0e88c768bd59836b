// Package filesink appends records to a file as varint length-delimited
// frames, optionally zstd compressed. ReadAll reads such a file back for
// replay.
package filesink

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"
)

// maxRecordSize bounds a single frame when reading.
const maxRecordSize = 1 << 20

var ErrCorrupt = errors.New("filesink: corrupt record stream")

// Sink writes records to a file.
type Sink struct {
	path string

	mu     sync.Mutex
	file   *os.File
	zw     *zstd.Encoder
	w      *bufio.Writer
	closed bool
	n      uint64
}

// Open creates or appends to path. Paths ending in .zst are compressed;
// appending to a compressed file starts a new zstd frame.
func Open(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("filesink: %w", err)
	}
	s := &Sink{path: path, file: f}
	var w io.Writer = f
	if strings.HasSuffix(path, ".zst") {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("filesink: %w", err)
		}
		s.zw = zw
		w = zw
	}
	s.w = bufio.NewWriter(w)
	return s, nil
}

func (s *Sink) Name() string { return "file:" + s.path }

// Send appends one record.
func (s *Sink) Send(_ context.Context, record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}
	var hdr [binary.MaxVarintLen64]byte
	if _, err := s.w.Write(protowire.AppendVarint(hdr[:0], uint64(len(record)))); err != nil {
		return err
	}
	if _, err := s.w.Write(record); err != nil {
		return err
	}
	s.n++
	return nil
}

// Written returns the number of records accepted.
func (s *Sink) Written() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Close flushes buffered records and closes the file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.w.Flush()
	if s.zw != nil {
		err = errors.Join(err, s.zw.Close())
	}
	return errors.Join(err, s.file.Close())
}

// ReadAll reads every record from r.
func ReadAll(r io.Reader) ([][]byte, error) {
	br := bufio.NewReader(r)
	var out [][]byte
	for {
		n, err := readVarint(br)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if n > maxRecordSize {
			return out, fmt.Errorf("%w: record of %d bytes", ErrCorrupt, n)
		}
		rec := make([]byte, n)
		if _, err := io.ReadFull(br, rec); err != nil {
			return out, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		out = append(out, rec)
	}
}

// ReadFile reads every record from the file at path, decompressing .zst
// files.
func ReadFile(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	}
	return ReadAll(r)
}

// readVarint reads one varint, returning io.EOF only at a clean boundary.
func readVarint(br *bufio.Reader) (uint64, error) {
	var buf [binary.MaxVarintLen64]byte
	for i := range buf {
		b, err := br.ReadByte()
		if err != nil {
			if i == 0 && errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("%w: truncated length", ErrCorrupt)
		}
		buf[i] = b
		if b < 0x80 {
			v, n := protowire.ConsumeVarint(buf[:i+1])
			if n < 0 {
				return 0, fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
			}
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: length overflows", ErrCorrupt)
}
