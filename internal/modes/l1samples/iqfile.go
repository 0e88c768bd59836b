package l1samples

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// IQFileDriver replays raw IQ recordings. Address is the file path. A .zst
// suffix is decompressed on the fly; the inner extension (.cu8, .cs16,
// .cf32) selects the sample format unless DeviceConfig.Format is set
// explicitly to something other than cu8.
type IQFileDriver struct{}

func (IQFileDriver) Name() string { return "iqfile" }

// Open opens the recording.
func (d IQFileDriver) Open(_ context.Context, cfg DeviceConfig) (Device, error) {
	f, err := os.Open(cfg.Address)
	if err != nil {
		return nil, &DeviceError{Driver: d.Name(), Op: "open", Err: err}
	}

	name := cfg.Address
	dev := &iqFileDevice{file: f, format: cfg.Format}

	if strings.EqualFold(filepath.Ext(name), ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, &DeviceError{Driver: d.Name(), Op: "zstd", Err: err}
		}
		dev.zr = dec
		dev.r = bufio.NewReaderSize(dec, 1<<16)
		name = strings.TrimSuffix(name, filepath.Ext(name))
	} else {
		dev.r = bufio.NewReaderSize(f, 1<<16)
	}

	if cfg.Format == FormatCU8 {
		if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."); ext != "" {
			if format, err := ParseSampleFormat(ext); err == nil {
				dev.format = format
			}
		}
	}
	return dev, nil
}

type iqFileDevice struct {
	file   *os.File
	zr     *zstd.Decoder
	r      io.Reader
	format SampleFormat
}

func (d *iqFileDevice) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("%w: %v", ErrDeviceDisconnected, err)
	}
	return n, err
}

func (d *iqFileDevice) Close() error {
	if d.zr != nil {
		d.zr.Close()
	}
	return d.file.Close()
}

func (d *iqFileDevice) Format() SampleFormat { return d.format }

// WriteIQFile records samples to path in format f, compressing when the path
// ends in .zst.
func WriteIQFile(path string, f SampleFormat, samples []complex64) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	var w io.Writer = out
	var enc *zstd.Encoder
	if strings.EqualFold(filepath.Ext(path), ".zst") {
		enc, err = zstd.NewWriter(out)
		if err != nil {
			return err
		}
		w = enc
	}
	if _, err := w.Write(f.Encode(nil, samples)); err != nil {
		return err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return err
		}
	}
	return out.Close()
}
