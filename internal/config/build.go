package config

import (
	"fmt"

	"github.com/banshee-data/modes1090/internal/modes/l1samples"
	"github.com/banshee-data/modes1090/internal/modes/l2preamble"
	"github.com/banshee-data/modes1090/internal/modes/l4frames"
	"github.com/banshee-data/modes1090/internal/modes/l6publish"
	"github.com/banshee-data/modes1090/internal/modes/pipeline"
	"github.com/banshee-data/modes1090/internal/monitoring"
	"github.com/banshee-data/modes1090/internal/timeutil"
)

var (
	parsePolicy = l6publish.ParsePolicy
	parseFormat = l1samples.ParseSampleFormat
)

// DefaultReceiverConfig returns a configuration with every field set to its
// default: one rtl_tcp device on localhost and no sinks.
func DefaultReceiverConfig() *ReceiverConfig {
	det := l2preamble.DefaultDetectorConfig()
	return &ReceiverConfig{
		Devices: []DeviceConfig{{
			Driver:          ptrString("rtltcp"),
			Address:         ptrString("127.0.0.1:1234"),
			CenterFrequency: ptrUint32(l1samples.DefaultCenterFrequency),
			SampleRate:      ptrInt(l1samples.DefaultSampleRate),
			Format:          ptrString("cu8"),
			BlockSize:       ptrInt(l1samples.DefaultBlockSize),
		}},
		Detector: &DetectorConfig{
			SNRRatio:      ptrFloat32(det.SNRRatio),
			MinNoiseFloor: ptrFloat32(det.MinNoiseFloor),
			NoiseAlpha:    ptrFloat32(det.NoiseAlpha),
			TieWindow:     ptrInt(det.TieWindow),
			CarryCapacity: ptrInt(det.CarryCapacity),
		},
		Decoder: &DecoderConfig{
			TrustThreshold:         ptrFloat32(l4frames.DefaultTrustThreshold),
			DisableCorrection:      ptrBool(false),
			AcceptInterrogatorCode: ptrBool(false),
		},
		Dedup: &DedupConfig{Window: ptrString("300ms")},
		Reattach: &ReattachConfig{
			MinBackoff:  ptrString("500ms"),
			MaxBackoff:  ptrString("30s"),
			MaxAttempts: ptrInt(0),
		},
		Publisher: &PublisherConfig{
			Capacity:    ptrInt(l6publish.DefaultCapacity),
			Policy:      ptrString("block"),
			FrameBuffer: ptrInt(pipeline.DefaultFrameBuffer),
		},
		AdminListen: ptrString("localhost:8090"),
		LogLevel:    ptrString("info"),
	}
}

// NewDriver returns the backend named by the device section.
func (d DeviceConfig) NewDriver() (l1samples.Driver, error) {
	var ssrc uint32
	if d.SSRC != nil {
		ssrc = *d.SSRC
	}
	switch d.GetDriver() {
	case "rtltcp":
		return l1samples.RTLTCPDriver{DialTimeout: d.GetDialTimeout()}, nil
	case "iqfile":
		return l1samples.IQFileDriver{}, nil
	case "rtp":
		iface := ""
		if d.Interface != nil {
			iface = *d.Interface
		}
		return l1samples.RTPDriver{Interface: iface, SSRC: ssrc}, nil
	case "pcap":
		return l1samples.PcapDriver{SSRC: ssrc}, nil
	}
	return nil, fmt.Errorf("unknown driver %q", d.GetDriver())
}

// DeviceSpec converts the i-th device section for the pipeline.
func (d DeviceConfig) DeviceSpec(i int) (pipeline.DeviceSpec, error) {
	drv, err := d.NewDriver()
	if err != nil {
		return pipeline.DeviceSpec{}, err
	}
	format := l1samples.FormatCU8
	if d.Format != nil {
		if format, err = parseFormat(*d.Format); err != nil {
			return pipeline.DeviceSpec{}, err
		}
	}
	dc := l1samples.DeviceConfig{
		Address:         d.GetAddress(),
		CenterFrequency: d.GetCenterFrequency(),
		SampleRate:      d.GetSampleRate(),
		Gain:            d.GetGain(),
		Format:          format,
	}
	if d.Index != nil {
		dc.DeviceIndex = *d.Index
	}
	if d.PPM != nil {
		dc.PPM = *d.PPM
	}
	return pipeline.DeviceSpec{
		Driver:    drv,
		Device:    dc,
		SourceID:  d.GetSourceID(i),
		BlockSize: d.GetBlockSize(),
	}, nil
}

// PipelineConfig builds the pipeline configuration. With no devices
// configured it uses the default rtl_tcp device.
func (c *ReceiverConfig) PipelineConfig(counters *monitoring.Counters, clock timeutil.Clock) (pipeline.Config, error) {
	devices := c.Devices
	if len(devices) == 0 {
		devices = DefaultReceiverConfig().Devices
	}
	specs := make([]pipeline.DeviceSpec, 0, len(devices))
	for i, d := range devices {
		spec, err := d.DeviceSpec(i)
		if err != nil {
			return pipeline.Config{}, fmt.Errorf("devices[%d]: %w", i, err)
		}
		specs = append(specs, spec)
	}

	policy, err := parsePolicy(c.GetPublisherPolicy())
	if err != nil {
		return pipeline.Config{}, err
	}

	return pipeline.Config{
		Devices: specs,
		Detector: c.detectorConfig(),
		Decoder: l4frames.DecoderConfig{
			TrustThreshold:         c.GetTrustThreshold(),
			DisableCorrection:      c.GetDisableCorrection(),
			AcceptInterrogatorCode: c.GetAcceptInterrogatorCode(),
		},
		DedupWindow: c.GetDedupWindow(),
		Publisher: l6publish.Config{
			Capacity: c.GetPublisherCapacity(),
			Policy:   policy,
		},
		FrameBuffer: c.GetFrameBuffer(),
		Clock:       clock,
		Counters:    counters,
	}, nil
}

func (c *ReceiverConfig) detectorConfig() l2preamble.DetectorConfig {
	det := l2preamble.DefaultDetectorConfig()
	d := c.Detector
	if d == nil {
		return det
	}
	if d.SNRRatio != nil {
		det.SNRRatio = *d.SNRRatio
	}
	if d.MinNoiseFloor != nil {
		det.MinNoiseFloor = *d.MinNoiseFloor
	}
	if d.NoiseAlpha != nil {
		det.NoiseAlpha = *d.NoiseAlpha
	}
	if d.TieWindow != nil {
		det.TieWindow = *d.TieWindow
	}
	if d.CarryCapacity != nil {
		det.CarryCapacity = *d.CarryCapacity
	}
	return det
}
