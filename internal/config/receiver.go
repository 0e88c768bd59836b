package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// maxFileSize caps configuration files at 1MB.
const maxFileSize = 1 * 1024 * 1024

// ReceiverConfig is the root of the receiver configuration. Every field is
// optional: nil fields fall back to the defaults returned by the Get*
// methods, so partial files are safe.
type ReceiverConfig struct {
	Devices   []DeviceConfig   `json:"devices,omitempty" yaml:"devices,omitempty" toml:"devices,omitempty"`
	Detector  *DetectorConfig  `json:"detector,omitempty" yaml:"detector,omitempty" toml:"detector,omitempty"`
	Decoder   *DecoderConfig   `json:"decoder,omitempty" yaml:"decoder,omitempty" toml:"decoder,omitempty"`
	Dedup     *DedupConfig     `json:"dedup,omitempty" yaml:"dedup,omitempty" toml:"dedup,omitempty"`
	Publisher *PublisherConfig `json:"publisher,omitempty" yaml:"publisher,omitempty" toml:"publisher,omitempty"`
	Reattach  *ReattachConfig  `json:"reattach,omitempty" yaml:"reattach,omitempty" toml:"reattach,omitempty"`
	Sinks     *SinksConfig     `json:"sinks,omitempty" yaml:"sinks,omitempty" toml:"sinks,omitempty"`

	AdminListen *string `json:"admin_listen,omitempty" yaml:"admin_listen,omitempty" toml:"admin_listen,omitempty"`
	LogLevel    *string `json:"log_level,omitempty" yaml:"log_level,omitempty" toml:"log_level,omitempty"`
}

// DeviceConfig selects and tunes one sample source.
type DeviceConfig struct {
	Driver          *string  `json:"driver,omitempty" yaml:"driver,omitempty" toml:"driver,omitempty"`    // rtltcp, iqfile, rtp or pcap
	Address         *string  `json:"address,omitempty" yaml:"address,omitempty" toml:"address,omitempty"` // host:port, path or group
	SourceID        *string  `json:"source_id,omitempty" yaml:"source_id,omitempty" toml:"source_id,omitempty"`
	CenterFrequency *uint32  `json:"center_frequency,omitempty" yaml:"center_frequency,omitempty" toml:"center_frequency,omitempty"`
	SampleRate      *int     `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty" toml:"sample_rate,omitempty"`
	Gain            *float64 `json:"gain,omitempty" yaml:"gain,omitempty" toml:"gain,omitempty"` // dB; omit for AGC
	Index           *int     `json:"index,omitempty" yaml:"index,omitempty" toml:"index,omitempty"`
	PPM             *int     `json:"ppm,omitempty" yaml:"ppm,omitempty" toml:"ppm,omitempty"`
	Format          *string  `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty"`
	BlockSize       *int     `json:"block_size,omitempty" yaml:"block_size,omitempty" toml:"block_size,omitempty"`

	// Transport options
	Interface   *string `json:"interface,omitempty" yaml:"interface,omitempty" toml:"interface,omitempty"`
	SSRC        *uint32 `json:"ssrc,omitempty" yaml:"ssrc,omitempty" toml:"ssrc,omitempty"`
	DialTimeout *string `json:"dial_timeout,omitempty" yaml:"dial_timeout,omitempty" toml:"dial_timeout,omitempty"` // duration string like "5s"
}

// DetectorConfig tunes preamble detection.
type DetectorConfig struct {
	SNRRatio      *float32 `json:"snr_ratio,omitempty" yaml:"snr_ratio,omitempty" toml:"snr_ratio,omitempty"`
	MinNoiseFloor *float32 `json:"min_noise_floor,omitempty" yaml:"min_noise_floor,omitempty" toml:"min_noise_floor,omitempty"`
	NoiseAlpha    *float32 `json:"noise_alpha,omitempty" yaml:"noise_alpha,omitempty" toml:"noise_alpha,omitempty"`
	TieWindow     *int     `json:"tie_window,omitempty" yaml:"tie_window,omitempty" toml:"tie_window,omitempty"`
	CarryCapacity *int     `json:"carry_capacity,omitempty" yaml:"carry_capacity,omitempty" toml:"carry_capacity,omitempty"`
}

// DecoderConfig tunes integrity checking.
type DecoderConfig struct {
	TrustThreshold    *float32 `json:"trust_threshold,omitempty" yaml:"trust_threshold,omitempty" toml:"trust_threshold,omitempty"`
	DisableCorrection *bool    `json:"disable_correction,omitempty" yaml:"disable_correction,omitempty" toml:"disable_correction,omitempty"`
	// AcceptInterrogatorCode keeps DF11 replies carrying a non-zero IC.
	AcceptInterrogatorCode *bool `json:"accept_interrogator_code,omitempty" yaml:"accept_interrogator_code,omitempty" toml:"accept_interrogator_code,omitempty"`
}

// DedupConfig tunes duplicate suppression.
type DedupConfig struct {
	Window *string `json:"window,omitempty" yaml:"window,omitempty" toml:"window,omitempty"` // duration string like "300ms"
}

// ReattachConfig bounds how a dropped device is reopened.
type ReattachConfig struct {
	MinBackoff  *string `json:"min_backoff,omitempty" yaml:"min_backoff,omitempty" toml:"min_backoff,omitempty"` // duration string like "500ms"
	MaxBackoff  *string `json:"max_backoff,omitempty" yaml:"max_backoff,omitempty" toml:"max_backoff,omitempty"`
	MaxAttempts *int    `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty" toml:"max_attempts,omitempty"` // 0 retries forever
}

// PublisherConfig tunes the outbound channel.
type PublisherConfig struct {
	Capacity    *int    `json:"capacity,omitempty" yaml:"capacity,omitempty" toml:"capacity,omitempty"`
	Policy      *string `json:"policy,omitempty" yaml:"policy,omitempty" toml:"policy,omitempty"` // block or drop-oldest
	FrameBuffer *int    `json:"frame_buffer,omitempty" yaml:"frame_buffer,omitempty" toml:"frame_buffer,omitempty"`
}

// Helper functions to create pointers
func ptrFloat32(v float32) *float32 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint32(v uint32) *uint32    { return &v }

// EmptyReceiverConfig returns a ReceiverConfig with all fields set to nil.
func EmptyReceiverConfig() *ReceiverConfig {
	return &ReceiverConfig{}
}

// Load reads a ReceiverConfig from a .json, .yaml/.yml or .toml file.
// The file must be under 1MB. Fields omitted from the file keep their
// defaults.
func Load(path string) (*ReceiverConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml", ".toml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .toml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyReceiverConfig()
	switch ext {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", ext, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ReceiverConfig) Validate() error {
	seen := make(map[string]bool)
	for i, d := range c.Devices {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
		id := d.GetSourceID(i)
		if seen[id] {
			return fmt.Errorf("devices[%d]: duplicate source_id %q", i, id)
		}
		seen[id] = true
	}

	if d := c.Detector; d != nil {
		if d.SNRRatio != nil && *d.SNRRatio <= 1 {
			return fmt.Errorf("detector.snr_ratio must be greater than 1, got %f", *d.SNRRatio)
		}
		if d.NoiseAlpha != nil && (*d.NoiseAlpha <= 0 || *d.NoiseAlpha >= 1) {
			return fmt.Errorf("detector.noise_alpha must be between 0 and 1, got %f", *d.NoiseAlpha)
		}
		if d.CarryCapacity != nil && *d.CarryCapacity < 0 {
			return fmt.Errorf("detector.carry_capacity must be non-negative, got %d", *d.CarryCapacity)
		}
	}

	if d := c.Decoder; d != nil && d.TrustThreshold != nil {
		if *d.TrustThreshold < 0 || *d.TrustThreshold > 1 {
			return fmt.Errorf("decoder.trust_threshold must be between 0 and 1, got %f", *d.TrustThreshold)
		}
	}

	if d := c.Dedup; d != nil && d.Window != nil && *d.Window != "" {
		w, err := time.ParseDuration(*d.Window)
		if err != nil {
			return fmt.Errorf("invalid dedup.window '%s': %w", *d.Window, err)
		}
		if w <= 0 {
			return fmt.Errorf("dedup.window must be positive, got %s", w)
		}
	}

	if p := c.Publisher; p != nil {
		if p.Capacity != nil && *p.Capacity <= 0 {
			return fmt.Errorf("publisher.capacity must be positive, got %d", *p.Capacity)
		}
		if p.Policy != nil {
			if _, err := parsePolicy(*p.Policy); err != nil {
				return err
			}
		}
	}

	if r := c.Reattach; r != nil {
		for name, v := range map[string]*string{"min_backoff": r.MinBackoff, "max_backoff": r.MaxBackoff} {
			if v == nil || *v == "" {
				continue
			}
			d, err := time.ParseDuration(*v)
			if err != nil {
				return fmt.Errorf("invalid reattach.%s '%s': %w", name, *v, err)
			}
			if d <= 0 {
				return fmt.Errorf("reattach.%s must be positive, got %s", name, d)
			}
		}
		if r.MaxAttempts != nil && *r.MaxAttempts < 0 {
			return fmt.Errorf("reattach.max_attempts must be non-negative, got %d", *r.MaxAttempts)
		}
	}

	if c.LogLevel != nil {
		switch *c.LogLevel {
		case "trace", "debug", "info", "warn", "error", "disabled":
		default:
			return fmt.Errorf("unknown log_level %q", *c.LogLevel)
		}
	}

	if c.Sinks != nil {
		if err := c.Sinks.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks one device section.
func (d DeviceConfig) Validate() error {
	switch d.GetDriver() {
	case "rtltcp", "iqfile", "rtp", "pcap":
	default:
		return fmt.Errorf("unknown driver %q", d.GetDriver())
	}
	if d.GetDriver() != "rtltcp" && d.GetAddress() == "" {
		return fmt.Errorf("driver %s needs an address", d.GetDriver())
	}
	if d.SampleRate != nil && *d.SampleRate != 2_000_000 {
		return fmt.Errorf("sample_rate must be 2000000, got %d", *d.SampleRate)
	}
	if d.BlockSize != nil && *d.BlockSize < 256 {
		return fmt.Errorf("block_size must be at least 256, got %d", *d.BlockSize)
	}
	if d.Format != nil {
		if _, err := parseFormat(*d.Format); err != nil {
			return err
		}
	}
	if d.DialTimeout != nil && *d.DialTimeout != "" {
		if _, err := time.ParseDuration(*d.DialTimeout); err != nil {
			return fmt.Errorf("invalid dial_timeout '%s': %w", *d.DialTimeout, err)
		}
	}
	return nil
}

// GetAdminListen returns the admin HTTP listen address or the default.
func (c *ReceiverConfig) GetAdminListen() string {
	if c.AdminListen == nil {
		return "localhost:8090" // default
	}
	return *c.AdminListen
}

// GetLogLevel returns the log level or the default.
func (c *ReceiverConfig) GetLogLevel() string {
	if c.LogLevel == nil {
		return "info" // default
	}
	return *c.LogLevel
}

// GetDriver returns the driver name or the default.
func (d DeviceConfig) GetDriver() string {
	if d.Driver == nil {
		return "rtltcp" // default
	}
	return strings.ToLower(*d.Driver)
}

// GetAddress returns the device address, defaulting to a local rtl_tcp.
func (d DeviceConfig) GetAddress() string {
	if d.Address == nil {
		if d.GetDriver() == "rtltcp" {
			return "127.0.0.1:1234" // default
		}
		return ""
	}
	return *d.Address
}

// GetSourceID returns the source id, defaulting to "<driver>-<i>".
func (d DeviceConfig) GetSourceID(i int) string {
	if d.SourceID == nil || *d.SourceID == "" {
		return fmt.Sprintf("%s-%d", d.GetDriver(), i)
	}
	return *d.SourceID
}

// GetCenterFrequency returns the tuning frequency in Hz or 1090 MHz.
func (d DeviceConfig) GetCenterFrequency() uint32 {
	if d.CenterFrequency == nil {
		return 1_090_000_000 // default
	}
	return *d.CenterFrequency
}

// GetSampleRate returns the sample rate or 2 MS/s.
func (d DeviceConfig) GetSampleRate() int {
	if d.SampleRate == nil {
		return 2_000_000 // default
	}
	return *d.SampleRate
}

// GetGain returns the gain in dB, or a negative value for AGC.
func (d DeviceConfig) GetGain() float64 {
	if d.Gain == nil {
		return -1 // default: automatic
	}
	return *d.Gain
}

// GetBlockSize returns the samples per block or the default.
func (d DeviceConfig) GetBlockSize() int {
	if d.BlockSize == nil {
		return 1 << 16 // default
	}
	return *d.BlockSize
}

// GetDialTimeout parses and returns DialTimeout as a time.Duration.
func (d DeviceConfig) GetDialTimeout() time.Duration {
	if d.DialTimeout == nil || *d.DialTimeout == "" {
		return 5 * time.Second // default
	}
	t, err := time.ParseDuration(*d.DialTimeout)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return t
}

// GetDedupWindow parses and returns the dedup window.
func (c *ReceiverConfig) GetDedupWindow() time.Duration {
	if c.Dedup == nil || c.Dedup.Window == nil || *c.Dedup.Window == "" {
		return 300 * time.Millisecond // default
	}
	w, err := time.ParseDuration(*c.Dedup.Window)
	if err != nil {
		return 300 * time.Millisecond // default on parse error
	}
	return w
}

// GetReattachBackoff returns the first and the largest wait between
// reattach attempts.
func (c *ReceiverConfig) GetReattachBackoff() (minBackoff, maxBackoff time.Duration) {
	minBackoff, maxBackoff = 500*time.Millisecond, 30*time.Second // defaults
	if c.Reattach == nil {
		return minBackoff, maxBackoff
	}
	if v := c.Reattach.MinBackoff; v != nil {
		if d, err := time.ParseDuration(*v); err == nil && d > 0 {
			minBackoff = d
		}
	}
	if v := c.Reattach.MaxBackoff; v != nil {
		if d, err := time.ParseDuration(*v); err == nil && d > 0 {
			maxBackoff = d
		}
	}
	return minBackoff, maxBackoff
}

// GetReattachMaxAttempts returns how many consecutive failed reattach
// attempts are tolerated. Zero means no limit.
func (c *ReceiverConfig) GetReattachMaxAttempts() int {
	if c.Reattach == nil || c.Reattach.MaxAttempts == nil {
		return 0 // default
	}
	return *c.Reattach.MaxAttempts
}

// GetTrustThreshold returns the decoder trust threshold or the default.
func (c *ReceiverConfig) GetTrustThreshold() float32 {
	if c.Decoder == nil || c.Decoder.TrustThreshold == nil {
		return 0.35 // default
	}
	return *c.Decoder.TrustThreshold
}

// GetDisableCorrection reports whether single-bit repair is off.
func (c *ReceiverConfig) GetDisableCorrection() bool {
	if c.Decoder == nil || c.Decoder.DisableCorrection == nil {
		return false // default
	}
	return *c.Decoder.DisableCorrection
}

// GetAcceptInterrogatorCode reports whether DF11 replies with a non-zero
// interrogator code are accepted.
func (c *ReceiverConfig) GetAcceptInterrogatorCode() bool {
	if c.Decoder == nil || c.Decoder.AcceptInterrogatorCode == nil {
		return false // default
	}
	return *c.Decoder.AcceptInterrogatorCode
}

// GetPublisherCapacity returns the outbound channel capacity.
func (c *ReceiverConfig) GetPublisherCapacity() int {
	if c.Publisher == nil || c.Publisher.Capacity == nil {
		return 1024 // default
	}
	return *c.Publisher.Capacity
}

// GetPublisherPolicy returns the backpressure policy name.
func (c *ReceiverConfig) GetPublisherPolicy() string {
	if c.Publisher == nil || c.Publisher.Policy == nil {
		return "block" // default
	}
	return *c.Publisher.Policy
}

// GetFrameBuffer returns the receiver to merger channel size.
func (c *ReceiverConfig) GetFrameBuffer() int {
	if c.Publisher == nil || c.Publisher.FrameBuffer == nil {
		return 256 // default
	}
	return *c.Publisher.FrameBuffer
}
