package main

import (
	"github.com/spf13/pflag"

	"github.com/banshee-data/modes1090/internal/config"
)

// overrides holds the command-line flags that take precedence over the
// config file. Only flags the user set are applied.
type overrides struct {
	adminListen string
	logLevel    string

	driver   string
	address  string
	sourceID string
	gain     float64
	format   string

	dedupWindow string
	policy      string

	fileSink   string
	grpcListen string
	wsListen   string
}

func (o *overrides) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.adminListen, "admin-listen", "localhost:8090", "Admin HTTP listen address (metrics and /debug)")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: trace, debug, info, warn or error")

	fs.StringVar(&o.driver, "driver", "rtltcp", "Sample source for the first device: rtltcp, iqfile, rtp or pcap")
	fs.StringVarP(&o.address, "address", "a", "127.0.0.1:1234", "Device address: host:port, file path or multicast group")
	fs.StringVar(&o.sourceID, "source-id", "", "Receiver identifier stamped on records")
	fs.Float64Var(&o.gain, "gain", -1, "Tuner gain in dB, negative for AGC")
	fs.StringVar(&o.format, "format", "cu8", "Sample format: cu8, cs16le, cs16be or cf32le")

	fs.StringVar(&o.dedupWindow, "dedup-window", "300ms", "Duplicate suppression window")
	fs.StringVar(&o.policy, "policy", "block", "Outbound channel policy: block or drop-oldest")

	fs.StringVar(&o.fileSink, "file-sink", "", "Append records to this file (.zst for zstd)")
	fs.StringVar(&o.grpcListen, "grpc-listen", "", "Serve the record stream over gRPC on this address")
	fs.StringVar(&o.wsListen, "ws-listen", "", "Serve records to WebSocket clients on this address")
}

// apply copies every changed flag into cfg. Device flags target the first
// device, which is created when the file lists none.
func (o overrides) apply(cfg *config.ReceiverConfig, changed map[string]bool) {
	if changed["admin-listen"] {
		cfg.AdminListen = &o.adminListen
	}
	if changed["log-level"] {
		cfg.LogLevel = &o.logLevel
	}

	device := func() *config.DeviceConfig {
		if len(cfg.Devices) == 0 {
			cfg.Devices = []config.DeviceConfig{{}}
		}
		return &cfg.Devices[0]
	}
	if changed["driver"] {
		device().Driver = &o.driver
	}
	if changed["address"] {
		device().Address = &o.address
	}
	if changed["source-id"] {
		device().SourceID = &o.sourceID
	}
	if changed["gain"] {
		device().Gain = &o.gain
	}
	if changed["format"] {
		device().Format = &o.format
	}

	if changed["dedup-window"] {
		if cfg.Dedup == nil {
			cfg.Dedup = &config.DedupConfig{}
		}
		cfg.Dedup.Window = &o.dedupWindow
	}
	if changed["policy"] {
		if cfg.Publisher == nil {
			cfg.Publisher = &config.PublisherConfig{}
		}
		cfg.Publisher.Policy = &o.policy
	}

	sinks := func() *config.SinksConfig {
		if cfg.Sinks == nil {
			cfg.Sinks = &config.SinksConfig{}
		}
		return cfg.Sinks
	}
	if changed["file-sink"] {
		sinks().File = &config.FileSinkConfig{Path: &o.fileSink}
	}
	if changed["grpc-listen"] {
		sinks().GRPC = &config.GRPCSinkConfig{Listen: &o.grpcListen}
	}
	if changed["ws-listen"] {
		s := sinks()
		if s.WebSocket == nil {
			s.WebSocket = &config.WebSocketSinkConfig{}
		}
		s.WebSocket.Listen = &o.wsListen
	}
}
