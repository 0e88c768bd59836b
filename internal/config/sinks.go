package config

import "fmt"

// SinksConfig enables record sinks. A nil section disables that sink.
type SinksConfig struct {
	GRPC      *GRPCSinkConfig      `json:"grpc,omitempty" yaml:"grpc,omitempty" toml:"grpc,omitempty"`
	SQLite    *SQLiteSinkConfig    `json:"sqlite,omitempty" yaml:"sqlite,omitempty" toml:"sqlite,omitempty"`
	MQTT      *MQTTSinkConfig      `json:"mqtt,omitempty" yaml:"mqtt,omitempty" toml:"mqtt,omitempty"`
	Serial    *SerialSinkConfig    `json:"serial,omitempty" yaml:"serial,omitempty" toml:"serial,omitempty"`
	WebSocket *WebSocketSinkConfig `json:"websocket,omitempty" yaml:"websocket,omitempty" toml:"websocket,omitempty"`
	File      *FileSinkConfig      `json:"file,omitempty" yaml:"file,omitempty" toml:"file,omitempty"`
}

type GRPCSinkConfig struct {
	Listen *string `json:"listen,omitempty" yaml:"listen,omitempty" toml:"listen,omitempty"`
}

type SQLiteSinkConfig struct {
	Path *string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
}

type MQTTSinkConfig struct {
	Broker      *string `json:"broker,omitempty" yaml:"broker,omitempty" toml:"broker,omitempty"`
	ClientID    *string `json:"client_id,omitempty" yaml:"client_id,omitempty" toml:"client_id,omitempty"`
	TopicPrefix *string `json:"topic_prefix,omitempty" yaml:"topic_prefix,omitempty" toml:"topic_prefix,omitempty"`
	QoS         *int    `json:"qos,omitempty" yaml:"qos,omitempty" toml:"qos,omitempty"`
	Retain      *bool   `json:"retain,omitempty" yaml:"retain,omitempty" toml:"retain,omitempty"`
}

type SerialSinkConfig struct {
	Port      *string `json:"port,omitempty" yaml:"port,omitempty" toml:"port,omitempty"`
	Baud      *int    `json:"baud,omitempty" yaml:"baud,omitempty" toml:"baud,omitempty"`
	Timestamp *bool   `json:"timestamp,omitempty" yaml:"timestamp,omitempty" toml:"timestamp,omitempty"`
}

type WebSocketSinkConfig struct {
	Listen *string `json:"listen,omitempty" yaml:"listen,omitempty" toml:"listen,omitempty"`
	Path   *string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
}

type FileSinkConfig struct {
	Path     *string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
	Compress *bool   `json:"compress,omitempty" yaml:"compress,omitempty" toml:"compress,omitempty"`
}

// Validate checks the enabled sink sections.
func (s *SinksConfig) Validate() error {
	if s.SQLite != nil && s.SQLite.GetPath() == "" {
		return fmt.Errorf("sinks.sqlite.path must not be empty")
	}
	if m := s.MQTT; m != nil {
		if m.GetBroker() == "" {
			return fmt.Errorf("sinks.mqtt.broker must not be empty")
		}
		if q := m.GetQoS(); q < 0 || q > 2 {
			return fmt.Errorf("sinks.mqtt.qos must be 0, 1 or 2, got %d", q)
		}
	}
	if p := s.Serial; p != nil {
		if p.GetPort() == "" {
			return fmt.Errorf("sinks.serial.port must not be empty")
		}
		if p.GetBaud() <= 0 {
			return fmt.Errorf("sinks.serial.baud must be positive, got %d", p.GetBaud())
		}
	}
	if f := s.File; f != nil && f.GetPath() == "" {
		return fmt.Errorf("sinks.file.path must not be empty")
	}
	return nil
}

func (g *GRPCSinkConfig) GetListen() string {
	if g.Listen == nil {
		return "localhost:30005" // default
	}
	return *g.Listen
}

func (s *SQLiteSinkConfig) GetPath() string {
	if s.Path == nil {
		return "modes.db" // default
	}
	return *s.Path
}

func (m *MQTTSinkConfig) GetBroker() string {
	if m.Broker == nil {
		return "tcp://localhost:1883" // default
	}
	return *m.Broker
}

func (m *MQTTSinkConfig) GetClientID() string {
	if m.ClientID == nil {
		return "modes1090" // default
	}
	return *m.ClientID
}

func (m *MQTTSinkConfig) GetTopicPrefix() string {
	if m.TopicPrefix == nil {
		return "modes" // default
	}
	return *m.TopicPrefix
}

func (m *MQTTSinkConfig) GetQoS() int {
	if m.QoS == nil {
		return 0 // default
	}
	return *m.QoS
}

func (m *MQTTSinkConfig) GetRetain() bool {
	if m.Retain == nil {
		return false // default
	}
	return *m.Retain
}

func (p *SerialSinkConfig) GetPort() string {
	if p.Port == nil {
		return ""
	}
	return *p.Port
}

func (p *SerialSinkConfig) GetBaud() int {
	if p.Baud == nil {
		return 115200 // default
	}
	return *p.Baud
}

func (p *SerialSinkConfig) GetTimestamp() bool {
	if p.Timestamp == nil {
		return false // default
	}
	return *p.Timestamp
}

func (w *WebSocketSinkConfig) GetListen() string {
	if w.Listen == nil {
		return "localhost:30006" // default
	}
	return *w.Listen
}

func (w *WebSocketSinkConfig) GetPath() string {
	if w.Path == nil {
		return "/records" // default
	}
	return *w.Path
}

func (f *FileSinkConfig) GetPath() string {
	if f.Path == nil {
		return ""
	}
	return *f.Path
}

func (f *FileSinkConfig) GetCompress() bool {
	if f.Compress == nil {
		return false // default
	}
	return *f.Compress
}
