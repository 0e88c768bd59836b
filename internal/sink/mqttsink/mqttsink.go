// Package mqttsink publishes records to an MQTT broker, one topic per
// downlink format.
package mqttsink

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/modes1090/internal/modes/l6publish"
	"github.com/banshee-data/modes1090/internal/monitoring"
)

var ErrPublishTimeout = errors.New("mqttsink: publish timed out")

// Config holds the broker connection and topic settings.
type Config struct {
	Broker         string        // e.g. tcp://localhost:1883
	ClientID       string        // random if empty
	Username       string
	Password       string
	TopicPrefix    string        // (default: modes)
	QoS            byte          // 0, 1 or 2
	Retain         bool
	PublishTimeout time.Duration // (default: 5s)
}

// Sink publishes each record's bytes to <prefix>/df<N>.
type Sink struct {
	client mqtt.Client
	cfg    Config
}

// generateClientID creates a random client ID for the MQTT connection
func generateClientID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "modes1090_" + hex.EncodeToString(b)
}

// Dial connects to the broker. The client reconnects on its own after a
// lost connection.
func Dial(cfg Config) (*Sink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if cfg.ClientID == "" {
		cfg.ClientID = generateClientID()
	}
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		monitoring.Logf("[MQTT] connected to %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		monitoring.Logf("[MQTT] connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(30*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("mqttsink: failed to connect to %s: %w", cfg.Broker, token.Error())
	}
	return New(client, cfg), nil
}

// New wraps an existing client.
func New(client mqtt.Client, cfg Config) *Sink {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "modes"
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &Sink{client: client, cfg: cfg}
}

func (s *Sink) Name() string { return "mqtt" }

// Topic returns the topic a record of downlink format df goes to.
func (s *Sink) Topic(df uint8) string {
	return fmt.Sprintf("%s/df%d", s.cfg.TopicPrefix, df)
}

// Send publishes record. It waits for the broker acknowledgment at QoS 1
// and 2, up to PublishTimeout.
func (s *Sink) Send(_ context.Context, record []byte) error {
	r, err := l6publish.Decode(record)
	if err != nil {
		return err
	}
	token := s.client.Publish(s.Topic(r.DownlinkFormat), s.cfg.QoS, s.cfg.Retain, record)
	if !token.WaitTimeout(s.cfg.PublishTimeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

// Close disconnects from the broker after in-flight messages are sent.
func (s *Sink) Close() error {
	s.client.Disconnect(250)
	return nil
}
