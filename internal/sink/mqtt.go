package sink

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"esp-csi-recorder/internal/csi"
)

// maxPending bounds the number of in-flight publishes before LogFrame waits
const maxPending = 256

// MQTTConfig holds broker connection settings
type MQTTConfig struct {
	Broker         string        `yaml:"broker"` // e.g. tcp://localhost:1883
	Topic          string        `yaml:"topic"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	QoS            byte          `yaml:"qos"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// Client is the part of mqtt.Client the sink needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes each frame as a JSON document.
type MQTT struct {
	client  Client
	topic   string
	qos     byte
	timeout time.Duration
	session string
	pending []mqtt.Token
}

// DialMQTT connects to the broker described by cfg.
func DialMQTT(cfg MQTTConfig, session string) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("timeout connecting to MQTT broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	return NewMQTT(client, cfg, session), nil
}

// NewMQTT wraps an already connected client.
func NewMQTT(client Client, cfg MQTTConfig, session string) *MQTT {
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTT{
		client:  client,
		topic:   cfg.Topic,
		qos:     cfg.QoS,
		timeout: timeout,
		session: session,
	}
}

// LogFrame publishes the frame without waiting for the broker acknowledgement.
func (m *MQTT) LogFrame(index uint64, f *csi.Frame) error {
	payload, err := json.Marshal(NewRecord(m.session, index, f))
	if err != nil {
		return fmt.Errorf("failed to encode frame %d: %w", index, err)
	}

	var waitErr error
	if len(m.pending) >= maxPending {
		waitErr = m.wait(m.pending[0])
		m.pending = m.pending[1:]
	}
	m.pending = append(m.pending, m.client.Publish(m.topic, m.qos, false, payload))
	return waitErr
}

// Flush waits for every in-flight publish.
func (m *MQTT) Flush() error {
	var errs []error
	for _, t := range m.pending {
		if err := m.wait(t); err != nil {
			errs = append(errs, err)
		}
	}
	m.pending = m.pending[:0]
	return errors.Join(errs...)
}

// Close flushes and disconnects from the broker.
func (m *MQTT) Close() error {
	err := m.Flush()
	m.client.Disconnect(250)
	return err
}

func (m *MQTT) wait(t mqtt.Token) error {
	if !t.WaitTimeout(m.timeout) {
		return fmt.Errorf("timeout publishing to %s", m.topic)
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", m.topic, err)
	}
	return nil
}
