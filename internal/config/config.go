// Package config provides configuration structures and defaults for the CSI recorder
package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"esp-csi-recorder/internal/csi"
	"esp-csi-recorder/internal/device"
	"esp-csi-recorder/internal/recorder"
	"esp-csi-recorder/internal/sink"
)

// Config represents the complete application configuration
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`    // Serial link to the ESP32
	Recording RecordingConfig `yaml:"recording"` // Session settings
	Protocol  ProtocolConfig  `yaml:"protocol"`  // Firmware CLI vocabulary
	Heatmap   HeatmapConfig   `yaml:"heatmap"`   // Live heatmap snapshots
	Live      LiveConfig      `yaml:"live"`      // Live consumer loop
	Logging   LoggingConfig   `yaml:"logging"`   // Logging configuration
	Metrics   MetricsConfig   `yaml:"metrics"`   // Prometheus exposition
	MQTT      MQTTConfig      `yaml:"mqtt"`      // External frame sink
}

// SerialConfig contains serial port parameters
type SerialConfig struct {
	Port        string        `yaml:"port"`         // Device path; empty to discover
	BaudRate    int           `yaml:"baud_rate"`    // Serial communication baud rate
	ReadTimeout time.Duration `yaml:"read_timeout"` // Per-read timeout
	Discover    bool          `yaml:"discover"`     // Look for an ESP32 when port is empty
}

// RecordingConfig contains recording session parameters
type RecordingConfig struct {
	Duration   time.Duration `yaml:"duration"`   // Capture duration
	OutputDir  string        `yaml:"output_dir"` // Directory for recorded tables
	Filename   string        `yaml:"filename"`   // Base name without extension; empty for a timestamped name
	Mode       string        `yaml:"mode"`       // WiFi mode: "sniffer" or "station"
	SSID       string        `yaml:"ssid"`       // Access point (station mode)
	Password   string        `yaml:"password"`   // Access point password (station mode)
	Subcarrier int           `yaml:"subcarrier"` // Subcarrier shown in the live series
}

// ProtocolConfig contains the device CLI protocol
type ProtocolConfig struct {
	PayloadLen int             `yaml:"payload_len"` // Raw values per frame (2 per subcarrier)
	Lines      csi.Vocabulary  `yaml:"lines"`       // Line shapes printed by the firmware
	Commands   device.Commands `yaml:"commands"`    // Commands accepted by the firmware
	Delays     device.Delays   `yaml:"delays"`      // Pauses during configuration
}

// HeatmapConfig contains heatmap snapshot parameters
type HeatmapConfig struct {
	HistoryRows   int `yaml:"history_rows"`   // Frames kept in the rolling history
	SnapshotEvery int `yaml:"snapshot_every"` // Accepted frames between snapshots
}

// LiveConfig contains live consumer loop parameters
type LiveConfig struct {
	BufferCapacity int           `yaml:"buffer_capacity"` // Samples kept in the live series
	ChannelBuffer  int           `yaml:"channel_buffer"`  // Capacity of the worker's live channel
	TickInterval   time.Duration `yaml:"tick_interval"`   // Poll interval of the consumer loop
}

// LoggingConfig contains logging configuration parameters
type LoggingConfig struct {
	Level string `yaml:"level"` // Log level (debug, info, warn, error)
	File  string `yaml:"file"`  // Log file path; empty for stderr
}

// MetricsConfig contains metrics exposition parameters
type MetricsConfig struct {
	Addr string `yaml:"addr"` // Listen address for /metrics; empty to disable
}

// MQTTConfig contains the MQTT frame sink parameters
type MQTTConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Broker         string        `yaml:"broker"`
	Topic          string        `yaml:"topic"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	QoS            byte          `yaml:"qos"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// DefaultConfig returns a configuration with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:        "",                     // Discover by default
			BaudRate:    device.DefaultBaudRate, // 115200 baud
			ReadTimeout: 100 * time.Millisecond, // 100ms read timeout
			Discover:    true,
		},
		Recording: RecordingConfig{
			Duration:   10 * time.Second, // 10 second capture
			OutputDir:  "./data",         // Current directory data folder
			Filename:   "",               // Timestamped name
			Mode:       string(device.Sniffer),
			Subcarrier: 20,
		},
		Protocol: ProtocolConfig{
			PayloadLen: csi.DefaultPayloadLen, // 64 subcarriers
			Lines:      csi.DefaultVocabulary(),
			Commands:   device.DefaultCommands(),
			Delays:     device.DefaultDelays(),
		},
		Heatmap: HeatmapConfig{
			HistoryRows:   50,
			SnapshotEvery: 100,
		},
		Live: LiveConfig{
			BufferCapacity: 2000,
			ChannelBuffer:  1024,
			TickInterval:   50 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
		MQTT: MQTTConfig{
			Broker:         "tcp://localhost:1883",
			Topic:          "csi/frames",
			ClientID:       "esp-csi-recorder",
			QoS:            0,
			PublishTimeout: 5 * time.Second,
		},
	}
}

// Load overlays the values held by v onto the defaults. Keys follow the yaml
// tags, so a config file and the flags bound to v share one naming scheme.
func Load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Keys returns the dotted name of every configuration value, e.g.
// "serial.read_timeout".
func Keys() []string {
	doc, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		panic(fmt.Sprintf("config: cannot marshal defaults: %v", err))
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(doc, &tree); err != nil {
		panic(fmt.Sprintf("config: cannot unmarshal defaults: %v", err))
	}

	var keys []string
	var walk func(prefix string, m map[string]interface{})
	walk = func(prefix string, m map[string]interface{}) {
		for k, v := range m {
			if sub, ok := v.(map[string]interface{}); ok {
				walk(prefix+k+".", sub)
				continue
			}
			keys = append(keys, prefix+k)
		}
	}
	walk("", tree)
	sort.Strings(keys)
	return keys
}

// BindEnv registers every key with v. AutomaticEnv only consults keys viper
// already knows, so without this only flag-bound keys follow the environment.
func BindEnv(v *viper.Viper) error {
	for _, key := range Keys() {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// Validate checks the configuration for values the recorder cannot run with
func (c *Config) Validate() error {
	if c.Serial.Port == "" && !c.Serial.Discover {
		return fmt.Errorf("serial port not specified and discovery disabled")
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate: %d", c.Serial.BaudRate)
	}
	if c.Recording.Duration <= 0 {
		return fmt.Errorf("invalid duration: %v (must be positive)", c.Recording.Duration)
	}
	mode, err := device.ParseWifiMode(c.Recording.Mode)
	if err != nil {
		return err
	}
	if mode == device.Station && c.Recording.SSID == "" {
		return fmt.Errorf("station mode requires recording.ssid")
	}
	if c.Protocol.PayloadLen <= 0 || c.Protocol.PayloadLen%2 != 0 {
		return fmt.Errorf("invalid payload length: %d (must be positive and even)", c.Protocol.PayloadLen)
	}
	if c.Recording.Subcarrier < 0 || c.Recording.Subcarrier >= c.Protocol.PayloadLen/2 {
		return fmt.Errorf("invalid subcarrier: %d (must be between 0 and %d)", c.Recording.Subcarrier, c.Protocol.PayloadLen/2-1)
	}
	if c.Heatmap.HistoryRows <= 0 || c.Heatmap.SnapshotEvery <= 0 {
		return fmt.Errorf("invalid heatmap settings: history_rows=%d, snapshot_every=%d", c.Heatmap.HistoryRows, c.Heatmap.SnapshotEvery)
	}
	if c.Live.BufferCapacity <= 0 || c.Live.ChannelBuffer <= 0 || c.Live.TickInterval <= 0 {
		return fmt.Errorf("invalid live settings: buffer_capacity=%d, channel_buffer=%d, tick_interval=%v",
			c.Live.BufferCapacity, c.Live.ChannelBuffer, c.Live.TickInterval)
	}
	if c.MQTT.Enabled && (c.MQTT.Broker == "" || c.MQTT.Topic == "") {
		return fmt.Errorf("mqtt sink requires a broker and a topic")
	}
	return nil
}

// OutputPath returns the table path for a session started at now
func (c *Config) OutputPath(now time.Time) string {
	name := strings.TrimSuffix(c.Recording.Filename, ".csv")
	if name == "" {
		name = "csi_" + now.Format("20060102_150405")
	}
	return filepath.Join(c.Recording.OutputDir, name+".csv")
}

// RecorderOptions converts the configuration into session options
func (c *Config) RecorderOptions(port string, now time.Time) (recorder.Options, error) {
	mode, err := device.ParseWifiMode(c.Recording.Mode)
	if err != nil {
		return recorder.Options{}, err
	}

	opts := recorder.DefaultOptions()
	opts.Port = port
	opts.BaudRate = c.Serial.BaudRate
	opts.ReadTimeout = c.Serial.ReadTimeout
	opts.Setup = device.Setup{Mode: mode, SSID: c.Recording.SSID, Password: c.Recording.Password}
	opts.Duration = c.Recording.Duration
	opts.OutputPath = c.OutputPath(now)
	opts.PayloadLen = c.Protocol.PayloadLen
	opts.Vocabulary = c.Protocol.Lines
	opts.Subcarrier = c.Recording.Subcarrier
	opts.HistoryRows = c.Heatmap.HistoryRows
	opts.SnapshotEvery = c.Heatmap.SnapshotEvery
	opts.LiveBuffer = c.Live.ChannelBuffer
	return opts, opts.Validate()
}

// SinkConfig returns the MQTT sink settings
func (c *Config) SinkConfig() sink.MQTTConfig {
	return sink.MQTTConfig{
		Broker:         c.MQTT.Broker,
		Topic:          c.MQTT.Topic,
		ClientID:       c.MQTT.ClientID,
		Username:       c.MQTT.Username,
		Password:       c.MQTT.Password,
		QoS:            c.MQTT.QoS,
		PublishTimeout: c.MQTT.PublishTimeout,
	}
}

// Marshal renders the configuration as YAML, suitable as a config.yaml
func (c *Config) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}
