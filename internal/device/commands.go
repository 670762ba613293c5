package device

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// WifiMode selects how the radio captures CSI.
type WifiMode string

const (
	// Sniffer passively captures ambient traffic
	Sniffer WifiMode = "sniffer"
	// Station associates with an access point
	Station WifiMode = "station"
)

// ParseWifiMode validates a mode name.
func ParseWifiMode(s string) (WifiMode, error) {
	switch m := WifiMode(strings.ToLower(strings.TrimSpace(s))); m {
	case Sniffer, Station:
		return m, nil
	default:
		return "", fmt.Errorf("invalid wifi mode: %q (must be 'sniffer' or 'station')", s)
	}
}

// Commands is the firmware CLI vocabulary. Templates take one %s or %d verb.
type Commands struct {
	ModeSet        string `yaml:"mode_set"`        // %s: wifi mode
	SSIDSet        string `yaml:"ssid_set"`        // %s: station SSID
	PasswordSet    string `yaml:"password_set"`    // %s: station password
	FeatureDisable string `yaml:"feature_disable"` // Sent in station mode; empty to skip
	Start          string `yaml:"start"`           // %d: capture duration in seconds
	Terminator     string `yaml:"terminator"`
}

// DefaultCommands returns the esp-csi-cli command set.
func DefaultCommands() Commands {
	return Commands{
		ModeSet:        "wifi-set --mode=%s",
		SSIDSet:        "wifi-set --sta-ssid=%s",
		PasswordSet:    "wifi-set --sta-password=%s",
		FeatureDisable: "csi-set --disable-htltf",
		Start:          "start --duration=%d",
		Terminator:     "\r\n",
	}
}

// Delays are the pauses that give the board time to apply each step.
type Delays struct {
	Boot    time.Duration `yaml:"boot"`    // After asserting DTR
	Command time.Duration `yaml:"command"` // Between configuration commands
	Settle  time.Duration `yaml:"settle"`  // After the last configuration command
	Start   time.Duration `yaml:"start"`   // After the start command
}

// DefaultDelays returns the timings observed to work with ESP32 boards.
func DefaultDelays() Delays {
	return Delays{
		Boot:    100 * time.Millisecond,
		Command: 100 * time.Millisecond,
		Settle:  200 * time.Millisecond,
		Start:   100 * time.Millisecond,
	}
}

// Setup describes the radio configuration for one session.
type Setup struct {
	Mode     WifiMode
	SSID     string
	Password string
}

// Configurator drives the configuration phase of a session.
type Configurator struct {
	Commands Commands
	Delays   Delays
	Logger   *slog.Logger
	Sleep    func(time.Duration)
}

// NewConfigurator creates a configurator with real sleeps.
func NewConfigurator(cmds Commands, delays Delays, logger *slog.Logger) *Configurator {
	return &Configurator{
		Commands: cmds,
		Delays:   delays,
		Logger:   logger,
		Sleep:    time.Sleep,
	}
}

// Reset asserts DTR to reboot the board, waits for it to boot, then drops
// whatever the OS buffered before the reset.
func (c *Configurator) Reset(p Port) error {
	if err := p.SetDTR(true); err != nil {
		return fmt.Errorf("failed to assert DTR: %w", err)
	}
	c.Sleep(c.Delays.Boot)
	if err := p.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to flush input buffer: %w", err)
	}
	return nil
}

// Apply sends the configuration commands for the requested mode.
func (c *Configurator) Apply(p Port, setup Setup) error {
	for i, cmd := range c.SetupCommands(setup) {
		if i > 0 {
			c.Sleep(c.Delays.Command)
		}
		if err := c.Send(p, cmd); err != nil {
			return err
		}
	}
	c.Sleep(c.Delays.Settle)
	return nil
}

// StartCapture asks the firmware to stream CSI for the given duration.
func (c *Configurator) StartCapture(p Port, duration time.Duration) error {
	secs := int64(duration.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	if err := c.Send(p, fmt.Sprintf(c.Commands.Start, secs)); err != nil {
		return err
	}
	c.Sleep(c.Delays.Start)
	return nil
}

// SetupCommands lists the commands sent for a setup, in order.
func (c *Configurator) SetupCommands(setup Setup) []string {
	cmds := []string{fmt.Sprintf(c.Commands.ModeSet, setup.Mode)}
	if setup.Mode == Station {
		cmds = append(cmds,
			fmt.Sprintf(c.Commands.SSIDSet, setup.SSID),
			fmt.Sprintf(c.Commands.PasswordSet, setup.Password),
		)
		if c.Commands.FeatureDisable != "" {
			cmds = append(cmds, c.Commands.FeatureDisable)
		}
	}
	return cmds
}

// Send writes one command line.
func (c *Configurator) Send(w io.Writer, cmd string) error {
	if c.Logger != nil {
		c.Logger.Debug("sending CLI command", slog.String("command", redact(cmd, c.Commands.PasswordSet)))
	}
	if _, err := io.WriteString(w, cmd+c.Commands.Terminator); err != nil {
		return fmt.Errorf("failed to send command %q: %w", redact(cmd, c.Commands.PasswordSet), err)
	}
	return nil
}

// redact hides the argument of the password command in logs.
func redact(cmd, passwordTemplate string) string {
	prefix, _, ok := strings.Cut(passwordTemplate, "%s")
	if ok && prefix != "" && strings.HasPrefix(cmd, prefix) {
		return prefix + "***"
	}
	return cmd
}
