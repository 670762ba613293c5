// ESP CSI Recorder - records WiFi Channel State Information from an ESP32
// running the esp-csi-cli firmware. The board streams CSI frames as text over
// a serial link; this program configures it, writes every frame to a CSV table
// and shows live progress while the capture runs.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"esp-csi-recorder/internal/config"
	"esp-csi-recorder/internal/device"
	"esp-csi-recorder/internal/live"
	"esp-csi-recorder/internal/metrics"
	"esp-csi-recorder/internal/recorder"
	"esp-csi-recorder/internal/sink"
	"esp-csi-recorder/internal/version"
)

const appName = "esp-csi-recorder"

// Command line flag variables
var (
	cfgFile     string // Configuration file path
	verbose     bool   // Enable debug logging
	showVersion bool   // Print version and exit
)

// rootCmd records one session
var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Record WiFi CSI frames from an ESP32 over serial",
	Long: `ESP CSI Recorder configures an ESP32 running esp-csi-cli, captures
Channel State Information frames for a fixed duration and writes them to a
CSV table (device_timestamp, signal_strength, i0, q0, ...).

Use csi-reader to inspect recorded tables.`,
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.Get().Banner(appName))
			return
		}
		if err := runRecorder(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// configCmd prints the effective configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		out, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

// portsCmd lists serial ports and marks the one discovery would pick
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := device.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}
		chosen, _ := device.ChoosePort(ports)
		for _, p := range ports {
			mark := " "
			if p.Name == chosen {
				mark = "*"
			}
			if p.IsUSB {
				fmt.Printf("%s %-20s USB %s:%s %s\n", mark, p.Name, p.VID, p.PID, p.Product)
			} else {
				fmt.Printf("%s %s\n", mark, p.Name)
			}
		}
		return nil
	},
}

// init initializes the CLI flags and configuration
func init() {
	cobra.OnInitialize(initConfig)
	defaults := config.DefaultConfig()

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")

	// Serial link
	rootCmd.Flags().StringP("port", "p", defaults.Serial.Port, "serial port (empty to detect the ESP32)")
	rootCmd.Flags().Int("baud", defaults.Serial.BaudRate, "serial baud rate")

	// Session
	rootCmd.Flags().DurationP("duration", "d", defaults.Recording.Duration, "capture duration")
	rootCmd.Flags().StringP("output", "o", defaults.Recording.OutputDir, "output directory")
	rootCmd.Flags().StringP("name", "n", defaults.Recording.Filename, "table name without extension (default csi_<timestamp>)")
	rootCmd.Flags().StringP("mode", "m", defaults.Recording.Mode, "WiFi mode: sniffer or station")
	rootCmd.Flags().String("ssid", defaults.Recording.SSID, "access point SSID (station mode)")
	rootCmd.Flags().String("password", defaults.Recording.Password, "access point password (station mode)")
	rootCmd.Flags().Int("subcarrier", defaults.Recording.Subcarrier, "subcarrier shown in the live series")
	rootCmd.Flags().Int("payload-len", defaults.Protocol.PayloadLen, "raw values per CSI frame (2 per subcarrier)")

	// Outputs
	rootCmd.Flags().String("metrics-addr", defaults.Metrics.Addr, "serve Prometheus metrics on this address (e.g. :9110)")
	rootCmd.Flags().Bool("mqtt", defaults.MQTT.Enabled, "publish frames to an MQTT broker")
	rootCmd.Flags().String("mqtt-broker", defaults.MQTT.Broker, "MQTT broker URL")
	rootCmd.Flags().String("mqtt-topic", defaults.MQTT.Topic, "MQTT topic for frames")
	rootCmd.PersistentFlags().String("log-level", defaults.Logging.Level, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", defaults.Logging.File, "log file (default stderr)")

	// Bind command line flags to viper configuration keys
	viper.BindPFlag("serial.port", rootCmd.Flags().Lookup("port"))
	viper.BindPFlag("serial.baud_rate", rootCmd.Flags().Lookup("baud"))
	viper.BindPFlag("recording.duration", rootCmd.Flags().Lookup("duration"))
	viper.BindPFlag("recording.output_dir", rootCmd.Flags().Lookup("output"))
	viper.BindPFlag("recording.filename", rootCmd.Flags().Lookup("name"))
	viper.BindPFlag("recording.mode", rootCmd.Flags().Lookup("mode"))
	viper.BindPFlag("recording.ssid", rootCmd.Flags().Lookup("ssid"))
	viper.BindPFlag("recording.password", rootCmd.Flags().Lookup("password"))
	viper.BindPFlag("recording.subcarrier", rootCmd.Flags().Lookup("subcarrier"))
	viper.BindPFlag("protocol.payload_len", rootCmd.Flags().Lookup("payload-len"))
	viper.BindPFlag("metrics.addr", rootCmd.Flags().Lookup("metrics-addr"))
	viper.BindPFlag("mqtt.enabled", rootCmd.Flags().Lookup("mqtt"))
	viper.BindPFlag("mqtt.broker", rootCmd.Flags().Lookup("mqtt-broker"))
	viper.BindPFlag("mqtt.topic", rootCmd.Flags().Lookup("mqtt-topic"))
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.file", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(configCmd, portsCmd)
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	// CSI_RECORDING_DURATION=30s overrides recording.duration
	viper.SetEnvPrefix("csi")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := config.BindEnv(viper.GetViper()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setupLogging builds the process logger. The returned func releases the log
// file, if any.
func setupLogging(cfg config.LoggingConfig) (*slog.Logger, func(), error) {
	level := new(slog.LevelVar)
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if verbose {
		level.Set(slog.LevelDebug)
	}

	var out io.Writer = os.Stderr
	release := func() {}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		release = func() { f.Close() }
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, release, nil
}

// runRecorder is the main application logic
func runRecorder() error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLog, err := setupLogging(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	port := cfg.Serial.Port
	if port == "" {
		port, err = device.Discover()
		if errors.Is(err, device.ErrNoPort) {
			return fmt.Errorf("%w: connect the board or pass --port", err)
		}
		if err != nil {
			return err
		}
		logger.Info("detected serial port", slog.String("port", port))
	}

	sessionID := uuid.NewString()
	opts, err := cfg.RecorderOptions(port, time.Now())
	if err != nil {
		return fmt.Errorf("invalid session options: %w", err)
	}
	opts.SessionID = sessionID

	view, err := live.NewView(cfg.Live.BufferCapacity, logger)
	if err != nil {
		return err
	}

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		srv := m.Serve(cfg.Metrics.Addr, logger)
		defer srv.Close()
	}

	var frameSink sink.Sink = sink.Nop{}
	if cfg.MQTT.Enabled {
		mq, err := sink.DialMQTT(cfg.SinkConfig(), sessionID)
		if err != nil {
			return err
		}
		frameSink = mq
	}

	// From Start on the worker owns the sink and closes it
	rec, err := recorder.New(opts,
		recorder.WithConfigurator(device.NewConfigurator(cfg.Protocol.Commands, cfg.Protocol.Delays, logger)),
		recorder.WithSink(frameSink),
		recorder.WithMetrics(m),
		recorder.WithLogger(logger),
	)
	if err != nil {
		frameSink.Close()
		return err
	}

	fmt.Printf("ESP CSI Recorder %s\n", version.Get().Short())
	fmt.Printf("Port: %s @ %d baud\n", port, cfg.Serial.BaudRate)
	fmt.Printf("Mode: %s\n", opts.Setup.Mode)
	fmt.Printf("Duration: %v\n", opts.Duration)
	fmt.Printf("Output: %s\n", opts.OutputPath)
	fmt.Printf("Session: %s\n", sessionID)

	started := time.Now()
	view.Begin(rec.Start())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(cfg.Live.TickInterval)
	defer ticker.Stop()

	for view.Phase() == live.Recording {
		select {
		case <-sigChan:
			fmt.Println()
			return fmt.Errorf("interrupted after %s; %s may be incomplete",
				time.Since(started).Round(time.Second), opts.OutputPath)
		case <-ticker.C:
			view.Poll()
			remaining := opts.Duration - time.Since(started)
			if remaining < 0 {
				remaining = 0
			}
			fmt.Printf("\r\033[K%s | %s left", view.Status(), remaining.Round(time.Second))
		}
	}
	fmt.Println()

	if err := view.Err(); err != nil {
		return fmt.Errorf("recording failed: %w", err)
	}

	res, _ := view.Result()
	fmt.Printf("Recorded %s frames (%s rejected) from %s of serial data in %s\n",
		humanize.Comma(int64(res.Stats.FramesWritten)),
		humanize.Comma(int64(res.Stats.Rejected)),
		humanize.Bytes(res.Stats.BytesRead),
		res.Elapsed.Round(time.Millisecond))
	if res.Stats.LiveDropped > 0 {
		fmt.Printf("Live view skipped %s samples\n", humanize.Comma(int64(res.Stats.LiveDropped)))
	}
	fmt.Printf("Table written to %s\n", res.Path)
	return nil
}

// main is the entry point of the application
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
