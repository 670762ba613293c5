// Package recorder runs one CSI recording session: it owns the serial device,
// the output table and the parser, and fans data out to the live view over
// channels.
package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"esp-csi-recorder/internal/csi"
	"esp-csi-recorder/internal/device"
	"esp-csi-recorder/internal/heatmap"
	"esp-csi-recorder/internal/metrics"
	"esp-csi-recorder/internal/sink"
)

// ErrWorkerVanished is reported when a worker ends without sending a result.
var ErrWorkerVanished = errors.New("recording worker disconnected unexpectedly")

// State is the worker's position in the session lifecycle.
type State int

const (
	Idle State = iota
	Configuring
	Capturing
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Configuring:
		return "configuring"
	case Capturing:
		return "capturing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options describe one recording session.
type Options struct {
	SessionID   string // Generated when empty
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
	Setup       device.Setup
	Duration    time.Duration
	OutputPath  string

	PayloadLen int
	Vocabulary csi.Vocabulary
	Subcarrier int // Subcarrier forwarded on the live channel

	HistoryRows     int // Rows kept for heatmap snapshots
	SnapshotEvery   int // Accepted frames between snapshots
	LiveBuffer      int // Capacity of the live sample channel
	ReadBufferSize  int
	WouldBlockSleep time.Duration
	MaxLineLength   int // Bytes buffered without a newline before they are dropped
}

// DefaultOptions returns options for a 10 second sniffer session on 64
// subcarriers.
func DefaultOptions() Options {
	return Options{
		BaudRate:        device.DefaultBaudRate,
		ReadTimeout:     100 * time.Millisecond,
		Setup:           device.Setup{Mode: device.Sniffer},
		Duration:        10 * time.Second,
		PayloadLen:      csi.DefaultPayloadLen,
		Vocabulary:      csi.DefaultVocabulary(),
		Subcarrier:      20,
		HistoryRows:     50,
		SnapshotEvery:   100,
		LiveBuffer:      1024,
		ReadBufferSize:  2048,
		WouldBlockSleep: 10 * time.Millisecond,
		MaxLineLength:   64 * 1024,
	}
}

// Validate checks options before a worker is started.
func (o Options) Validate() error {
	switch {
	case o.Port == "":
		return fmt.Errorf("serial port not specified")
	case o.OutputPath == "":
		return fmt.Errorf("output path not specified")
	case o.Duration <= 0:
		return fmt.Errorf("invalid duration: %v", o.Duration)
	case o.PayloadLen <= 0 || o.PayloadLen%2 != 0:
		return fmt.Errorf("invalid payload length: %d (must be positive and even)", o.PayloadLen)
	case o.Subcarrier < 0:
		return fmt.Errorf("invalid subcarrier: %d", o.Subcarrier)
	case o.HistoryRows <= 0 || o.SnapshotEvery <= 0:
		return fmt.Errorf("invalid heatmap settings: rows=%d, every=%d", o.HistoryRows, o.SnapshotEvery)
	case o.LiveBuffer <= 0 || o.ReadBufferSize <= 0 || o.MaxLineLength <= 0:
		return fmt.Errorf("invalid buffer sizes: live=%d, read=%d, line=%d", o.LiveBuffer, o.ReadBufferSize, o.MaxLineLength)
	}
	if o.Setup.Mode == device.Station && o.Setup.SSID == "" {
		return fmt.Errorf("station mode requires an SSID")
	}
	return nil
}

// Stats counts what happened during a session.
type Stats struct {
	BytesRead     uint64
	LinesRead     uint64
	FramesWritten uint64
	Rejected      uint64
	LiveDropped   uint64
	Snapshots     uint64
	SinkErrors    uint64
}

// Result is the single terminal message of a session.
type Result struct {
	SessionID string
	Path      string
	Stats     Stats
	Elapsed   time.Duration
	Err       error // nil on success
}

// Session is the consumer's handle on a running worker. All channels are
// receive-only; the worker closes them when it exits.
type Session struct {
	ID      string
	Path    string
	Live    <-chan csi.Sample
	Heatmap <-chan heatmap.Grid
	Done    <-chan Result
}

// Recorder starts recording sessions.
type Recorder struct {
	opts         Options
	open         device.Opener
	configurator *device.Configurator
	sink         sink.Sink
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// Option customises a Recorder.
type Option func(*Recorder)

// WithOpener replaces the serial port opener.
func WithOpener(open device.Opener) Option {
	return func(r *Recorder) { r.open = open }
}

// WithConfigurator replaces the CLI command configurator.
func WithConfigurator(c *device.Configurator) Option {
	return func(r *Recorder) { r.configurator = c }
}

// WithSink forwards accepted frames to an external sink. The worker owns s
// from Start on and closes it when the session ends.
func WithSink(s sink.Sink) Option {
	return func(r *Recorder) { r.sink = s }
}

// WithMetrics records pipeline counters into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// New validates opts and creates a recorder.
func New(opts Options, options ...Option) (*Recorder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	r := &Recorder{
		opts:   opts,
		open:   device.Open,
		sink:   sink.Nop{},
		logger: slog.Default(),
	}
	for _, o := range options {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	if r.configurator == nil {
		r.configurator = device.NewConfigurator(device.DefaultCommands(), device.DefaultDelays(), r.logger)
	}
	return r, nil
}

// Start launches the worker goroutine and returns immediately. The worker
// runs until the session duration elapses or the transport fails; there is no
// way to stop it early.
func (r *Recorder) Start() *Session {
	id := r.opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	live := make(chan csi.Sample, r.opts.LiveBuffer)
	snaps := make(chan heatmap.Grid, 1)
	done := make(chan Result, 1)

	go func() {
		defer close(done)
		defer close(snaps)
		defer close(live)
		defer func() {
			// A crashed worker sends nothing: the consumer sees a closed channel
			if p := recover(); p != nil {
				r.logger.Error("recording worker crashed", slog.String("session", id), slog.Any("panic", p))
				r.setState(Failed)
			}
		}()

		started := time.Now()
		stats, err := r.run(id, live, snaps)
		res := Result{
			SessionID: id,
			Path:      r.opts.OutputPath,
			Stats:     stats,
			Elapsed:   time.Since(started),
			Err:       err,
		}
		if err != nil {
			r.setState(Failed)
			r.logger.Error("recording failed", slog.String("session", id), slog.String("error", err.Error()))
		} else {
			r.setState(Completed)
			r.logger.Info("recording complete",
				slog.String("session", id),
				slog.Uint64("frames", stats.FramesWritten),
				slog.Uint64("lines", stats.LinesRead),
				slog.Uint64("rejected", stats.Rejected))
		}
		done <- res
	}()

	return &Session{
		ID:      id,
		Path:    r.opts.OutputPath,
		Live:    live,
		Heatmap: snaps,
		Done:    done,
	}
}

// run executes a session synchronously on the calling goroutine. The table
// and the sink are closed on every exit path, including a panic.
func (r *Recorder) run(id string, live chan<- csi.Sample, snaps chan heatmap.Grid) (stats Stats, err error) {
	logger := r.logger.With(slog.String("session", id))
	defer func() {
		if cerr := r.sink.Close(); cerr != nil {
			logger.Warn("failed to flush sink", slog.String("error", cerr.Error()))
		}
	}()

	r.setState(Configuring)
	logger.Info("configuring device",
		slog.String("port", r.opts.Port),
		slog.String("mode", string(r.opts.Setup.Mode)),
		slog.Duration("duration", r.opts.Duration))

	port, err := r.open(r.opts.Port, r.opts.BaudRate, r.opts.ReadTimeout)
	if err != nil {
		return stats, err
	}
	defer port.Close()

	if err := r.configurator.Reset(port); err != nil {
		return stats, fmt.Errorf("failed to reset device: %w", err)
	}
	if err := r.configurator.Apply(port, r.opts.Setup); err != nil {
		return stats, fmt.Errorf("failed to configure device: %w", err)
	}
	if err := r.configurator.StartCapture(port, r.opts.Duration); err != nil {
		return stats, fmt.Errorf("failed to start capture: %w", err)
	}

	if dir := filepath.Dir(r.opts.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return stats, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	c, err := newCapture(r, id, &stats, live, snaps)
	if err != nil {
		return stats, err
	}
	defer func() {
		if cerr := c.out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	r.setState(Capturing)
	logger.Info("capturing", slog.String("output", r.opts.OutputPath))

	err = c.loop(port)
	return stats, err
}

func (r *Recorder) setState(s State) {
	r.metrics.WorkerState.Set(float64(s))
	r.logger.Info("worker state", slog.String("state", s.String()))
}
