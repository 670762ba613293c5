package recorder

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"esp-csi-recorder/internal/csi"
	"esp-csi-recorder/internal/device"
	"esp-csi-recorder/internal/heatmap"
	"esp-csi-recorder/internal/table"
)

// capture is the state of the Capturing phase. It is owned by the worker
// goroutine and never shared.
type capture struct {
	r       *Recorder
	logger  *slog.Logger
	stats   *Stats
	parser  *csi.Parser
	out     *table.Writer
	history *heatmap.History
	live    chan<- csi.Sample
	snaps   chan heatmap.Grid
	start   time.Time
	pending []byte
}

func newCapture(r *Recorder, id string, stats *Stats, live chan<- csi.Sample, snaps chan heatmap.Grid) (*capture, error) {
	out, err := table.Create(r.opts.OutputPath)
	if err != nil {
		return nil, err
	}
	history, err := heatmap.NewHistory(r.opts.HistoryRows)
	if err != nil {
		out.Close()
		return nil, err
	}

	logger := r.logger.With(slog.String("session", id))
	parser := csi.NewParser(r.opts.PayloadLen,
		csi.WithVocabulary(r.opts.Vocabulary),
		csi.WithLogger(logger),
		csi.WithRejectHook(func(reason csi.Reason) {
			stats.Rejected++
			r.metrics.FramesRejected.WithLabelValues(string(reason)).Inc()
		}),
	)

	return &capture{
		r:       r,
		logger:  logger,
		stats:   stats,
		parser:  parser,
		out:     out,
		history: history,
		live:    live,
		snaps:   snaps,
	}, nil
}

// loop drains the device until the session duration has elapsed. Only
// transport and output errors end it early.
func (c *capture) loop(port device.Port) error {
	buf := make([]byte, c.r.opts.ReadBufferSize)
	c.start = time.Now()

	for time.Since(c.start) < c.r.opts.Duration {
		n, err := port.Read(buf)
		if err != nil {
			switch device.ClassifyReadError(err) {
			case device.ReadTimeout:
				continue
			case device.ReadWouldBlock:
				time.Sleep(c.r.opts.WouldBlockSleep)
				continue
			default:
				return fmt.Errorf("serial read failed: %w", err)
			}
		}
		if n == 0 {
			continue
		}

		c.stats.BytesRead += uint64(n)
		c.r.metrics.BytesRead.Add(float64(n))
		if err := c.consume(buf[:n]); err != nil {
			return err
		}
	}
	return nil
}

// consume appends bytes to the line buffer and handles every complete line.
func (c *capture) consume(chunk []byte) error {
	c.pending = append(c.pending, chunk...)

	rest := c.pending
	for {
		idx := bytes.IndexByte(rest, '\n')
		if idx < 0 {
			break
		}
		line := string(rest[:idx])
		rest = rest[idx+1:]

		c.stats.LinesRead++
		c.r.metrics.LinesRead.Inc()
		if f := c.parser.FeedLine(line); f != nil {
			if err := c.accept(f); err != nil {
				return err
			}
		}
	}

	if len(rest) > c.r.opts.MaxLineLength {
		c.logger.Warn("dropping oversized partial line", slog.Int("bytes", len(rest)))
		rest = rest[:0]
	}
	c.pending = append(c.pending[:0], rest...)
	return nil
}

// accept fans a parsed frame out to the table, the sink and the live view.
func (c *capture) accept(f *csi.Frame) error {
	if err := c.out.WriteFrame(f); err != nil {
		return err
	}
	index := c.stats.FramesWritten
	c.stats.FramesWritten++
	c.r.metrics.FramesAccepted.Inc()

	if err := c.r.sink.LogFrame(index, f); err != nil {
		c.stats.SinkErrors++
		c.r.metrics.SinkErrors.Inc()
		c.logger.Debug("sink rejected frame", slog.Uint64("frame", index), slog.String("error", err.Error()))
	}

	if amp, ok := f.AmplitudeAt(c.r.opts.Subcarrier); ok {
		select {
		case c.live <- csi.Sample{Elapsed: time.Since(c.start).Seconds(), Amplitude: amp}:
		default:
			c.stats.LiveDropped++
			c.r.metrics.LiveDropped.Inc()
		}
	}

	c.history.Push(f.Raw())
	if c.stats.FramesWritten%uint64(c.r.opts.SnapshotEvery) == 0 {
		c.publishSnapshot(c.history.Snapshot(f.Subcarriers()))
	}
	return nil
}

// publishSnapshot keeps only the newest grid in the single-slot channel,
// evicting a grid the consumer has not read yet.
func (c *capture) publishSnapshot(g heatmap.Grid) {
	select {
	case c.snaps <- g:
	default:
		select {
		case <-c.snaps:
		default:
		}
		select {
		case c.snaps <- g:
		default:
			return
		}
	}
	c.stats.Snapshots++
	c.r.metrics.Snapshots.Inc()
}
