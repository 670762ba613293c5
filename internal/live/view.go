package live

import (
	"fmt"
	"log/slog"
	"strings"

	"esp-csi-recorder/internal/heatmap"
	"esp-csi-recorder/internal/recorder"
)

// Phase is the consumer-side view of the active session.
type Phase int

const (
	Idle Phase = iota
	Recording
	Finished
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// View holds everything the presentation layer shows for one session. It is
// driven from a single goroutine and never blocks.
type View struct {
	series *SeriesBuffer
	grid   heatmap.Grid
	logger *slog.Logger

	phase   Phase
	session *recorder.Session
	result  *recorder.Result
	err     error
}

// NewView creates an idle view whose series keeps capacity samples.
func NewView(capacity int, logger *slog.Logger) (*View, error) {
	series, err := NewSeriesBuffer(capacity)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &View{series: series, logger: logger}, nil
}

// Begin makes s the active session. Receivers of a previous session are
// dropped; its worker runs to completion unobserved.
func (v *View) Begin(s *recorder.Session) {
	if v.session != nil && v.phase == Recording {
		v.logger.Warn("abandoning unfinished session", slog.String("session", v.session.ID))
	}
	v.session = s
	v.phase = Recording
	v.result = nil
	v.err = nil
	v.grid = nil
	v.series.Reset()
}

// Poll performs one non-blocking tick: it drains available samples, applies
// at most one heatmap snapshot and checks for the session result. It reports
// whether the session finished during this tick.
func (v *View) Poll() bool {
	if v.phase != Recording {
		return false
	}

	v.drainLive()
	v.takeSnapshot()

	select {
	case res, ok := <-v.session.Done:
		if !ok {
			v.err = recorder.ErrWorkerVanished
			v.logger.Error("recording worker vanished", slog.String("session", v.session.ID))
		} else {
			v.result = &res
			v.err = res.Err
		}
		// Pick up whatever was queued before the worker exited
		v.drainLive()
		v.takeSnapshot()
		v.phase = Finished
		return true
	default:
		return false
	}
}

func (v *View) drainLive() {
	for {
		select {
		case s, ok := <-v.session.Live:
			if !ok {
				return
			}
			v.series.Push(s)
		default:
			return
		}
	}
}

func (v *View) takeSnapshot() {
	select {
	case g, ok := <-v.session.Heatmap:
		if ok {
			v.grid = g
		}
	default:
	}
}

// Phase returns the session phase.
func (v *View) Phase() Phase { return v.phase }

// Series returns the live series buffer.
func (v *View) Series() *SeriesBuffer { return v.series }

// Grid returns the most recent heatmap snapshot, or nil.
func (v *View) Grid() heatmap.Grid { return v.grid }

// Session returns the active session, or nil before the first Begin.
func (v *View) Session() *recorder.Session { return v.session }

// Result returns the worker's result once it has been received.
func (v *View) Result() (recorder.Result, bool) {
	if v.result == nil {
		return recorder.Result{}, false
	}
	return *v.result, true
}

// Err returns the terminal error of a finished session.
func (v *View) Err() error { return v.err }

// Status renders the single-line status of the session.
func (v *View) Status() string {
	switch v.phase {
	case Idle:
		return "idle"
	case Finished:
		if v.err != nil {
			return "failed: " + v.err.Error()
		}
		return fmt.Sprintf("finished: %d frames written to %s", v.result.Stats.FramesWritten, v.result.Path)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "recording | %d samples", v.series.Len())
	if s, ok := v.series.Latest(); ok {
		fmt.Fprintf(&b, " | t=%.1fs amp=%.2f", s.Elapsed, s.Amplitude)
	}
	if rows := v.grid.Rows(); rows > 0 {
		fmt.Fprintf(&b, " | heatmap %dx%d", rows, v.grid.Cols())
	}
	return b.String()
}
