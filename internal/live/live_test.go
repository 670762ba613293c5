package live

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esp-csi-recorder/internal/csi"
	"esp-csi-recorder/internal/heatmap"
	"esp-csi-recorder/internal/recorder"
)

type fakeSession struct {
	live  chan csi.Sample
	snaps chan heatmap.Grid
	done  chan recorder.Result
}

func newFakeSession(id string) (*fakeSession, *recorder.Session) {
	f := &fakeSession{
		live:  make(chan csi.Sample, 16),
		snaps: make(chan heatmap.Grid, 1),
		done:  make(chan recorder.Result, 1),
	}
	return f, &recorder.Session{ID: id, Path: id + ".csv", Live: f.live, Heatmap: f.snaps, Done: f.done}
}

func newView(t *testing.T, capacity int) *View {
	v, err := NewView(capacity, nil)
	require.NoError(t, err)
	return v
}

func TestSeriesBufferBound(t *testing.T) {
	b, err := NewSeriesBuffer(3)
	require.NoError(t, err)

	_, ok := b.Latest()
	assert.False(t, ok)

	for i := 0; i < 10; i++ {
		b.Push(csi.Sample{Elapsed: float64(i), Amplitude: float64(i * 2)})
		assert.LessOrEqual(t, b.Len(), b.Cap())
	}

	assert.Equal(t, []csi.Sample{
		{Elapsed: 7, Amplitude: 14},
		{Elapsed: 8, Amplitude: 16},
		{Elapsed: 9, Amplitude: 18},
	}, b.Points())

	latest, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, 9.0, latest.Elapsed)

	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Points())
}

func TestSeriesBufferRejectsZeroCapacity(t *testing.T) {
	_, err := NewSeriesBuffer(0)
	assert.Error(t, err)
}

func TestPollDrainsSamples(t *testing.T) {
	f, s := newFakeSession("a")
	v := newView(t, 2)
	v.Begin(s)

	f.live <- csi.Sample{Elapsed: 0.1, Amplitude: 1}
	f.live <- csi.Sample{Elapsed: 0.2, Amplitude: 2}
	f.live <- csi.Sample{Elapsed: 0.3, Amplitude: 3}

	assert.False(t, v.Poll())
	assert.Equal(t, Recording, v.Phase())
	assert.Equal(t, []csi.Sample{{Elapsed: 0.2, Amplitude: 2}, {Elapsed: 0.3, Amplitude: 3}}, v.Series().Points())
	assert.Len(t, f.live, 0)
	assert.Contains(t, v.Status(), "recording | 2 samples")
}

func TestPollAppliesLatestGrid(t *testing.T) {
	f, s := newFakeSession("a")
	v := newView(t, 4)
	v.Begin(s)
	assert.Nil(t, v.Grid())

	f.snaps <- heatmap.Grid{{1, 2}}
	v.Poll()
	assert.Equal(t, heatmap.Grid{{1, 2}}, v.Grid())

	// No new snapshot keeps the current one
	v.Poll()
	assert.Equal(t, heatmap.Grid{{1, 2}}, v.Grid())

	f.snaps <- heatmap.Grid{{3, 4}, {5, 6}}
	v.Poll()
	assert.Equal(t, heatmap.Grid{{3, 4}, {5, 6}}, v.Grid())
	assert.Contains(t, v.Status(), "heatmap 2x2")
}

func TestPollCompletes(t *testing.T) {
	f, s := newFakeSession("a")
	v := newView(t, 4)
	v.Begin(s)

	f.live <- csi.Sample{Elapsed: 1, Amplitude: 5}
	f.done <- recorder.Result{SessionID: "a", Path: "a.csv", Stats: recorder.Stats{FramesWritten: 12}}
	close(f.done)

	assert.True(t, v.Poll())
	assert.Equal(t, Finished, v.Phase())
	assert.NoError(t, v.Err())
	res, ok := v.Result()
	require.True(t, ok)
	assert.Equal(t, uint64(12), res.Stats.FramesWritten)
	assert.Equal(t, 1, v.Series().Len())
	assert.Equal(t, "finished: 12 frames written to a.csv", v.Status())

	// Polling stops once finished
	f.live <- csi.Sample{Elapsed: 2, Amplitude: 6}
	assert.False(t, v.Poll())
	assert.Equal(t, 1, v.Series().Len())
}

func TestPollReportsFailure(t *testing.T) {
	f, s := newFakeSession("a")
	v := newView(t, 4)
	v.Begin(s)

	f.done <- recorder.Result{SessionID: "a", Err: errors.New("serial read failed: EIO")}
	assert.True(t, v.Poll())
	assert.EqualError(t, v.Err(), "serial read failed: EIO")
	assert.Equal(t, "failed: serial read failed: EIO", v.Status())
}

func TestPollWorkerVanished(t *testing.T) {
	f, s := newFakeSession("a")
	v := newView(t, 4)
	v.Begin(s)

	// Nothing sent yet: still running
	assert.False(t, v.Poll())
	assert.Equal(t, Recording, v.Phase())

	close(f.live)
	close(f.snaps)
	close(f.done)

	assert.True(t, v.Poll())
	assert.Equal(t, Finished, v.Phase())
	assert.ErrorIs(t, v.Err(), recorder.ErrWorkerVanished)
	_, ok := v.Result()
	assert.False(t, ok)
}

func TestBeginReplacesSession(t *testing.T) {
	oldF, oldS := newFakeSession("old")
	v := newView(t, 4)
	v.Begin(oldS)

	oldF.live <- csi.Sample{Elapsed: 1, Amplitude: 1}
	oldF.snaps <- heatmap.Grid{{9}}
	v.Poll()
	require.Equal(t, 1, v.Series().Len())

	newF, newS := newFakeSession("new")
	v.Begin(newS)
	assert.Equal(t, Recording, v.Phase())
	assert.Equal(t, 0, v.Series().Len())
	assert.Nil(t, v.Grid())
	assert.Equal(t, "new", v.Session().ID)

	// Late output of the old worker is never read
	oldF.live <- csi.Sample{Elapsed: 2, Amplitude: 2}
	oldF.done <- recorder.Result{SessionID: "old"}
	newF.live <- csi.Sample{Elapsed: 0.5, Amplitude: 7}

	assert.False(t, v.Poll())
	assert.Equal(t, []csi.Sample{{Elapsed: 0.5, Amplitude: 7}}, v.Series().Points())
}

func TestIdleStatus(t *testing.T) {
	v := newView(t, 1)
	assert.Equal(t, Idle, v.Phase())
	assert.Equal(t, "idle", v.Status())
	assert.False(t, v.Poll())
}
