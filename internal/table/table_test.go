package table

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esp-csi-recorder/internal/csi"
)

func mustFrame(t *testing.T, ts uint64, rssi int32, raw ...int32) *csi.Frame {
	t.Helper()
	f, err := csi.NewFrame(ts, rssi, raw)
	require.NoError(t, err)
	return f
}

func TestHeader(t *testing.T) {
	assert.Equal(t,
		[]string{"device_timestamp", "signal_strength", "i0", "q0", "i1", "q1"},
		Header(4))
}

func TestRowRoundTrip(t *testing.T) {
	f := mustFrame(t, 18446744073709551615, -97, -2147483648, 2147483647, 0, -1)

	got, err := DecodeRow(EncodeRow(f), 2)
	require.NoError(t, err)
	assert.Equal(t, f.DeviceTimestamp, got.DeviceTimestamp)
	assert.Equal(t, f.SignalStrength, got.SignalStrength)
	assert.Equal(t, f.Raw(), got.Raw())
}

func TestDecodeRowShort(t *testing.T) {
	_, err := DecodeRow([]string{"1", "-2", "3"}, 1)
	require.ErrorIs(t, err, ErrShortRecord)
}

func TestWriterHeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	assert.False(t, w.HeaderWritten())

	require.NoError(t, w.WriteFrame(mustFrame(t, 10, -40, 1, 2)))
	require.NoError(t, w.WriteFrame(mustFrame(t, 20, -41, 3, 4)))
	require.NoError(t, w.Close())

	assert.True(t, w.HeaderWritten())
	assert.Equal(t, uint64(2), w.Rows())
	assert.Equal(t,
		"device_timestamp,signal_strength,i0,q0\n10,-40,1,2\n20,-41,3,4\n",
		buf.String())
}

func TestWriterRejectsMismatchedPayload(t *testing.T) {
	w := NewWriter(&bytes.Buffer{})
	require.NoError(t, w.WriteFrame(mustFrame(t, 1, 0, 1, 2)))
	require.Error(t, w.WriteFrame(mustFrame(t, 2, 0, 1, 2, 3, 4)))
}

func TestReadSkipsShortAndMalformedRows(t *testing.T) {
	input := strings.Join([]string{
		"device_timestamp,signal_strength,i0,q0,i1,q1",
		"1000000,-40,3,4,0,1",
		"2000000,-41,3",
		"3000000,-42,x,4,0,1",
		"",
		"4000000,-43,6,8,0,2",
	}, "\n")

	tbl, err := Read(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Subcarriers)
	assert.Equal(t, 2, tbl.Skipped)
	require.Len(t, tbl.Frames, 2)

	series := tbl.AmplitudeSeries(0)
	assert.Equal(t, []csi.Sample{{Elapsed: 0, Amplitude: 5}, {Elapsed: 3, Amplitude: 10}}, series)
}

func TestReadEmpty(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	require.ErrorIs(t, err, ErrEmptyTable)
}

func TestSubcarriersFromHeaderDropsOddColumn(t *testing.T) {
	assert.Equal(t, 1, SubcarriersFromHeader([]string{"a", "b", "i0", "q0", "i1"}))
	assert.Equal(t, 0, SubcarriersFromHeader([]string{"a", "b"}))
}

func TestCreateAndLoadAmplitudeSeries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walk.csv")

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(mustFrame(t, 500, -40, 0, 0, 3, 4)))
	require.NoError(t, w.WriteFrame(mustFrame(t, 1500, -40, 0, 0, 6, 8)))
	require.NoError(t, w.Close())

	series, err := LoadAmplitudeSeries(path, 1)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 5.0, series[0].Amplitude)
	assert.InDelta(t, 0.001, series[1].Elapsed, 1e-12)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
