package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esp-csi-recorder/internal/table"
)

const recording = `device_timestamp,signal_strength,i0,q0,i1,q1
1000000,-40,3,4,0,0
1500000,-42,6,8,0,1
2000000,-44,0,0,1,1
`

func loadRecording(t *testing.T) *table.Table {
	tbl, err := table.Read(strings.NewReader(recording))
	require.NoError(t, err)
	return tbl
}

func TestWriteSummary(t *testing.T) {
	var out bytes.Buffer
	writeSummary(&out, loadRecording(t))

	s := out.String()
	assert.Contains(t, s, "Rows: 3\n")
	assert.Contains(t, s, "Subcarriers: 2\n")
	assert.Contains(t, s, "Span: 1.000 s\n")
	assert.Contains(t, s, "Frame rate: 2.0 Hz\n")
	assert.NotContains(t, s, "Skipped")
}

func TestWriteSeries(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeSeries(&out, loadRecording(t), 0, 2))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "  0.500000       10.000", lines[2])
	assert.Equal(t, "  1.000000        0.000", lines[3])

	assert.Error(t, writeSeries(&out, loadRecording(t), 2, 0))
}

func TestWriteStats(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeStats(&out, loadRecording(t), 0))

	s := out.String()
	assert.Contains(t, s, "Subcarrier 0 amplitude: mean 5.000, std 5.000, min 0.000, max 10.000")
	assert.Contains(t, s, "Signal strength: mean -42.0, std 2.0, min -44, max -40 dBm")
}

func TestWriteHeatmap(t *testing.T) {
	var out bytes.Buffer
	writeHeatmap(&out, loadRecording(t), 0, false)

	// Squared amplitudes 25, 0 / 100, 1 / 0, 2 scaled over 0..100
	assert.Equal(t,
		"\nHeatmap (3 rows x 2 subcarriers, oldest first):\n"+
			"|: |\n"+
			"|@ |\n"+
			"|  |\n",
		out.String())
}
