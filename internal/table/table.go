// Package table implements the comma-separated CSI recording format:
// header synthesis, row encoding and decoding, and whole-file loaders.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"esp-csi-recorder/internal/csi"
)

const (
	ColTimestamp      = "device_timestamp"
	ColSignalStrength = "signal_strength"

	// leadingCols is the number of metadata columns before the I/Q values
	leadingCols = 2
)

var (
	ErrEmptyTable  = errors.New("table has no header")
	ErrShortRecord = errors.New("record has fewer columns than required")
)

// Header returns the column names for frames carrying payloadLen raw values.
func Header(payloadLen int) []string {
	subcarriers := payloadLen / 2
	cols := make([]string, 0, leadingCols+2*subcarriers)
	cols = append(cols, ColTimestamp, ColSignalStrength)
	for k := 0; k < subcarriers; k++ {
		cols = append(cols, "i"+strconv.Itoa(k), "q"+strconv.Itoa(k))
	}
	return cols
}

// EncodeRow renders a frame as one record: timestamp, signal strength, then
// every raw value in original order.
func EncodeRow(f *csi.Frame) []string {
	raw := f.Raw()
	rec := make([]string, 0, leadingCols+len(raw))
	rec = append(rec,
		strconv.FormatUint(f.DeviceTimestamp, 10),
		strconv.FormatInt(int64(f.SignalStrength), 10),
	)
	for _, v := range raw {
		rec = append(rec, strconv.FormatInt(int64(v), 10))
	}
	return rec
}

// DecodeRow parses a record holding at least 2 + 2*subcarriers columns.
// Extra trailing columns are ignored.
func DecodeRow(rec []string, subcarriers int) (*csi.Frame, error) {
	need := leadingCols + 2*subcarriers
	if len(rec) < need {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrShortRecord, len(rec), need)
	}

	ts, err := strconv.ParseUint(rec[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", ColTimestamp, rec[0], err)
	}
	rssi, err := strconv.ParseInt(rec[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", ColSignalStrength, rec[1], err)
	}

	raw := make([]int32, 2*subcarriers)
	for i := range raw {
		v, err := strconv.ParseInt(rec[leadingCols+i], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid value in column %d %q: %w", leadingCols+i, rec[leadingCols+i], err)
		}
		raw[i] = int32(v)
	}
	return csi.NewFrame(ts, int32(rssi), raw)
}

// SubcarriersFromHeader derives the subcarrier count from a header. A stray
// odd trailing column is ignored.
func SubcarriersFromHeader(header []string) int {
	if len(header) <= leadingCols {
		return 0
	}
	return (len(header) - leadingCols) / 2
}

// Table is a fully decoded recording.
type Table struct {
	Header      []string
	Subcarriers int
	Frames      []*csi.Frame
	Skipped     int // Rows dropped for being short or unparsable
}

// Read decodes a table from r, skipping malformed rows.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyTable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	t := &Table{
		Header:      append([]string(nil), header...),
		Subcarriers: SubcarriersFromHeader(header),
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				t.Skipped++
				continue
			}
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		f, err := DecodeRow(rec, t.Subcarriers)
		if err != nil {
			t.Skipped++
			continue
		}
		t.Frames = append(t.Frames, f)
	}

	return t, nil
}

// Load opens and decodes the table stored at path.
func Load(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer file.Close()

	return Read(file)
}

// LoadAmplitudeSeries returns (elapsed seconds, amplitude) pairs for one
// subcarrier. Time is relative to the first decoded row's device timestamp.
func LoadAmplitudeSeries(path string, subcarrier int) ([]csi.Sample, error) {
	t, err := Load(path)
	if err != nil {
		return nil, err
	}
	return t.AmplitudeSeries(subcarrier), nil
}

// AmplitudeSeries extracts the amplitude of one subcarrier over time.
func (t *Table) AmplitudeSeries(subcarrier int) []csi.Sample {
	if len(t.Frames) == 0 {
		return nil
	}
	first := t.Frames[0].DeviceTimestamp
	out := make([]csi.Sample, 0, len(t.Frames))
	for _, f := range t.Frames {
		amp, ok := f.AmplitudeAt(subcarrier)
		if !ok {
			continue
		}
		out = append(out, csi.Sample{Elapsed: csi.ElapsedSeconds(first, f), Amplitude: amp})
	}
	return out
}

// RawRows returns the raw I/Q payload of every decoded frame.
func (t *Table) RawRows() [][]int32 {
	rows := make([][]int32, len(t.Frames))
	for i, f := range t.Frames {
		rows[i] = f.Raw()
	}
	return rows
}
