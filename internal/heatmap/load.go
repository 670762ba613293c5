package heatmap

import (
	"esp-csi-recorder/internal/table"
)

// FromTable normalises every decoded row of a recording.
func FromTable(t *table.Table) Grid {
	return Normalize(t.RawRows(), t.Subcarriers)
}

// LoadFile reconstructs the heatmap of a finished recording.
func LoadFile(path string) (Grid, error) {
	t, err := table.Load(path)
	if err != nil {
		return nil, err
	}
	return FromTable(t), nil
}
