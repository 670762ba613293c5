// Package heatmap turns raw CSI I/Q rows into a bounded 0-100 grid for
// visualisation.
package heatmap

import (
	"math"
)

// MaxValue is the upper bound of every grid cell.
const MaxValue = 100

// Grid is a row-major heatmap; every cell lies in [0, MaxValue].
type Grid [][]uint8

// Rows returns the number of rows.
func (g Grid) Rows() int {
	return len(g)
}

// Cols returns the number of columns, zero for an empty grid.
func (g Grid) Cols() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// Normalize scales the squared amplitude I^2+Q^2 of every cell against the
// global minimum and maximum of the whole input. Scaling is relative to all
// rows so a single hot frame does not wash out the rest of the scale; the
// input therefore has to be buffered in full before any cell is emitted.
//
// Rows shorter than 2*subcarriers contribute zero for the missing values.
// When the range is degenerate an all-zero grid of the same shape is returned.
func Normalize(rows [][]int32, subcarriers int) Grid {
	if len(rows) == 0 || subcarriers <= 0 {
		return Grid{}
	}

	// Pass 1: squared amplitudes and the global range
	squared := make([][]float64, len(rows))
	lo, hi := math.Inf(1), math.Inf(-1)
	for r, row := range rows {
		out := make([]float64, subcarriers)
		for k := range out {
			i, q := valueAt(row, 2*k), valueAt(row, 2*k+1)
			a := i*i + q*q
			out[k] = a
			lo = math.Min(lo, a)
			hi = math.Max(hi, a)
		}
		squared[r] = out
	}

	grid := make(Grid, len(rows))
	if math.IsInf(lo, 0) || math.IsNaN(lo) || math.IsInf(hi, 0) || math.IsNaN(hi) || hi <= lo {
		for r := range grid {
			grid[r] = make([]uint8, subcarriers)
		}
		return grid
	}

	// Pass 2: min-max scale into [0, 100]
	span := hi - lo
	for r, row := range squared {
		out := make([]uint8, subcarriers)
		for k, a := range row {
			norm := math.Max(0, math.Min(1, (a-lo)/span))
			out[k] = uint8(math.Round(norm * MaxValue))
		}
		grid[r] = out
	}
	return grid
}

func valueAt(row []int32, idx int) float64 {
	if idx >= len(row) {
		return 0
	}
	return float64(row[idx])
}
