package heatmap

import "fmt"

// History is a fixed-capacity ring of raw I/Q rows; pushing into a full ring
// evicts the oldest row. It has a single owner and no locking.
type History struct {
	rows  [][]int32
	start int
	size  int
}

// NewHistory creates a ring holding at most capacity rows.
func NewHistory(capacity int) (*History, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid history capacity: %d", capacity)
	}
	return &History{rows: make([][]int32, capacity)}, nil
}

// Push appends a row, evicting the oldest one when full.
func (h *History) Push(row []int32) {
	idx := (h.start + h.size) % len(h.rows)
	h.rows[idx] = row
	if h.size < len(h.rows) {
		h.size++
		return
	}
	h.start = (h.start + 1) % len(h.rows)
}

// Len returns the number of stored rows.
func (h *History) Len() int {
	return h.size
}

// Cap returns the ring capacity.
func (h *History) Cap() int {
	return len(h.rows)
}

// Rows returns the stored rows, oldest first.
func (h *History) Rows() [][]int32 {
	out := make([][]int32, h.size)
	for i := range out {
		out[i] = h.rows[(h.start+i)%len(h.rows)]
	}
	return out
}

// Snapshot normalises the current contents into a fresh grid.
func (h *History) Snapshot(subcarriers int) Grid {
	return Normalize(h.Rows(), subcarriers)
}
