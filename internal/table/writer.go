package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"esp-csi-recorder/internal/csi"
)

// Writer streams frames into a table. The header is synthesised from the
// first frame written and emitted exactly once, before any row.
type Writer struct {
	file       *os.File // nil when writing to a caller-owned io.Writer
	csv        *csv.Writer
	payloadLen int
	rows       uint64
}

// Create creates or truncates the table file at path.
func Create(path string) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create table file: %w", err)
	}
	w := NewWriter(file)
	w.file = file
	return w, nil
}

// NewWriter wraps an existing writer. Close does not close w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// HeaderWritten reports whether the header row has been emitted.
func (w *Writer) HeaderWritten() bool {
	return w.payloadLen > 0
}

// Rows returns the number of data rows written.
func (w *Writer) Rows() uint64 {
	return w.rows
}

// WriteFrame appends one row, writing the header first if needed.
func (w *Writer) WriteFrame(f *csi.Frame) error {
	if !w.HeaderWritten() {
		if f.Len() == 0 {
			return fmt.Errorf("cannot derive header from empty payload")
		}
		if err := w.csv.Write(Header(f.Len())); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		w.payloadLen = f.Len()
	}

	if f.Len() != w.payloadLen {
		return fmt.Errorf("payload length %d does not match header (%d values)", f.Len(), w.payloadLen)
	}

	if err := w.csv.Write(EncodeRow(f)); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	w.rows++
	return nil
}

// Flush pushes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("failed to flush table: %w", err)
	}
	if w.file != nil {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync table file: %w", err)
		}
	}
	return nil
}

// Close flushes and, for files opened with Create, closes the file.
func (w *Writer) Close() error {
	flushErr := w.Flush()
	if w.file == nil {
		return flushErr
	}
	closeErr := w.file.Close()
	w.file = nil
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close table file: %w", closeErr)
	}
	return nil
}
