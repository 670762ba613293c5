// Package device handles the serial link to the ESP32 CSI radio module:
// opening the port with fixed framing, resetting the board and sending CLI
// configuration commands.
package device

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the rate the esp-csi-cli firmware listens on.
const DefaultBaudRate = 115200

// Port is the subset of serial.Port used by the recorder.
type Port interface {
	io.ReadWriteCloser
	SetDTR(dtr bool) error
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

// Opener opens a named port. Tests substitute in-memory ports.
type Opener func(name string, baudRate int, readTimeout time.Duration) (Port, error)

// Open opens a serial port with 8 data bits, no parity, one stop bit and the
// given read timeout.
func Open(name string, baudRate int, readTimeout time.Duration) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return port, nil
}

// ReadOutcome classifies a failed read.
type ReadOutcome int

const (
	ReadFatal      ReadOutcome = iota // Transport failure, capture must stop
	ReadTimeout                       // No data within the read timeout
	ReadWouldBlock                    // Non-blocking read had nothing to return
)

// ClassifyReadError tells steady-state read conditions apart from real
// transport failures.
func ClassifyReadError(err error) ReadOutcome {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ReadTimeout
	}
	// syscall.Errno reports Timeout() for EAGAIN too, so check it first
	if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
		return ReadWouldBlock
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return ReadTimeout
	}
	return ReadFatal
}
