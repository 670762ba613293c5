// Package devicetest provides an in-memory serial port for tests.
package devicetest

import (
	"bytes"
	"sync"
	"time"

	"esp-csi-recorder/internal/device"
)

// Port replays scripted chunks of device output and records everything
// written to it. Once the script is exhausted reads behave like timeouts, or
// return Err when it is set.
type Port struct {
	mu          sync.Mutex
	chunks      [][]byte
	written     bytes.Buffer
	readTimeout time.Duration

	Err         error // Returned by Read after the script runs out
	DTR         bool
	InputResets int
	Closed      bool
}

var _ device.Port = (*Port)(nil)

// NewPort creates a port that will return each chunk from one Read call.
func NewPort(chunks ...string) *Port {
	p := &Port{readTimeout: time.Millisecond}
	for _, c := range chunks {
		p.chunks = append(p.chunks, []byte(c))
	}
	return p
}

// Opener returns a device.Opener handing out p.
func (p *Port) Opener() device.Opener {
	return func(string, int, time.Duration) (device.Port, error) {
		return p, nil
	}
}

func (p *Port) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if len(p.chunks) == 0 {
		err, timeout := p.Err, p.readTimeout
		p.mu.Unlock()
		if err != nil {
			return 0, err
		}
		time.Sleep(timeout)
		return 0, nil
	}
	defer p.mu.Unlock()

	n := copy(buf, p.chunks[0])
	if n < len(p.chunks[0]) {
		p.chunks[0] = p.chunks[0][n:]
	} else {
		p.chunks = p.chunks[1:]
	}
	return n, nil
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

func (p *Port) SetDTR(dtr bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DTR = dtr
	return nil
}

func (p *Port) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.InputResets++
	return nil
}

func (p *Port) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = t
	return nil
}

// Written returns everything written to the port so far.
func (p *Port) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

// IsClosed reports whether Close was called.
func (p *Port) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Closed
}
