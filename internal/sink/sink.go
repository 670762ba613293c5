// Package sink forwards accepted frames to an external store used for
// offline inspection. Sinks are best effort: the recorder logs their errors
// and keeps capturing.
package sink

import (
	"esp-csi-recorder/internal/csi"
)

// Sink receives every frame the recorder accepts.
type Sink interface {
	LogFrame(index uint64, f *csi.Frame) error
	Flush() error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) LogFrame(uint64, *csi.Frame) error { return nil }
func (Nop) Flush() error                      { return nil }
func (Nop) Close() error                      { return nil }

// Record is the JSON document published for one frame.
type Record struct {
	Session         string    `json:"session,omitempty"`
	Frame           uint64    `json:"frame"`
	DeviceTimestamp uint64    `json:"device_timestamp_us"`
	SignalStrength  int32     `json:"rssi"`
	Raw             []int32   `json:"raw_iq"`
	Amplitudes      []float64 `json:"amplitudes"`
	Phases          []float64 `json:"phases"`
}

// NewRecord derives the published document from a frame.
func NewRecord(session string, index uint64, f *csi.Frame) Record {
	return Record{
		Session:         session,
		Frame:           index,
		DeviceTimestamp: f.DeviceTimestamp,
		SignalStrength:  f.SignalStrength,
		Raw:             f.Raw(),
		Amplitudes:      f.Amplitudes(),
		Phases:          f.Phases(),
	}
}
