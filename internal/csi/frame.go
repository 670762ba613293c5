// Package csi provides the CSI frame model and the line parser that
// reconstructs frames from the radio module's textual CLI stream.
package csi

import (
	"fmt"
	"math"
)

// Frame is one CSI sample event reported by the radio.
// Frames are immutable once constructed and only the Parser builds them.
type Frame struct {
	DeviceTimestamp uint64  // Microseconds since device boot
	SignalStrength  int32   // RSSI in dBm
	raw             []int32 // Interleaved I/Q values: i0, q0, i1, q1, ...
}

// IQPair is the complex response of a single subcarrier
type IQPair struct {
	I int32
	Q int32
}

// NewFrame builds a frame from its three fields. The payload must hold an even
// number of values; it is copied so the caller may reuse its slice.
func NewFrame(timestamp uint64, signalStrength int32, raw []int32) (*Frame, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("odd payload length %d", len(raw))
	}
	values := make([]int32, len(raw))
	copy(values, raw)
	return &Frame{
		DeviceTimestamp: timestamp,
		SignalStrength:  signalStrength,
		raw:             values,
	}, nil
}

// Raw returns a copy of the interleaved I/Q payload in original order.
func (f *Frame) Raw() []int32 {
	out := make([]int32, len(f.raw))
	copy(out, f.raw)
	return out
}

// Len returns the number of raw payload values.
func (f *Frame) Len() int {
	return len(f.raw)
}

// Subcarriers returns the number of I/Q pairs carried by the frame.
func (f *Frame) Subcarriers() int {
	return len(f.raw) / 2
}

// IQPairs splits the payload into per-subcarrier pairs.
func (f *Frame) IQPairs() []IQPair {
	pairs := make([]IQPair, 0, f.Subcarriers())
	for k := 0; k+1 < len(f.raw); k += 2 {
		pairs = append(pairs, IQPair{I: f.raw[k], Q: f.raw[k+1]})
	}
	return pairs
}

// Amplitudes returns sqrt(I^2 + Q^2) for every subcarrier.
func (f *Frame) Amplitudes() []float64 {
	out := make([]float64, f.Subcarriers())
	for k := range out {
		out[k] = amplitude(f.raw[2*k], f.raw[2*k+1])
	}
	return out
}

// Phases returns atan2(Q, I) for every subcarrier, in radians.
func (f *Frame) Phases() []float64 {
	out := make([]float64, f.Subcarriers())
	for k := range out {
		out[k] = math.Atan2(float64(f.raw[2*k+1]), float64(f.raw[2*k]))
	}
	return out
}

// AmplitudeAt returns the amplitude of subcarrier k, or false when the frame
// does not carry that subcarrier.
func (f *Frame) AmplitudeAt(k int) (float64, bool) {
	if k < 0 || 2*k+1 >= len(f.raw) {
		return 0, false
	}
	return amplitude(f.raw[2*k], f.raw[2*k+1]), true
}

func amplitude(i, q int32) float64 {
	fi, fq := float64(i), float64(q)
	return math.Sqrt(fi*fi + fq*fq)
}

// ElapsedSeconds converts a frame's device timestamp into seconds relative to
// firstTS. Device clocks reset on reboot, so a timestamp earlier than firstTS
// yields zero instead of wrapping around.
func ElapsedSeconds(firstTS uint64, f *Frame) float64 {
	if f.DeviceTimestamp < firstTS {
		return 0
	}
	return float64(f.DeviceTimestamp-firstTS) / 1e6
}

// Sample is one point of an amplitude time series for a single subcarrier.
type Sample struct {
	Elapsed   float64 // Seconds since the start of the series
	Amplitude float64
}
