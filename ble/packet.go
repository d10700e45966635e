// Package ble provides BLE Central functionality for the balance board.
package ble

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// PacketSize is the expected size of a tilt notification in bytes.
const PacketSize = 8

// Sample is one decoded tilt reading from the board, in degrees.
// On the wire both fields are little-endian float32: [pitch, roll].
type Sample struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

var (
	// ErrInvalidPacketSize is returned when the notification is not 8 bytes.
	ErrInvalidPacketSize = errors.New("invalid packet size: expected 8 bytes")
	// ErrMalformedSample is returned when a value decodes to NaN or Inf.
	ErrMalformedSample = errors.New("malformed sample")
)

// ParseSample decodes an 8-byte notification into a Sample.
func ParseSample(data []byte) (Sample, error) {
	if len(data) != PacketSize {
		return Sample{}, fmt.Errorf("%w, got %d", ErrInvalidPacketSize, len(data))
	}

	pitch := math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))
	roll := math.Float32frombits(binary.LittleEndian.Uint32(data[4:8]))

	if !finite(pitch) || !finite(roll) {
		return Sample{}, fmt.Errorf("%w: pitch=%v roll=%v", ErrMalformedSample, pitch, roll)
	}

	return Sample{Pitch: float64(pitch), Roll: float64(roll)}, nil
}

// EncodeSample is the inverse of ParseSample. Values are narrowed to float32.
func EncodeSample(s Sample) []byte {
	buf := make([]byte, PacketSize)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(float32(s.Pitch)))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(float32(s.Roll)))
	return buf
}

func finite(f float32) bool {
	v := float64(f)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// String returns a human-readable representation of the sample.
func (s Sample) String() string {
	return fmt.Sprintf("pitch=%.2f° roll=%.2f°", s.Pitch, s.Roll)
}
