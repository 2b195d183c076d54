// Package mnist holds the data shapes shared by the inference service, the
// web front end and mnistctl: image geometry, the stored pixel encoding,
// the probability distribution and the IDX dataset reader.
package mnist

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	Rows    = 28
	Cols    = 28
	Pixels  = Rows * Cols
	Classes = 10
)

// Splits a corpus row may belong to.
const (
	SplitTrain = "train"
	SplitTest  = "test"
)

// ValidSplit reports whether s names a known split.
func ValidSplit(s string) bool {
	return s == SplitTrain || s == SplitTest
}

// EncodeVec packs pixels as consecutive little-endian float32 values.
func EncodeVec(pixels []float32) []byte {
	b := make([]byte, 4*len(pixels))
	for i, v := range pixels {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

// DecodeVec unpacks a buffer written by EncodeVec, checking it holds exactly
// rows*cols values.
func DecodeVec(b []byte, rows, cols int) ([]float32, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid geometry %dx%d", rows, cols)
	}
	n := rows * cols
	if len(b) != 4*n {
		return nil, fmt.Errorf("vector has %d bytes, want %d for %dx%d", len(b), 4*n, rows, cols)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, nil
}

// ToIntensities converts a [0,1] corpus image to the 0–255 scale the
// inference API expects. Values are truncated, not rounded.
func ToIntensities(pixels []float32) []float64 {
	out := make([]float64, len(pixels))
	for i, v := range pixels {
		out[i] = float64(clampByte(v * 255))
	}
	return out
}

// ToGray8 converts a [0,1] corpus image to 8-bit grayscale samples.
func ToGray8(pixels []float32) []uint8 {
	out := make([]uint8, len(pixels))
	for i, v := range pixels {
		out[i] = clampByte(v * 255)
	}
	return out
}

func clampByte(v float32) uint8 {
	switch {
	case v != v || v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
