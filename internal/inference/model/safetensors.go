package model

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

const maxHeaderLen = 100 << 20

var ErrBadCheckpoint = errors.New("bad checkpoint")

type tensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// tensor is a decoded F32 tensor.
type tensor struct {
	shape []int
	data  []float32
}

// parseSafetensors decodes every F32 tensor in a safetensors blob:
// an 8-byte little-endian header length, a JSON header and the raw data.
func parseSafetensors(b []byte) (map[string]tensor, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("%w: file too short", ErrBadCheckpoint)
	}
	n := binary.LittleEndian.Uint64(b[:8])
	if n == 0 || n > maxHeaderLen || n > uint64(len(b)-8) {
		return nil, fmt.Errorf("%w: header length %d", ErrBadCheckpoint, n)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b[8:8+n], &raw); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrBadCheckpoint, err)
	}

	data := b[8+n:]
	out := make(map[string]tensor, len(raw))
	for name, msg := range raw {
		if name == "__metadata__" {
			continue
		}

		var info tensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %v", ErrBadCheckpoint, name, err)
		}
		if info.DType != "F32" {
			return nil, fmt.Errorf("%w: tensor %s has dtype %s, want F32", ErrBadCheckpoint, name, info.DType)
		}

		begin, end := info.DataOffsets[0], info.DataOffsets[1]
		if begin < 0 || end < begin || end > int64(len(data)) {
			return nil, fmt.Errorf("%w: tensor %s offsets [%d,%d) outside data", ErrBadCheckpoint, name, begin, end)
		}

		count := 1
		for _, d := range info.Shape {
			if d < 0 {
				return nil, fmt.Errorf("%w: tensor %s has negative dim", ErrBadCheckpoint, name)
			}
			count *= d
		}
		if int64(count)*4 != end-begin {
			return nil, fmt.Errorf("%w: tensor %s has %d bytes for shape %v", ErrBadCheckpoint, name, end-begin, info.Shape)
		}

		vals := make([]float32, count)
		chunk := data[begin:end]
		for i := range vals {
			vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(chunk[4*i:]))
		}
		out[name] = tensor{shape: info.Shape, data: vals}
	}

	return out, nil
}

func (t tensor) hasShape(want ...int) bool {
	if len(t.shape) != len(want) {
		return false
	}
	for i := range want {
		if t.shape[i] != want[i] {
			return false
		}
	}
	return true
}
