// Package modeltest builds a fixed checkpoint and input image so tests in
// several packages can pin the classifier's output end to end.
package modeltest

import (
	"bytes"
	"encoding/binary"
	"encoding/json"

	"github.com/dmitrijs2005/mnistlab/internal/inference/model"
	"github.com/dmitrijs2005/mnistlab/internal/mnist"
)

// GoldenLabel and GoldenProbabilities are the output of Checkpoint on Seven.
// Any change to the forward pass or the checkpoint reader moves them.
const GoldenLabel = 5

var GoldenProbabilities = mnist.Probabilities{
	0.10862726, 0.07116745, 0.09569193, 0.05968219, 0.09882327,
	0.13629156, 0.11119413, 0.07699176, 0.12014475, 0.12138569,
}

// GoldenTolerance absorbs float32 rounding differences between platforms.
const GoldenTolerance = 1e-5

const seed = 20240611

// tensors are generated in this order from one stream; each value is
// (n-8)/scale with n in [0,16], so every weight is exact in float32.
var layout = []struct {
	name  string
	scale float32
}{
	{model.Conv1Weight, 16},
	{model.Conv1Bias, 64},
	{model.Conv2Weight, 64},
	{model.Conv2Bias, 64},
	{model.FC1Weight, 256},
	{model.FC1Bias, 64},
	{model.FC2Weight, 32},
	{model.FC2Bias, 64},
}

// Checkpoint returns a safetensors blob with deterministic weights.
func Checkpoint() []byte {
	s := uint32(seed)
	header := map[string]any{"__metadata__": map[string]string{"format": "pt"}}
	var data bytes.Buffer

	for _, l := range layout {
		shape := model.Shapes[l.name]
		n := 1
		for _, d := range shape {
			n *= d
		}

		vals := make([]float32, n)
		for i := range vals {
			s = s*1664525 + 1013904223
			vals[i] = float32(int((s>>16)%17)-8) / l.scale
		}

		begin := data.Len()
		_ = binary.Write(&data, binary.LittleEndian, vals)
		header[l.name] = map[string]any{
			"dtype":        "F32",
			"shape":        shape,
			"data_offsets": []int{begin, data.Len()},
		}
	}

	hb, _ := json.Marshal(header)
	var out bytes.Buffer
	_ = binary.Write(&out, binary.LittleEndian, uint64(len(hb)))
	out.Write(hb)
	out.Write(data.Bytes())
	return out.Bytes()
}

// Seven is a hand-drawn 7: a bar on rows 4-6 and a three pixel wide
// diagonal stroke down to row 23. Values are raw intensities.
func Seven() []float64 {
	px := make([]float64, mnist.Pixels)
	for y := 4; y < 7; y++ {
		for x := 6; x < 22; x++ {
			px[y*mnist.Cols+x] = 255
		}
	}
	for y := 7; y < 24; y++ {
		cx := 20 - (y-7)*9/16
		for x := cx - 1; x <= cx+1; x++ {
			px[y*mnist.Cols+x] = 255
		}
	}
	return px
}
