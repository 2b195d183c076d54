// Package model implements the digit classifier: a small convolutional
// network whose trained weights are read once from a safetensors checkpoint.
//
// Architecture, in order:
//
//	conv 3×3 1→16 pad 1, ReLU, max-pool 2×2
//	conv 3×3 16→32 pad 1, ReLU, max-pool 2×2
//	flatten (channel, row, column) → 1568
//	linear 1568→128, ReLU
//	linear 128→10, softmax
//
// A loaded Model is immutable and safe for concurrent use.
package model

import (
	"fmt"
	"math"
	"os"

	"github.com/dmitrijs2005/mnistlab/internal/mnist"
)

const (
	c1     = 16
	c2     = 32
	k      = 3
	h1     = mnist.Rows / 2 // after first pool
	h2     = mnist.Rows / 4 // after second pool
	flat   = c2 * h2 * h2
	hidden = 128
)

// Checkpoint tensor names, as saved by the training code's state dict.
const (
	Conv1Weight = "net.0.weight"
	Conv1Bias   = "net.0.bias"
	Conv2Weight = "net.3.weight"
	Conv2Bias   = "net.3.bias"
	FC1Weight   = "net.7.weight"
	FC1Bias     = "net.7.bias"
	FC2Weight   = "net.9.weight"
	FC2Bias     = "net.9.bias"
)

// Shapes lists the expected shape of every tensor the model needs.
var Shapes = map[string][]int{
	Conv1Weight: {c1, 1, k, k},
	Conv1Bias:   {c1},
	Conv2Weight: {c2, c1, k, k},
	Conv2Bias:   {c2},
	FC1Weight:   {hidden, flat},
	FC1Bias:     {hidden},
	FC2Weight:   {mnist.Classes, hidden},
	FC2Bias:     {mnist.Classes},
}

type Model struct {
	conv1W, conv1B []float32
	conv2W, conv2B []float32
	fc1W, fc1B     []float32
	fc2W, fc2B     []float32
}

// Load reads and validates a checkpoint from disk.
func Load(path string) (*Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return FromSafetensors(b)
}

// FromSafetensors builds a model from an in-memory checkpoint. A missing
// tensor or one with the wrong shape is an error.
func FromSafetensors(b []byte) (*Model, error) {
	ts, err := parseSafetensors(b)
	if err != nil {
		return nil, err
	}

	get := func(name string) ([]float32, error) {
		t, ok := ts[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing tensor %s", ErrBadCheckpoint, name)
		}
		if !t.hasShape(Shapes[name]...) {
			return nil, fmt.Errorf("%w: tensor %s has shape %v, want %v", ErrBadCheckpoint, name, t.shape, Shapes[name])
		}
		return t.data, nil
	}

	m := &Model{}
	for name, dst := range map[string]*[]float32{
		Conv1Weight: &m.conv1W, Conv1Bias: &m.conv1B,
		Conv2Weight: &m.conv2W, Conv2Bias: &m.conv2B,
		FC1Weight: &m.fc1W, FC1Bias: &m.fc1B,
		FC2Weight: &m.fc2W, FC2Bias: &m.fc2B,
	} {
		if *dst, err = get(name); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Predict classifies a 28×28 image given as 784 raw intensities in 0–255,
// row-major. It returns the most probable label (lowest on ties) and the
// full distribution.
func (m *Model) Predict(pixels []float64) (int, mnist.Probabilities, error) {
	if len(pixels) != mnist.Pixels {
		return 0, nil, fmt.Errorf("got %d pixels, want %d", len(pixels), mnist.Pixels)
	}

	x := make([]float32, mnist.Pixels)
	for i, v := range pixels {
		x[i] = float32(v / 255.0)
	}

	a := conv3x3(x, 1, mnist.Rows, m.conv1W, m.conv1B, c1)
	relu(a)
	a = maxPool2(a, c1, mnist.Rows)

	a = conv3x3(a, c1, h1, m.conv2W, m.conv2B, c2)
	relu(a)
	a = maxPool2(a, c2, h1)

	a = linear(a, m.fc1W, m.fc1B, hidden)
	relu(a)
	logits := linear(a, m.fc2W, m.fc2B, mnist.Classes)

	probs := softmax(logits)
	return probs.Argmax(), probs, nil
}

// conv3x3 computes a same-padded 3×3 convolution over a square in×n×n input.
func conv3x3(in []float32, cin, n int, w, b []float32, cout int) []float32 {
	out := make([]float32, cout*n*n)
	for o := 0; o < cout; o++ {
		plane := out[o*n*n : (o+1)*n*n]
		for i := range plane {
			plane[i] = b[o]
		}
		for c := 0; c < cin; c++ {
			src := in[c*n*n : (c+1)*n*n]
			kw := w[(o*cin+c)*k*k : (o*cin+c+1)*k*k]
			for y := 0; y < n; y++ {
				for x := 0; x < n; x++ {
					var s float32
					for dy := 0; dy < k; dy++ {
						yy := y + dy - 1
						if yy < 0 || yy >= n {
							continue
						}
						for dx := 0; dx < k; dx++ {
							xx := x + dx - 1
							if xx < 0 || xx >= n {
								continue
							}
							s += kw[dy*k+dx] * src[yy*n+xx]
						}
					}
					plane[y*n+x] += s
				}
			}
		}
	}
	return out
}

func relu(v []float32) {
	for i, x := range v {
		if x < 0 {
			v[i] = 0
		}
	}
}

// maxPool2 halves each spatial dimension of a c×n×n tensor.
func maxPool2(in []float32, c, n int) []float32 {
	m := n / 2
	out := make([]float32, c*m*m)
	for ch := 0; ch < c; ch++ {
		src := in[ch*n*n:]
		for y := 0; y < m; y++ {
			for x := 0; x < m; x++ {
				i := (2*y)*n + 2*x
				best := src[i]
				for _, v := range [3]float32{src[i+1], src[i+n], src[i+n+1]} {
					if v > best {
						best = v
					}
				}
				out[ch*m*m+y*m+x] = best
			}
		}
	}
	return out
}

// linear computes w·in + b with w stored row-major as [out][len(in)].
func linear(in, w, b []float32, out int) []float32 {
	res := make([]float32, out)
	n := len(in)
	for o := 0; o < out; o++ {
		row := w[o*n : (o+1)*n]
		s := b[o]
		for i, v := range in {
			s += row[i] * v
		}
		res[o] = s
	}
	return res
}

func softmax(logits []float32) mnist.Probabilities {
	maxL := float64(logits[0])
	for _, l := range logits[1:] {
		maxL = math.Max(maxL, float64(l))
	}
	p := make(mnist.Probabilities, len(logits))
	var sum float64
	for i, l := range logits {
		p[i] = math.Exp(float64(l) - maxL)
		sum += p[i]
	}
	for i := range p {
		p[i] /= sum
	}
	return p
}
