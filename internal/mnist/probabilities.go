package mnist

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// SumTolerance is how far a distribution may drift from 1.
const SumTolerance = 1e-3

// Probabilities is a per-class distribution indexed by label. On the wire it
// is an object keyed by the label as text: {"0": 0.01, ..., "9": 0.9}.
type Probabilities []float64

func (p Probabilities) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, len(p))
	for i, v := range p {
		m[strconv.Itoa(i)] = v
	}
	return json.Marshal(m)
}

func (p *Probabilities) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = nil
		return nil
	}

	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}

	out := make(Probabilities, len(m))
	for k, v := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(m) {
			return fmt.Errorf("unexpected class key %q", k)
		}
		out[i] = v
	}
	*p = out
	return nil
}

// Argmax returns the most probable label; ties resolve to the lowest label.
func (p Probabilities) Argmax() int {
	best := 0
	for i := 1; i < len(p); i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return best
}

func (p Probabilities) Sum() float64 {
	var s float64
	for _, v := range p {
		s += v
	}
	return s
}

// Validate checks that p is a Classes-sized distribution summing to 1.
func (p Probabilities) Validate() error {
	if len(p) != Classes {
		return fmt.Errorf("distribution has %d classes, want %d", len(p), Classes)
	}
	for i, v := range p {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("probability for class %d out of range: %v", i, v)
		}
	}
	if math.Abs(p.Sum()-1) > SumTolerance {
		return errors.New("distribution does not sum to 1")
	}
	return nil
}

// ValidLabel reports whether label is a class index.
func ValidLabel(label int) bool {
	return label >= 0 && label < Classes
}
