package models

import "github.com/dmitrijs2005/mnistlab/internal/mnist"

// Sample is one labelled reference image with pixels in [0,1].
type Sample struct {
	ID     int64
	Split  string
	Label  int
	Pixels []float32
	Rows   int
	Cols   int
}

func (s *Sample) Vec() []byte {
	return mnist.EncodeVec(s.Pixels)
}

// GridSlot is one position of the quick-test grid. Sample is nil when the
// corpus has no image for the label.
type GridSlot struct {
	Label  int
	Sample *Sample
}
