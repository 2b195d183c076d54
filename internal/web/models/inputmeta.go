package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/mnistlab/internal/mnist"
)

type Source string

const (
	SourceGrid   Source = "mnist_grid"
	SourceUpload Source = "upload"
)

var ErrInvalidMeta = errors.New("invalid input metadata")

// InputMeta describes where a prediction's input came from. It has exactly
// two shapes:
//
//	{"source": "mnist_grid", "true_label": 3, "correct": false}
//	{"source": "upload", "true_label": null}
//
// Use GridMeta or UploadMeta to build one.
type InputMeta struct {
	source    Source
	trueLabel int
	correct   bool
}

func GridMeta(trueLabel int, correct bool) InputMeta {
	return InputMeta{source: SourceGrid, trueLabel: trueLabel, correct: correct}
}

func UploadMeta() InputMeta {
	return InputMeta{source: SourceUpload}
}

func (m InputMeta) Source() Source { return m.source }

// TrueLabel is known only for grid inputs.
func (m InputMeta) TrueLabel() (int, bool) {
	return m.trueLabel, m.source == SourceGrid
}

// Correct is known only for grid inputs.
func (m InputMeta) Correct() (bool, bool) {
	return m.correct, m.source == SourceGrid
}

func (m InputMeta) Validate() error {
	switch m.source {
	case SourceGrid:
		if !mnist.ValidLabel(m.trueLabel) {
			return fmt.Errorf("%w: true label %d", ErrInvalidMeta, m.trueLabel)
		}
	case SourceUpload:
	default:
		return fmt.Errorf("%w: source %q", ErrInvalidMeta, m.source)
	}
	return nil
}

type gridWire struct {
	Source    Source `json:"source"`
	TrueLabel int    `json:"true_label"`
	Correct   bool   `json:"correct"`
}

type uploadWire struct {
	Source    Source `json:"source"`
	TrueLabel *int   `json:"true_label"`
}

func (m InputMeta) MarshalJSON() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.source == SourceGrid {
		return json.Marshal(gridWire{Source: m.source, TrueLabel: m.trueLabel, Correct: m.correct})
	}
	return json.Marshal(uploadWire{Source: m.source})
}

func (m *InputMeta) UnmarshalJSON(b []byte) error {
	var raw struct {
		Source    Source `json:"source"`
		TrueLabel *int   `json:"true_label"`
		Correct   *bool  `json:"correct"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMeta, err)
	}

	switch raw.Source {
	case SourceGrid:
		if raw.TrueLabel == nil || raw.Correct == nil {
			return fmt.Errorf("%w: grid input needs true_label and correct", ErrInvalidMeta)
		}
		*m = GridMeta(*raw.TrueLabel, *raw.Correct)
	case SourceUpload:
		if raw.TrueLabel != nil || raw.Correct != nil {
			return fmt.Errorf("%w: upload input has no ground truth", ErrInvalidMeta)
		}
		*m = UploadMeta()
	default:
		return fmt.Errorf("%w: source %q", ErrInvalidMeta, raw.Source)
	}
	return m.Validate()
}

func (m InputMeta) String() string {
	if l, ok := m.TrueLabel(); ok {
		return fmt.Sprintf("%s true=%d correct=%t", m.source, l, m.correct)
	}
	return string(m.source)
}
