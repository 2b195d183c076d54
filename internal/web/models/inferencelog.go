package models

import (
	"fmt"
	"math"
	"time"

	"github.com/dmitrijs2005/mnistlab/internal/mnist"
)

// InferenceLog is one append-only record of a served prediction.
type InferenceLog struct {
	ID             string
	UserID         *string
	Username       string
	Task           string
	ModelVersion   string
	InputText      *string
	InputMeta      *InputMeta
	PredictedLabel int
	Confidence     float64
	Probabilities  mnist.Probabilities
	CreatedAt      time.Time
}

// NewInferenceLog derives the confidence from the distribution so the two
// can never disagree.
func NewInferenceLog(user *AccountSummary, task, modelVersion string, meta InputMeta, label int, probs mnist.Probabilities) (*InferenceLog, error) {
	l := &InferenceLog{
		Task:           task,
		ModelVersion:   modelVersion,
		InputMeta:      &meta,
		PredictedLabel: label,
		Probabilities:  probs,
	}
	if user != nil {
		id := user.ID
		l.UserID = &id
		l.Username = user.Username
	}
	if mnist.ValidLabel(label) && len(probs) == mnist.Classes {
		l.Confidence = probs[label]
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Validate checks the entry's internal consistency.
func (l *InferenceLog) Validate() error {
	if l.Task == "" || l.ModelVersion == "" {
		return fmt.Errorf("inference log needs task and model version")
	}
	if !mnist.ValidLabel(l.PredictedLabel) {
		return fmt.Errorf("predicted label %d out of range", l.PredictedLabel)
	}
	if err := l.Probabilities.Validate(); err != nil {
		return err
	}
	if math.Abs(l.Confidence-l.Probabilities[l.PredictedLabel]) > 1e-12 {
		return fmt.Errorf("confidence %v does not match p[%d]=%v", l.Confidence, l.PredictedLabel, l.Probabilities[l.PredictedLabel])
	}
	if l.InputMeta != nil {
		if err := l.InputMeta.Validate(); err != nil {
			return err
		}
	}
	return nil
}

type AccuracyFilter struct {
	Task   string
	Source Source
}

type Accuracy struct {
	Correct int
	Total   int
}

// Ratio is Correct/Total, or 0 when nothing was counted.
func (a Accuracy) Ratio() float64 {
	if a.Total == 0 {
		return 0
	}
	return float64(a.Correct) / float64(a.Total)
}

type Confusion struct {
	TrueLabel      int
	PredictedLabel int
	Count          int
}
