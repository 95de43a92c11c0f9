// Package rank picks the top-1 class from a model output vector.
package rank

import (
	"errors"
	"fmt"
	"math"
)

// ErrEmptyVector is returned when there is nothing to rank, or when the
// vector and the label set disagree in length.
var ErrEmptyVector = errors.New("prediction vector is empty or misaligned with labels")

// Prediction is the top-ranked class and its probability.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float32 `json:"probability"`
}

// Top returns the label with the highest score. Ties go to the lowest index.
// NaN scores are never picked; a vector of only NaNs is ErrEmptyVector.
func Top(vec []float32, labels []string) (Prediction, error) {
	if len(vec) == 0 {
		return Prediction{}, ErrEmptyVector
	}
	if len(vec) != len(labels) {
		return Prediction{}, fmt.Errorf("%w: %d scores, %d labels", ErrEmptyVector, len(vec), len(labels))
	}

	maxIdx := -1
	var maxVal float32
	for i, val := range vec {
		if math.IsNaN(float64(val)) {
			continue
		}
		if maxIdx < 0 || val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}
	if maxIdx < 0 {
		return Prediction{}, fmt.Errorf("%w: every score is NaN", ErrEmptyVector)
	}

	return Prediction{Label: labels[maxIdx], Probability: maxVal}, nil
}
