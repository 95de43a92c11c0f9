package rank

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var flowers = []string{"Daisy", "Dandelion", "Rose", "Sunflower", "Tulip"}

func TestTop(t *testing.T) {
	tests := []struct {
		name   string
		vec    []float32
		labels []string
		want   Prediction
	}{
		{
			name:   "five class distribution",
			vec:    []float32{0.1, 0.05, 0.7, 0.1, 0.05},
			labels: flowers,
			want:   Prediction{Label: "Rose", Probability: 0.7},
		},
		{
			name:   "tie goes to lowest index",
			vec:    []float32{0.5, 0.5},
			labels: []string{"A", "B"},
			want:   Prediction{Label: "A", Probability: 0.5},
		},
		{
			name:   "maximum at the end",
			vec:    []float32{0.0, 0.1, 0.2, 0.3, 0.4},
			labels: flowers,
			want:   Prediction{Label: "Tulip", Probability: 0.4},
		},
		{
			name:   "single class",
			vec:    []float32{1},
			labels: []string{"Daisy"},
			want:   Prediction{Label: "Daisy", Probability: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Top(tt.vec, tt.labels)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTop_Errors(t *testing.T) {
	_, err := Top(nil, flowers)
	assert.ErrorIs(t, err, ErrEmptyVector)

	_, err = Top([]float32{}, nil)
	assert.ErrorIs(t, err, ErrEmptyVector)

	_, err = Top([]float32{0.2, 0.8}, flowers)
	assert.ErrorIs(t, err, ErrEmptyVector)
}

func TestTop_NaNScoresAreSkipped(t *testing.T) {
	nan := float32(math.NaN())

	got, err := Top([]float32{nan, 0.2, 0.8}, []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, Prediction{Label: "C", Probability: 0.8}, got)

	got, err = Top([]float32{0.3, nan, 0.1}, []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, Prediction{Label: "A", Probability: 0.3}, got)

	_, err = Top([]float32{nan, nan}, []string{"A", "B"})
	assert.ErrorIs(t, err, ErrEmptyVector)
}

func TestTop_PermutationKeepsPairing(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	vec := []float32{0.1, 0.05, 0.7, 0.1, 0.05}
	want, err := Top(vec, flowers)
	require.NoError(t, err)

	for range 50 {
		perm := rng.Perm(len(vec))
		pVec := make([]float32, len(vec))
		pLabels := make([]string, len(vec))
		for i, j := range perm {
			pVec[i] = vec[j]
			pLabels[i] = flowers[j]
		}
		got, err := Top(pVec, pLabels)
		require.NoError(t, err)
		assert.Equal(t, want, got, "permutation %v", perm)
	}
}
