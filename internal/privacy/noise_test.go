package privacy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/sentinel/internal/gradients"
)

func testSet() gradients.TensorSet {
	return gradients.TensorSet{
		{Name: "layer1", Shape: []int{3}, Values: []float64{0.1, 0.2, 0.3}},
		{Name: "layer2", Shape: []int{2, 2}, Values: []float64{1, 2, 3, 4}},
	}
}

func TestAddNoisePreservesShape(t *testing.T) {
	tests := []struct {
		name   string
		params NoiseParams
	}{
		{
			name:   "laplace",
			params: NoiseParams{Mechanism: MechanismLaplace, Epsilon: 1.0, Sensitivity: 1.0},
		},
		{
			name:   "gaussian",
			params: NoiseParams{Mechanism: MechanismGaussian, Epsilon: 1.0, Sensitivity: 1.0, Delta: 1e-5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			injector := NewNoiseInjector()
			in := testSet()

			out, err := injector.AddNoise(in, tt.params)
			require.NoError(t, err)
			require.Len(t, out, len(in))
			for i := range in {
				assert.Equal(t, in[i].Name, out[i].Name)
				assert.Equal(t, in[i].Shape, out[i].Shape)
				assert.Len(t, out[i].Values, len(in[i].Values))
			}
		})
	}
}

func TestAddNoiseNotIdempotent(t *testing.T) {
	injector := NewNoiseInjector()
	params := NoiseParams{Mechanism: MechanismLaplace, Epsilon: 1.0, Sensitivity: 1.0}
	in := testSet()

	first, err := injector.AddNoise(in, params)
	require.NoError(t, err)
	second, err := injector.AddNoise(in, params)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.NotEqual(t, in, first)
}

func TestAddNoiseDoesNotMutateInput(t *testing.T) {
	injector := NewNoiseInjector()
	in := testSet()
	original := in.Clone()

	_, err := injector.AddNoise(in, NoiseParams{Mechanism: MechanismGaussian, Epsilon: 0.5, Sensitivity: 1.0, Delta: 1e-5})
	require.NoError(t, err)
	assert.Equal(t, original, in)
}

func TestNoiseScalesInverselyWithEpsilon(t *testing.T) {
	injector := NewNoiseInjector()
	zeros := gradients.TensorSet{
		{Name: "flat", Shape: []int{10000}, Values: make([]float64, 10000)},
	}

	meanAbs := func(epsilon float64) float64 {
		out, err := injector.AddNoise(zeros, NoiseParams{Mechanism: MechanismLaplace, Epsilon: epsilon, Sensitivity: 1.0})
		require.NoError(t, err)
		var total float64
		for _, v := range out[0].Values {
			total += math.Abs(v)
		}
		return total / float64(len(out[0].Values))
	}

	tight := meanAbs(10.0)
	loose := meanAbs(0.1)
	assert.Greater(t, loose, tight, "smaller epsilon must produce larger noise")
}

func TestAddNoiseParamValidation(t *testing.T) {
	tests := []struct {
		name    string
		params  NoiseParams
		wantErr error
	}{
		{
			name:    "zero epsilon",
			params:  NoiseParams{Mechanism: MechanismLaplace, Epsilon: 0, Sensitivity: 1.0},
			wantErr: ErrInvalidEpsilon,
		},
		{
			name:    "negative epsilon",
			params:  NoiseParams{Mechanism: MechanismLaplace, Epsilon: -1, Sensitivity: 1.0},
			wantErr: ErrInvalidEpsilon,
		},
		{
			name:    "negative sensitivity",
			params:  NoiseParams{Mechanism: MechanismLaplace, Epsilon: 1.0, Sensitivity: -0.5},
			wantErr: ErrInvalidSensitivity,
		},
		{
			name:    "gaussian missing delta",
			params:  NoiseParams{Mechanism: MechanismGaussian, Epsilon: 1.0, Sensitivity: 1.0},
			wantErr: ErrInvalidDelta,
		},
		{
			name:    "gaussian delta too large",
			params:  NoiseParams{Mechanism: MechanismGaussian, Epsilon: 1.0, Sensitivity: 1.0, Delta: 1.5},
			wantErr: ErrInvalidDelta,
		},
		{
			name:    "unknown mechanism",
			params:  NoiseParams{Mechanism: "exponential", Epsilon: 1.0, Sensitivity: 1.0},
			wantErr: ErrUnknownMechanism,
		},
	}

	injector := NewNoiseInjector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := injector.AddNoise(testSet(), tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
