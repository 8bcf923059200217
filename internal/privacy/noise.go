// Package privacy holds the contributor-facing privacy primitives: calibrated
// noise injection, symmetric payload sealing, and the commit-reveal scheme
// binding a contributor to the payload they later disclose.
package privacy

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/theblitlabs/sentinel/internal/gradients"
)

// Mechanism selects the noise distribution.
type Mechanism string

const (
	MechanismLaplace  Mechanism = "laplace"
	MechanismGaussian Mechanism = "gaussian"
)

var (
	ErrInvalidEpsilon     = errors.New("epsilon must be positive")
	ErrInvalidSensitivity = errors.New("sensitivity must be positive")
	ErrInvalidDelta       = errors.New("delta must be in (0, 1)")
	ErrUnknownMechanism   = errors.New("unknown noise mechanism")
)

// NoiseParams calibrates the injected noise. Delta is only consulted by the
// gaussian mechanism.
type NoiseParams struct {
	Mechanism   Mechanism
	Epsilon     float64
	Sensitivity float64
	Delta       float64
}

func (p NoiseParams) validate() error {
	if p.Epsilon <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidEpsilon, p.Epsilon)
	}
	if p.Sensitivity <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidSensitivity, p.Sensitivity)
	}
	switch p.Mechanism {
	case MechanismLaplace:
	case MechanismGaussian:
		if p.Delta <= 0 || p.Delta >= 1 {
			return fmt.Errorf("%w: got %v", ErrInvalidDelta, p.Delta)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMechanism, p.Mechanism)
	}
	return nil
}

// NoiseInjector perturbs gradient tensors before they leave the contributor.
// Not safe for concurrent use; each contributor pipeline owns its own injector.
type NoiseInjector struct {
	rng *rand.Rand
}

func NewNoiseInjector() *NoiseInjector {
	return &NoiseInjector{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// AddNoise returns a new tensor set with per-element noise added. The input
// set is never mutated and the output preserves tensor count and shapes.
func (n *NoiseInjector) AddNoise(set gradients.TensorSet, p NoiseParams) (gradients.TensorSet, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}

	out := set.Clone()
	switch p.Mechanism {
	case MechanismLaplace:
		scale := p.Sensitivity / p.Epsilon
		for i := range out {
			for j := range out[i].Values {
				out[i].Values[j] += n.laplace(scale)
			}
		}
	case MechanismGaussian:
		sigma := math.Sqrt(2*math.Log(1.25/p.Delta)) * p.Sensitivity / p.Epsilon
		for i := range out {
			for j := range out[i].Values {
				out[i].Values[j] += n.rng.NormFloat64() * sigma
			}
		}
	}
	return out, nil
}

// laplace samples Laplace(0, scale) by inverse transform.
func (n *NoiseInjector) laplace(scale float64) float64 {
	u := n.rng.Float64() - 0.5
	return -scale * math.Copysign(1.0, u) * math.Log(1-2*math.Abs(u))
}
