// Package privacy implements the differential-privacy substrate of the
// Forge pipeline: a Laplace noise engine and a per-session budget ledger
// that wraps stage outputs into privacy envelopes.
package privacy

import (
	"math"
	"math/rand"
	"sync"
)

// NoiseEngine draws calibrated Laplace noise. It is stateless apart from
// its source of randomness, which is injected so tests can seed it for
// reproducible draws.
type NoiseEngine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewNoiseEngine creates a noise engine backed by the given source.
// Pass rand.NewSource(seed) for deterministic tests.
func NewNoiseEngine(src rand.Source) *NoiseEngine {
	return &NoiseEngine{rng: rand.New(src)}
}

// Sample draws one value from Laplace(0, sensitivity/epsilon).
// Returns InvalidParameterError if epsilon <= 0 or sensitivity < 0.
//
// Each call is an independent draw; callers perturbing a vector must call
// Sample once per component, never reuse a draw across components.
func (n *NoiseEngine) Sample(sensitivity, epsilon float64) (float64, error) {
	if epsilon <= 0 || sensitivity < 0 {
		return 0, &InvalidParameterError{Epsilon: epsilon, Sensitivity: sensitivity}
	}

	scale := sensitivity / epsilon

	// Inverse-CDF transform: u uniform on (-1/2, 1/2),
	// noise = -scale * sign(u) * ln(1 - 2|u|).
	n.mu.Lock()
	u := n.rng.Float64() - 0.5
	n.mu.Unlock()

	return -scale * sign(u) * math.Log(1-2*math.Abs(u)), nil
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
