package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvolutionStop(t *testing.T) {
	cases := []struct {
		name       string
		cycle, max int
		prev, best float64
		threshold  float64
		elapsed    time.Duration
		budget     time.Duration
		wantReason StopReason
		wantStop   bool
	}{
		{
			name:  "first cycle never converges",
			cycle: 1, max: 3,
			prev: 0, best: 0.001, threshold: 0.01,
			wantStop: false,
		},
		{
			name:  "small improvement converges",
			cycle: 2, max: 3,
			prev: 0.50, best: 0.505, threshold: 0.01,
			wantReason: StopConverged, wantStop: true,
		},
		{
			name:  "regression converges",
			cycle: 2, max: 3,
			prev: 0.6, best: 0.5, threshold: 0.01,
			wantReason: StopConverged, wantStop: true,
		},
		{
			name:  "real improvement continues",
			cycle: 2, max: 3,
			prev: 0.5, best: 0.6, threshold: 0.01,
			wantStop: false,
		},
		{
			name:  "cycle over time budget stops",
			cycle: 1, max: 3,
			prev: 0, best: 0.9, threshold: 0.01,
			elapsed: 2 * time.Second, budget: time.Second,
			wantReason: StopTimeBudget, wantStop: true,
		},
		{
			name:  "zero budget disables the time check",
			cycle: 1, max: 3,
			prev: 0, best: 0.9, threshold: 0.01,
			elapsed: time.Hour, budget: 0,
			wantStop: false,
		},
		{
			name:  "cycle cap stops even without convergence",
			cycle: 3, max: 3,
			prev: 0.1, best: 0.9, threshold: 0.01,
			wantReason: StopMaxCycles, wantStop: true,
		},
		{
			name:  "single cycle cap stops immediately",
			cycle: 1, max: 1,
			prev: 0, best: 0.9, threshold: 0.01,
			wantReason: StopMaxCycles, wantStop: true,
		},
		{
			name:  "convergence reported before cycle cap",
			cycle: 3, max: 3,
			prev: 0.5, best: 0.505, threshold: 0.01,
			wantReason: StopConverged, wantStop: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason, stop := evolutionStop(tc.cycle, tc.max, tc.prev, tc.best,
				tc.threshold, tc.elapsed, tc.budget)
			assert.Equal(t, tc.wantStop, stop)
			assert.Equal(t, tc.wantReason, reason)
		})
	}
}
