package pipeline

import "time"

// StopReason explains why the evolution loop stopped.
type StopReason string

const (
	StopMaxCycles  StopReason = "max_cycles"
	StopConverged  StopReason = "converged"
	StopTimeBudget StopReason = "cycle_time_budget"
)

// evolutionStop decides whether the loop stops after a completed cycle.
//
// The three stop conditions are checked independently:
//   - converged: improvement over the previous cycle's best aggregate is
//     below the convergence threshold (never fires on the first cycle,
//     which has no predecessor to improve on);
//   - cycle_time_budget: the completed cycle exceeded its time budget
//     (disabled when the budget is zero);
//   - max_cycles: the configured cycle cap is reached, so the loop
//     terminates even if scores never converge.
func evolutionStop(cycle, maxCycles int, prevBest, best, threshold float64, elapsed, budget time.Duration) (StopReason, bool) {
	if cycle > 1 && best-prevBest < threshold {
		return StopConverged, true
	}
	if budget > 0 && elapsed > budget {
		return StopTimeBudget, true
	}
	if cycle >= maxCycles {
		return StopMaxCycles, true
	}
	return "", false
}
