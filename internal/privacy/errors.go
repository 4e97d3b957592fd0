package privacy

import "fmt"

// InvalidParameterError reports privacy parameters that can never be valid
// (epsilon <= 0 or negative sensitivity). This is a programmer or
// configuration error and is fatal at the call site; it is never retried.
type InvalidParameterError struct {
	Epsilon     float64
	Sensitivity float64
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid privacy parameters: epsilon=%v sensitivity=%v (epsilon must be > 0, sensitivity >= 0)",
		e.Epsilon, e.Sensitivity)
}

// BudgetExceededError reports that a wrap call would push a session's
// cumulative epsilon past its configured ceiling. The spend is not applied
// when this error is returned; the orchestrator decides whether to abort
// the session or continue unprotected.
type BudgetExceededError struct {
	SessionID string
	Budget    float64
	Spent     float64
	Requested float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("privacy budget exceeded for session %s: spent %v + requested %v > budget %v",
		e.SessionID, e.Spent, e.Requested, e.Budget)
}
