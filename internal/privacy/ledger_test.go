package privacy

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextforge/forge/pkg/envelope"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(NewNoiseEngine(rand.NewSource(99)))
}

type scoredPayload struct {
	Label  string    `json:"label"`
	Score  float64   `json:"score"`
	Vector []float64 `json:"vector"`
}

func TestLedgerRegister(t *testing.T) {
	ledger := newTestLedger(t)

	t.Run("registers session", func(t *testing.T) {
		require.NoError(t, ledger.Register("s1", 2.0))
	})

	t.Run("rejects duplicate registration", func(t *testing.T) {
		err := ledger.Register("s1", 5.0)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("rejects non-positive budget", func(t *testing.T) {
		assert.Error(t, ledger.Register("s2", 0))
		assert.Error(t, ledger.Register("s2", -1))
	})

	t.Run("accepts unbounded budget", func(t *testing.T) {
		require.NoError(t, ledger.Register("s-unbounded", math.Inf(1)))
	})
}

func TestWrapPerturbsNumericLeavesOnly(t *testing.T) {
	ledger := newTestLedger(t)
	require.NoError(t, ledger.Register("s1", math.Inf(1)))

	payload := scoredPayload{
		Label:  "scalability issues",
		Score:  0.75,
		Vector: []float64{0.1, 0.2, 0.3},
	}

	env, err := ledger.Wrap("s1", envelope.StageGapDetector, envelope.StageDebater, payload, 0.5, 1.0)
	require.NoError(t, err)
	require.NoError(t, env.Validate())

	assert.True(t, env.Privacy.Applied)
	assert.Equal(t, 0.5, env.Privacy.Epsilon)
	assert.Equal(t, envelope.MechanismLaplace, env.Privacy.Mechanism)

	var got scoredPayload
	require.NoError(t, envelope.UnmarshalPayload(ledger.Unwrap(env), &got))

	// Non-numeric fields survive exactly; numeric fields carry noise.
	assert.Equal(t, payload.Label, got.Label)
	assert.NotEqual(t, payload.Score, got.Score)
	require.Len(t, got.Vector, 3)
	for i := range got.Vector {
		assert.NotEqual(t, payload.Vector[i], got.Vector[i])
	}

	// Independent draws: perturbed components must not share an offset.
	d0 := got.Vector[0] - payload.Vector[0]
	d1 := got.Vector[1] - payload.Vector[1]
	assert.NotEqual(t, d0, d1)
}

func TestSpentIsMonotonicAndExact(t *testing.T) {
	ledger := newTestLedger(t)
	require.NoError(t, ledger.Register("s1", math.Inf(1)))

	var total float64
	for _, eps := range []float64{0.5, 0.25, 1.0} {
		_, err := ledger.Wrap("s1", envelope.StageDebater, envelope.StageHypothesisGenerator,
			scoredPayload{Score: 1}, eps, 1.0)
		require.NoError(t, err)
		total += eps

		spent, err := ledger.Spent("s1")
		require.NoError(t, err)
		assert.InDelta(t, total, spent, 1e-12)
	}
}

func TestWrapEnforcesFiniteBudget(t *testing.T) {
	ledger := newTestLedger(t)
	require.NoError(t, ledger.Register("s1", 1.0))

	_, err := ledger.Wrap("s1", envelope.StageGapDetector, envelope.StageDebater,
		scoredPayload{}, 0.6, 1.0)
	require.NoError(t, err)

	// 0.6 + 0.6 > 1.0: must fail and must not charge.
	_, err = ledger.Wrap("s1", envelope.StageDebater, envelope.StageHypothesisGenerator,
		scoredPayload{}, 0.6, 1.0)
	require.Error(t, err)
	var budgetErr *BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	assert.Equal(t, "s1", budgetErr.SessionID)

	spent, err := ledger.Spent("s1")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, spent, 1e-12)

	// A wrap that fits the remaining budget still succeeds.
	_, err = ledger.Wrap("s1", envelope.StageDebater, envelope.StageHypothesisGenerator,
		scoredPayload{}, 0.4, 1.0)
	assert.NoError(t, err)

	remaining, err := ledger.Remaining("s1")
	require.NoError(t, err)
	assert.InDelta(t, 0, remaining, 1e-12)
}

func TestWrapNeverFailsOnUnboundedBudget(t *testing.T) {
	ledger := newTestLedger(t)
	require.NoError(t, ledger.Register("s1", math.Inf(1)))

	for i := 0; i < 50; i++ {
		_, err := ledger.Wrap("s1", envelope.StageGapDetector, envelope.StageDebater,
			scoredPayload{}, 10.0, 1.0)
		require.NoError(t, err)
	}

	remaining, err := ledger.Remaining("s1")
	require.NoError(t, err)
	assert.True(t, math.IsInf(remaining, 1))
}

func TestWrapRejectsBadParameters(t *testing.T) {
	ledger := newTestLedger(t)
	require.NoError(t, ledger.Register("s1", 1.0))

	_, err := ledger.Wrap("s1", envelope.StageGapDetector, envelope.StageDebater,
		scoredPayload{}, 0, 1.0)
	var paramErr *InvalidParameterError
	assert.ErrorAs(t, err, &paramErr)

	// Failed parameter validation must not charge the budget.
	spent, err := ledger.Spent("s1")
	require.NoError(t, err)
	assert.Zero(t, spent)
}

func TestWrapUnknownSession(t *testing.T) {
	ledger := newTestLedger(t)
	_, err := ledger.Wrap("ghost", envelope.StageGapDetector, envelope.StageDebater,
		scoredPayload{}, 0.5, 1.0)
	assert.Error(t, err)
}

func TestWrapUnprotected(t *testing.T) {
	ledger := newTestLedger(t)
	require.NoError(t, ledger.Register("s1", 1.0))

	payload := scoredPayload{Label: "unprotected", Score: 0.9}
	env, err := ledger.WrapUnprotected("s1", envelope.StageEvolutionAgent, envelope.StageOrchestrator, payload)
	require.NoError(t, err)

	assert.False(t, env.Privacy.Applied)

	var got scoredPayload
	require.NoError(t, envelope.UnmarshalPayload(env.Payload, &got))
	assert.Equal(t, payload, got)

	// No budget charge for unprotected handoffs.
	spent, err := ledger.Spent("s1")
	require.NoError(t, err)
	assert.Zero(t, spent)
}
