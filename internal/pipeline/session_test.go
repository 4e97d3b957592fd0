package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextforge/forge/internal/config"
	"github.com/contextforge/forge/pkg/envelope"
)

func newSessionForTest(t *testing.T) *Session {
	t.Helper()
	sess, err := NewSession(testConfig())
	require.NoError(t, err)
	return sess
}

func TestNewSession(t *testing.T) {
	t.Run("starts in init with a UUID", func(t *testing.T) {
		sess := newSessionForTest(t)
		assert.Equal(t, StateInit, sess.State())
		assert.NotEmpty(t, sess.ID)
		assert.False(t, sess.Cancelled())
		assert.NoError(t, sess.Failure())
	})

	t.Run("rejects nil config", func(t *testing.T) {
		_, err := NewSession(nil)
		assert.Error(t, err)
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		cfg := testConfig()
		cfg.RetryCount = 0
		_, err := NewSession(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "retry_count")
	})
}

func TestSessionTransitions(t *testing.T) {
	t.Run("forward path reaches finalized", func(t *testing.T) {
		sess := newSessionForTest(t)

		for _, next := range []State{StateGapDetection, StateDebate, StateHypothesisGeneration, StateEvolving} {
			require.NoError(t, sess.advance(next))
			assert.Equal(t, next, sess.State())
		}

		sess.finalize([]envelope.Hypothesis{{ID: "h-1", Text: "final"}}, 2)
		assert.Equal(t, StateFinalized, sess.State())
		assert.Equal(t, 2, sess.CompletedCycles())
	})

	t.Run("rejects skipping a stage", func(t *testing.T) {
		sess := newSessionForTest(t)
		err := sess.advance(StateDebate)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid transition")
		assert.Equal(t, StateInit, sess.State())
	})

	t.Run("fail is reachable from any non-terminal state", func(t *testing.T) {
		sess := newSessionForTest(t)
		require.NoError(t, sess.advance(StateGapDetection))
		require.NoError(t, sess.advance(StateDebate))

		reason := errors.New("backend down")
		sess.fail(reason)

		assert.Equal(t, StateFailed, sess.State())
		assert.ErrorIs(t, sess.Failure(), reason)
	})

	t.Run("terminal states are immutable", func(t *testing.T) {
		sess := newSessionForTest(t)
		for _, next := range []State{StateGapDetection, StateDebate, StateHypothesisGeneration, StateEvolving} {
			require.NoError(t, sess.advance(next))
		}
		sess.finalize(nil, 1)

		sess.fail(errors.New("too late"))
		assert.Equal(t, StateFinalized, sess.State())
		assert.NoError(t, sess.Failure())

		assert.Error(t, sess.advance(StateGapDetection))
	})

	t.Run("failed session cannot advance", func(t *testing.T) {
		sess := newSessionForTest(t)
		sess.fail(errors.New("boom"))
		assert.Error(t, sess.advance(StateGapDetection))
		assert.Equal(t, StateFailed, sess.State())
	})
}

func TestSessionCancel(t *testing.T) {
	sess := newSessionForTest(t)
	assert.False(t, sess.Cancelled())

	sess.Cancel()
	assert.True(t, sess.Cancelled())

	// Cancellation is a request, not a state change; the orchestrator
	// transitions the session when it observes the flag.
	assert.Equal(t, StateInit, sess.State())
}

func TestFinalHypothesesReturnsCopy(t *testing.T) {
	sess := newSessionForTest(t)
	for _, next := range []State{StateGapDetection, StateDebate, StateHypothesisGeneration, StateEvolving} {
		require.NoError(t, sess.advance(next))
	}
	sess.finalize([]envelope.Hypothesis{{ID: "h-1", Text: "original"}}, 1)

	got := sess.FinalHypotheses()
	require.Len(t, got, 1)
	got[0].Text = "mutated"

	assert.Equal(t, "original", sess.FinalHypotheses()[0].Text)
}

func TestSessionConfigImmutableDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.PrimaryBackend = config.Backend{Name: "stub", Model: "m"}
	sess, err := NewSession(cfg)
	require.NoError(t, err)
	assert.Same(t, cfg, sess.Config)
}
