// Package pipeline sequences the four reasoning stages over the context
// store and privacy ledger, drives the evolution loop, and implements the
// retry/fallback policy around inference failures.
package pipeline

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/contextforge/forge/internal/config"
	"github.com/contextforge/forge/pkg/envelope"
)

// State is the orchestration lifecycle of one session.
type State string

const (
	StateInit                 State = "init"
	StateGapDetection         State = "gap_detection"
	StateDebate               State = "debate"
	StateHypothesisGeneration State = "hypothesis_generation"
	StateEvolving             State = "evolving"
	StateFinalized            State = "finalized"
	StateFailed               State = "failed"
)

// validTransitions encodes the forward path through the pipeline. Failed
// is reachable from any non-terminal state and is handled separately.
var validTransitions = map[State]State{
	StateInit:                 StateGapDetection,
	StateGapDetection:         StateDebate,
	StateDebate:               StateHypothesisGeneration,
	StateHypothesisGeneration: StateEvolving,
	StateEvolving:             StateFinalized,
}

// ErrCancelled is the failure reason of a cooperatively cancelled session.
var ErrCancelled = fmt.Errorf("session cancelled")

// Session owns one analysis run: its identity, configuration, lifecycle
// state and final output. Each session has exactly one context-store
// partition and one privacy-ledger entry, both keyed by its ID.
type Session struct {
	ID     string
	Config *config.Config

	mu        sync.Mutex
	state     State
	cancelled bool
	failure   error
	cycles    int
	final     []envelope.Hypothesis
}

// NewSession creates a session in the Init state.
func NewSession(cfg *config.Config) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("session config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	return &Session{
		ID:     uuid.New().String(),
		Config: cfg,
		state:  StateInit,
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cancel requests cooperative cancellation. The orchestrator honors it at
// the next stage boundary; an in-flight inference call may complete but
// its result is discarded.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

// Cancelled reports whether cancellation was requested.
func (s *Session) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Failure returns the error that moved the session to Failed, or nil.
func (s *Session) Failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// CompletedCycles returns how many evolution cycles ran.
func (s *Session) CompletedCycles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

// FinalHypotheses returns the winning evolution cycle's hypotheses as
// stored (privacy noise baked in). Empty until the session finalizes.
func (s *Session) FinalHypotheses() []envelope.Hypothesis {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]envelope.Hypothesis, len(s.final))
	copy(out, s.final)
	return out
}

// advance moves the session one step along the pipeline path.
func (s *Session) advance(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateFailed || s.state == StateFinalized {
		return fmt.Errorf("session %s is terminal (%s)", s.ID, s.state)
	}
	if validTransitions[s.state] != to {
		return fmt.Errorf("invalid transition %s -> %s", s.state, to)
	}
	s.state = to
	return nil
}

// fail moves the session to the Failed terminal state with a reason.
// Failing an already-terminal session is a no-op.
func (s *Session) fail(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateFailed || s.state == StateFinalized {
		return
	}
	s.state = StateFailed
	s.failure = reason
}

func (s *Session) finalize(final []envelope.Hypothesis, cycles int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateFailed || s.state == StateFinalized {
		return
	}
	s.state = StateFinalized
	s.final = final
	s.cycles = cycles
}

func (s *Session) setCycles(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles = n
}
