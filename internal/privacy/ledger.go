package privacy

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contextforge/forge/pkg/envelope"
)

// Ledger tracks cumulative epsilon spending per session and wraps stage
// outputs into privacy envelopes.
//
// Charging policy: privacy cost is charged once per Wrap call covering the
// whole payload, not once per perturbed field. This is the conservative,
// simpler-to-audit interpretation; every numeric leaf still receives an
// independent noise draw. Cost is charged at the moment of handoff because
// every additional stage that observes a value is a new disclosure.
type Ledger struct {
	noise *NoiseEngine

	mu       sync.Mutex
	sessions map[string]*ledgerEntry
}

type ledgerEntry struct {
	mu     sync.Mutex
	budget float64 // math.Inf(1) means accounting only, no ceiling
	spent  float64
}

// NewLedger creates a ledger backed by the given noise engine.
func NewLedger(noise *NoiseEngine) *Ledger {
	return &Ledger{
		noise:    noise,
		sessions: make(map[string]*ledgerEntry),
	}
}

// Register sets the epsilon ceiling for a session. Use math.Inf(1) for
// accounting without enforcement. Registering an already-known session is
// an error: budgets are fixed at session creation.
func (l *Ledger) Register(sessionID string, budget float64) error {
	if sessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	if budget <= 0 {
		return fmt.Errorf("epsilon budget must be positive (or +Inf), got %v", budget)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.sessions[sessionID]; exists {
		return fmt.Errorf("session %s already registered", sessionID)
	}
	l.sessions[sessionID] = &ledgerEntry{budget: budget}
	return nil
}

// Wrap perturbs every numeric leaf of payload with independent Laplace
// draws, charges epsilon against the session budget, and returns the
// resulting envelope. Non-numeric fields (free text, IDs) pass through
// untouched.
//
// Returns InvalidParameterError for bad parameters and BudgetExceededError
// if a finite ceiling would be exceeded; no spending is applied on failure.
func (l *Ledger) Wrap(sessionID string, sender, receiver envelope.Stage, payload any, epsilon, sensitivity float64) (*envelope.Envelope, error) {
	if epsilon <= 0 || sensitivity < 0 {
		return nil, &InvalidParameterError{Epsilon: epsilon, Sensitivity: sensitivity}
	}

	entry, err := l.entry(sessionID)
	if err != nil {
		return nil, err
	}

	// Reserve the spend before doing the work so concurrent wraps against
	// the same session cannot jointly overshoot the ceiling.
	entry.mu.Lock()
	if !math.IsInf(entry.budget, 1) && entry.spent+epsilon > entry.budget {
		defer entry.mu.Unlock()
		return nil, &BudgetExceededError{
			SessionID: sessionID,
			Budget:    entry.budget,
			Spent:     entry.spent,
			Requested: epsilon,
		}
	}
	entry.spent += epsilon
	entry.mu.Unlock()

	perturbed, err := l.perturbPayload(payload, sensitivity, epsilon)
	if err != nil {
		return nil, err
	}

	return &envelope.Envelope{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Sender:      sender,
		Receiver:    receiver,
		Kind:        envelope.KindData,
		CreatedAtMs: time.Now().UnixMilli(),
		Payload:     perturbed,
		Privacy: envelope.PrivacyInfo{
			Applied:     true,
			Epsilon:     epsilon,
			Mechanism:   envelope.MechanismLaplace,
			Sensitivity: sensitivity,
		},
	}, nil
}

// WrapUnprotected builds a data envelope without noise and without
// charging the budget. Used by the orchestrator after a budget breach when
// the session is configured to continue unprotected.
func (l *Ledger) WrapUnprotected(sessionID string, sender, receiver envelope.Stage, payload any) (*envelope.Envelope, error) {
	if _, err := l.entry(sessionID); err != nil {
		return nil, err
	}

	raw, err := envelope.MarshalPayload(payload)
	if err != nil {
		return nil, err
	}

	return &envelope.Envelope{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Sender:      sender,
		Receiver:    receiver,
		Kind:        envelope.KindData,
		CreatedAtMs: time.Now().UnixMilli(),
		Payload:     raw,
		Privacy:     envelope.PrivacyInfo{Applied: false},
	}, nil
}

// Unwrap returns the payload as stored. Noise is baked in at wrap time;
// this is a one-way protection and Unwrap does not remove it.
func (l *Ledger) Unwrap(e *envelope.Envelope) json.RawMessage {
	return e.Payload
}

// Spent returns the cumulative epsilon spent for a session.
func (l *Ledger) Spent(sessionID string) (float64, error) {
	entry, err := l.entry(sessionID)
	if err != nil {
		return 0, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.spent, nil
}

// Remaining returns the epsilon still available for a session.
// Returns math.Inf(1) when no ceiling is enforced.
func (l *Ledger) Remaining(sessionID string) (float64, error) {
	entry, err := l.entry(sessionID)
	if err != nil {
		return 0, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if math.IsInf(entry.budget, 1) {
		return math.Inf(1), nil
	}
	return entry.budget - entry.spent, nil
}

func (l *Ledger) entry(sessionID string) (*ledgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", sessionID)
	}
	return entry, nil
}

// perturbPayload marshals payload to JSON, perturbs every numeric leaf
// with an independent Laplace draw, and re-marshals.
func (l *Ledger) perturbPayload(payload any, sensitivity, epsilon float64) (json.RawMessage, error) {
	raw, err := envelope.MarshalPayload(payload)
	if err != nil {
		return nil, err
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode payload for perturbation: %w", err)
	}

	perturbed, err := l.perturbValue(decoded, sensitivity, epsilon)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(perturbed)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode perturbed payload: %w", err)
	}
	return out, nil
}

// perturbValue walks a decoded JSON tree. Numbers get independent noise;
// strings, booleans and nulls pass through unchanged.
func (l *Ledger) perturbValue(v any, sensitivity, epsilon float64) (any, error) {
	switch val := v.(type) {
	case float64:
		noise, err := l.noise.Sample(sensitivity, epsilon)
		if err != nil {
			return nil, err
		}
		return val + noise, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			p, err := l.perturbValue(child, sensitivity, epsilon)
			if err != nil {
				return nil, err
			}
			out[k] = p
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			p, err := l.perturbValue(child, sensitivity, epsilon)
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	default:
		return v, nil
	}
}
