// Package envelope provides the typed message protocol shared by the Forge
// pipeline components. Envelopes are the fundamental unit of inter-stage
// state: every handoff, retry and failure is represented as an envelope
// with complete provenance.
package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Stage identifies a participant in the analysis pipeline.
// The set is closed: four reasoning stages plus the orchestrator itself
// (sender of diagnostic envelopes).
type Stage string

const (
	StageGapDetector         Stage = "GapDetector"
	StageDebater             Stage = "Debater"
	StageHypothesisGenerator Stage = "HypothesisGenerator"
	StageEvolutionAgent      Stage = "EvolutionAgent"
	StageOrchestrator        Stage = "Orchestrator"
)

// Validate checks if the Stage is a valid enum value.
func (s Stage) Validate() error {
	switch s {
	case StageGapDetector, StageDebater, StageHypothesisGenerator,
		StageEvolutionAgent, StageOrchestrator:
		return nil
	default:
		return fmt.Errorf("unknown stage: %q", s)
	}
}

// Kind distinguishes data-bearing envelopes from orchestrator diagnostics.
type Kind string

const (
	// KindData represents a stage output handed to the next stage.
	KindData Kind = "data"

	// KindDiagnostic represents an orchestrator event (retry, fallback,
	// failure, warning). Diagnostic envelopes never carry protected data.
	KindDiagnostic Kind = "diagnostic"
)

// Validate checks if the Kind is a valid enum value.
func (k Kind) Validate() error {
	switch k {
	case KindData, KindDiagnostic:
		return nil
	default:
		return fmt.Errorf("unknown envelope kind: %q", k)
	}
}

// MechanismLaplace is the only noise mechanism the privacy ledger applies.
const MechanismLaplace = "laplace"

// PrivacyInfo records the differential-privacy treatment a payload received
// before storage. Applied is false for diagnostic envelopes and for
// handoffs stored unprotected after a budget breach under the
// continue_unprotected policy.
type PrivacyInfo struct {
	Applied     bool    `json:"applied"`
	Epsilon     float64 `json:"epsilon"`
	Mechanism   string  `json:"mechanism"`
	Sensitivity float64 `json:"sensitivity"`
}

// Envelope represents one immutable inter-stage message.
// Once appended to a context store an envelope is never mutated; refinement
// produces new envelopes with new IDs.
type Envelope struct {
	ID          string          `json:"id"`            // UUID - unique within a session
	Seq         int64           `json:"seq"`           // Per-session sequence, assigned at append; breaks timestamp ties
	SessionID   string          `json:"session_id"`    // Groups all envelopes of one analysis run
	Sender      Stage           `json:"sender"`        // Producing stage
	Receiver    Stage           `json:"receiver"`      // Consuming stage
	Kind        Kind            `json:"kind"`          // data or diagnostic
	CreatedAtMs int64           `json:"created_at_ms"` // Unix timestamp in milliseconds
	Payload     json.RawMessage `json:"payload"`       // Stage-specific structured data
	Privacy     PrivacyInfo     `json:"privacy"`       // Noise treatment applied before storage
}

// Validate checks if the Envelope has valid field values.
// Seq is not validated here: it is zero until the store assigns it.
func (e *Envelope) Validate() error {
	if !isValidUUID(e.ID) {
		return fmt.Errorf("invalid envelope ID: not a valid UUID")
	}

	if e.SessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}

	if err := e.Sender.Validate(); err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	if err := e.Receiver.Validate(); err != nil {
		return fmt.Errorf("invalid receiver: %w", err)
	}

	if err := e.Kind.Validate(); err != nil {
		return fmt.Errorf("invalid kind: %w", err)
	}

	if e.Privacy.Applied {
		if e.Privacy.Mechanism != MechanismLaplace {
			return fmt.Errorf("invalid privacy mechanism: %q", e.Privacy.Mechanism)
		}
		if e.Privacy.Epsilon <= 0 {
			return fmt.Errorf("applied privacy requires epsilon > 0, got %v", e.Privacy.Epsilon)
		}
	}

	return nil
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
