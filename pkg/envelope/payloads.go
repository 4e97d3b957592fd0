package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Gap is one research gap identified by the gap-detection stage.
type Gap struct {
	ID      string `json:"id"`                // UUID - unique identifier for this gap
	Text    string `json:"text"`              // Free-text description of the gap
	Lineage string `json:"lineage,omitempty"` // ID of the record this was derived from; empty for detected gaps
}

// Debate is the debater stage's critique of a single gap.
type Debate struct {
	GapID string  `json:"gap_id"` // Gap this debate is about
	Gap   string  `json:"gap"`    // Gap text, carried for readability of history
	Pro   string  `json:"pro"`    // Supporting arguments
	Con   string  `json:"con"`    // Counter-arguments
	Score float64 `json:"score"`  // Debater's confidence in the gap, 0..1
}

// HypothesisScore holds the evolution stage's per-dimension scores.
// Each dimension is clamped to [0, 1]; Aggregate is the weighted mean
// computed by the evolution stage's scoring function.
type HypothesisScore struct {
	Novelty     float64 `json:"novelty"`
	Feasibility float64 `json:"feasibility"`
	Impact      float64 `json:"impact"`
	Aggregate   float64 `json:"aggregate"`
}

// Hypothesis is a research proposal derived from a gap. Evolution produces
// new hypotheses with fresh IDs and Lineage pointing at the hypothesis (or
// gap) they were refined from, so records are never rewritten in place.
type Hypothesis struct {
	ID          string           `json:"id"`                // UUID - unique identifier for this hypothesis
	Text        string           `json:"text"`              // The proposal itself
	GapID       string           `json:"gap_id"`            // Originating gap
	Methodology string           `json:"methodology"`       // Suggested experimental approach
	Lineage     string           `json:"lineage,omitempty"` // ID of the record this was derived from
	Score       *HypothesisScore `json:"score,omitempty"`   // Populated by the evolution stage
}

// Validate checks if the Hypothesis has valid field values.
func (h *Hypothesis) Validate() error {
	if _, err := uuid.Parse(h.ID); err != nil {
		return fmt.Errorf("invalid hypothesis ID: not a valid UUID")
	}
	if h.Text == "" {
		return fmt.Errorf("hypothesis text cannot be empty")
	}
	if h.Score != nil {
		for name, v := range map[string]float64{
			"novelty":     h.Score.Novelty,
			"feasibility": h.Score.Feasibility,
			"impact":      h.Score.Impact,
			"aggregate":   h.Score.Aggregate,
		} {
			if v < 0 || v > 1 {
				return fmt.Errorf("score %s out of range [0,1]: %v", name, v)
			}
		}
	}
	return nil
}

// Diagnostic is the payload of a KindDiagnostic envelope. It records an
// orchestrator event (retry, fallback switch, failure, budget warning).
type Diagnostic struct {
	Event   string `json:"event"`             // e.g. "retry", "fallback", "stage_failed", "budget_warning", "cancelled"
	Stage   Stage  `json:"stage"`             // Stage the event concerns
	Attempt int    `json:"attempt,omitempty"` // Attempt number for retry events
	Backend string `json:"backend,omitempty"` // Backend name for retry/fallback events
	Error   string `json:"error,omitempty"`   // Error text, if any
}

// MarshalPayload encodes a payload value for storage in an envelope.
func MarshalPayload(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return raw, nil
}

// UnmarshalPayload decodes an envelope payload into v.
func UnmarshalPayload(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}
