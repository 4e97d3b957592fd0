package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/contextforge/forge/pkg/envelope"
)

// Aggregate score weights. Novelty dominates because the system's purpose
// is surfacing unexplored directions; feasibility and impact share the
// remainder equally.
const (
	weightNovelty     = 0.4
	weightFeasibility = 0.3
	weightImpact      = 0.3
)

// Evolution refines hypotheses and scores the result. Each cycle produces
// new hypothesis records with fresh IDs and Lineage pointing at the record
// they were refined from; nothing is rewritten in place.
//
// Input and output payload: []envelope.Hypothesis.
type Evolution struct{}

// Stage implements Worker.
func (Evolution) Stage() envelope.Stage {
	return envelope.StageEvolutionAgent
}

const evolvePrompt = `You are refining research hypotheses through critique. For each
hypothesis below, produce an improved version and rate it on three dimensions, each
between 0 and 1: novelty (how unexplored), feasibility (how practical to test), and
impact (how much it would matter).

Respond with a JSON array, one object per hypothesis in the same order, each shaped as
{"text": "...", "methodology": "...", "novelty": 0.0, "feasibility": 0.0, "impact": 0.0}
and nothing else.

Hypotheses:
%s`

type evolvedItem struct {
	Text        string  `json:"text"`
	Methodology string  `json:"methodology"`
	Novelty     float64 `json:"novelty"`
	Feasibility float64 `json:"feasibility"`
	Impact      float64 `json:"impact"`
}

// Run implements Worker.
func (e Evolution) Run(ctx context.Context, llm LLM, input json.RawMessage) (json.RawMessage, error) {
	var hypotheses []envelope.Hypothesis
	if err := envelope.UnmarshalPayload(input, &hypotheses); err != nil {
		return nil, err
	}
	if len(hypotheses) == 0 {
		return nil, fmt.Errorf("evolution requires at least one hypothesis")
	}

	var listing strings.Builder
	for i, h := range hypotheses {
		fmt.Fprintf(&listing, "%d. %s (methodology: %s)\n", i+1, h.Text, h.Methodology)
	}

	text, err := llm.Infer(ctx, fmt.Sprintf(evolvePrompt, listing.String()))
	if err != nil {
		return nil, err
	}

	var items []evolvedItem
	if err := decodeModelJSON(text, &items); err != nil || len(items) == 0 {
		return nil, &MalformedResponseError{
			Stage:  envelope.StageEvolutionAgent,
			Reason: "expected a JSON array of evolved hypothesis objects",
		}
	}

	n := min(len(items), len(hypotheses))
	evolved := make([]envelope.Hypothesis, 0, n)
	for i := 0; i < n; i++ {
		if strings.TrimSpace(items[i].Text) == "" {
			continue
		}
		score := Score(items[i].Novelty, items[i].Feasibility, items[i].Impact)
		evolved = append(evolved, envelope.Hypothesis{
			ID:          uuid.New().String(),
			Text:        items[i].Text,
			GapID:       hypotheses[i].GapID,
			Methodology: items[i].Methodology,
			Lineage:     hypotheses[i].ID,
			Score:       &score,
		})
	}

	if len(evolved) == 0 {
		return nil, &MalformedResponseError{
			Stage:  envelope.StageEvolutionAgent,
			Reason: "no usable evolved hypotheses in model output",
		}
	}

	return envelope.MarshalPayload(evolved)
}

// Score builds a hypothesis score from model-elicited dimensions. Each
// dimension is clamped to [0, 1] and the aggregate is the weighted mean
// (novelty 0.4, feasibility 0.3, impact 0.3). Deterministic: identical
// inputs always yield identical scores.
func Score(novelty, feasibility, impact float64) envelope.HypothesisScore {
	n := clamp01(novelty)
	f := clamp01(feasibility)
	i := clamp01(impact)
	return envelope.HypothesisScore{
		Novelty:     n,
		Feasibility: f,
		Impact:      i,
		Aggregate:   weightNovelty*n + weightFeasibility*f + weightImpact*i,
	}
}

// BestAggregate returns the highest aggregate score in a set, or 0 for an
// empty or unscored set. The orchestrator's convergence check compares
// this across evolution cycles.
func BestAggregate(hypotheses []envelope.Hypothesis) float64 {
	best := 0.0
	for _, h := range hypotheses {
		if h.Score != nil && h.Score.Aggregate > best {
			best = h.Score.Aggregate
		}
	}
	return best
}
