package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/contextforge/forge/pkg/envelope"
)

// HypothesisGenerator turns debated gaps into concrete, testable research
// proposals. Input payload: []envelope.Debate. Output payload:
// []envelope.Hypothesis with lineage back to the originating gap.
type HypothesisGenerator struct{}

// Stage implements Worker.
func (HypothesisGenerator) Stage() envelope.Stage {
	return envelope.StageHypothesisGenerator
}

const hypothesisPrompt = `You are a researcher proposing novel, testable hypotheses.
For each debated gap below, propose one hypothesis that addresses the gap while
answering the counter-arguments.

Respond with a JSON array, one object per gap in the same order, each shaped as
{"text": "the hypothesis", "methodology": "how to test it"} and nothing else.

Debated gaps:
%s`

type hypothesisItem struct {
	Text        string `json:"text"`
	Methodology string `json:"methodology"`
}

// Run implements Worker.
func (h HypothesisGenerator) Run(ctx context.Context, llm LLM, input json.RawMessage) (json.RawMessage, error) {
	var debates []envelope.Debate
	if err := envelope.UnmarshalPayload(input, &debates); err != nil {
		return nil, err
	}
	if len(debates) == 0 {
		return nil, fmt.Errorf("hypothesis generator requires at least one debate")
	}

	var listing strings.Builder
	for i, d := range debates {
		fmt.Fprintf(&listing, "%d. Gap: %s\n   Pro: %s\n   Con: %s\n", i+1, d.Gap, d.Pro, d.Con)
	}

	text, err := llm.Infer(ctx, fmt.Sprintf(hypothesisPrompt, listing.String()))
	if err != nil {
		return nil, err
	}

	var items []hypothesisItem
	if err := decodeModelJSON(text, &items); err != nil || len(items) == 0 {
		return nil, &MalformedResponseError{
			Stage:  envelope.StageHypothesisGenerator,
			Reason: "expected a JSON array of hypothesis objects",
		}
	}

	n := min(len(items), len(debates))
	hypotheses := make([]envelope.Hypothesis, 0, n)
	for i := 0; i < n; i++ {
		if strings.TrimSpace(items[i].Text) == "" {
			continue
		}
		hypotheses = append(hypotheses, envelope.Hypothesis{
			ID:          uuid.New().String(),
			Text:        items[i].Text,
			GapID:       debates[i].GapID,
			Methodology: items[i].Methodology,
			Lineage:     debates[i].GapID,
		})
	}

	if len(hypotheses) == 0 {
		return nil, &MalformedResponseError{
			Stage:  envelope.StageHypothesisGenerator,
			Reason: "no usable hypotheses in model output",
		}
	}

	return envelope.MarshalPayload(hypotheses)
}
