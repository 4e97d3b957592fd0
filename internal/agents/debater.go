package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/contextforge/forge/pkg/envelope"
)

// Debater critiques each identified gap with pro and con arguments and a
// confidence score. Input payload: []envelope.Gap. Output payload:
// []envelope.Debate.
type Debater struct{}

// Stage implements Worker.
func (Debater) Stage() envelope.Stage {
	return envelope.StageDebater
}

const debatePrompt = `You are a critical reviewer playing devil's advocate on proposed
research gaps. For each gap below, give supporting arguments, counter-arguments, and a
confidence score between 0 and 1 that the gap is real and worth pursuing.

Respond with a JSON array, one object per gap in the same order, each shaped as
{"pro": "...", "con": "...", "score": 0.0} and nothing else.

Gaps:
%s`

type debateItem struct {
	Pro   string  `json:"pro"`
	Con   string  `json:"con"`
	Score float64 `json:"score"`
}

// Run implements Worker.
func (d Debater) Run(ctx context.Context, llm LLM, input json.RawMessage) (json.RawMessage, error) {
	var gaps []envelope.Gap
	if err := envelope.UnmarshalPayload(input, &gaps); err != nil {
		return nil, err
	}
	if len(gaps) == 0 {
		return nil, fmt.Errorf("debater requires at least one gap")
	}

	var listing strings.Builder
	for i, g := range gaps {
		fmt.Fprintf(&listing, "%d. %s\n", i+1, g.Text)
	}

	text, err := llm.Infer(ctx, fmt.Sprintf(debatePrompt, listing.String()))
	if err != nil {
		return nil, err
	}

	var items []debateItem
	if err := decodeModelJSON(text, &items); err != nil || len(items) == 0 {
		return nil, &MalformedResponseError{
			Stage:  envelope.StageDebater,
			Reason: "expected a JSON array of debate objects",
		}
	}

	// The model may return fewer items than gaps; pair by position and
	// drop the unmatched tail rather than fabricating critiques.
	n := min(len(items), len(gaps))
	debates := make([]envelope.Debate, 0, n)
	for i := 0; i < n; i++ {
		if items[i].Pro == "" && items[i].Con == "" {
			continue
		}
		debates = append(debates, envelope.Debate{
			GapID: gaps[i].ID,
			Gap:   gaps[i].Text,
			Pro:   items[i].Pro,
			Con:   items[i].Con,
			Score: clamp01(items[i].Score),
		})
	}

	if len(debates) == 0 {
		return nil, &MalformedResponseError{
			Stage:  envelope.StageDebater,
			Reason: "no usable debate objects in model output",
		}
	}

	return envelope.MarshalPayload(debates)
}
