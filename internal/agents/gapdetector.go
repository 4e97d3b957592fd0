package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/contextforge/forge/pkg/envelope"
)

// docExcerptLimit bounds how much document text goes into the prompt.
const docExcerptLimit = 4000

// GapDetector identifies unexplored research gaps in the supplied
// documents. Input payload: Documents. Output payload: []envelope.Gap.
type GapDetector struct{}

// Stage implements Worker.
func (GapDetector) Stage() envelope.Stage {
	return envelope.StageGapDetector
}

const gapPrompt = `You are a research analyst reviewing literature for unexplored areas.

Identify exactly 3 research gaps in the following documents. Respond with a
JSON array of strings, one gap description per element, and nothing else.

Documents:
%s`

// Run implements Worker.
func (g GapDetector) Run(ctx context.Context, llm LLM, input json.RawMessage) (json.RawMessage, error) {
	var docs Documents
	if err := envelope.UnmarshalPayload(input, &docs); err != nil {
		return nil, err
	}
	if len(docs.Texts) == 0 {
		return nil, fmt.Errorf("gap detector requires at least one document")
	}

	excerpt := strings.Join(docs.Texts, "\n---\n")
	if len(excerpt) > docExcerptLimit {
		excerpt = excerpt[:docExcerptLimit]
	}

	text, err := llm.Infer(ctx, fmt.Sprintf(gapPrompt, excerpt))
	if err != nil {
		return nil, err
	}

	descriptions := parseGapList(text)
	if len(descriptions) == 0 {
		return nil, &MalformedResponseError{
			Stage:  envelope.StageGapDetector,
			Reason: "no gap descriptions found in model output",
		}
	}

	gaps := make([]envelope.Gap, 0, len(descriptions))
	for _, d := range descriptions {
		gaps = append(gaps, envelope.Gap{ID: uuid.New().String(), Text: d})
	}

	return envelope.MarshalPayload(gaps)
}

// parseGapList accepts either the requested JSON array of strings or, as a
// fallback, a plain numbered list.
func parseGapList(text string) []string {
	var fromJSON []string
	if err := decodeModelJSON(text, &fromJSON); err == nil {
		var out []string
		for _, g := range fromJSON {
			if g = strings.TrimSpace(g); len(g) > 5 {
				out = append(out, g)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return splitNumberedList(text)
}
