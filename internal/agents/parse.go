package agents

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Models are asked for JSON but frequently wrap it in prose or markdown
// fences, or emit slightly broken JSON. decodeModelJSON extracts the first
// JSON document from the text and repairs it before giving up.
func decodeModelJSON(text string, v any) error {
	candidate := extractJSON(text)

	err := json.Unmarshal([]byte(candidate), v)
	if err == nil {
		return nil
	}

	fixed, repairErr := jsonrepair.JSONRepair(candidate)
	if repairErr != nil {
		return err
	}
	return json.Unmarshal([]byte(fixed), v)
}

// extractJSON strips markdown code fences and trims any prose before the
// first '[' or '{' and after the matching closing bracket.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return text
	}

	var close byte
	if text[start] == '[' {
		close = ']'
	} else {
		close = '}'
	}
	end := strings.LastIndexByte(text, close)
	if end > start {
		return text[start : end+1]
	}
	return text[start:]
}

var listItemRe = regexp.MustCompile(`^\s*(?:\d+[.)]\s+|[-*]\s+)(.+)$`)

// splitNumberedList parses a plain-text numbered or bulleted list into
// discrete items. Used as a fallback when a model answers in prose
// instead of the requested JSON.
func splitNumberedList(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		if m := listItemRe.FindStringSubmatch(line); m != nil {
			item := strings.TrimSpace(m[1])
			if len(item) > 5 {
				items = append(items, item)
			}
		}
	}
	return items
}

// clamp01 clamps a score to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
