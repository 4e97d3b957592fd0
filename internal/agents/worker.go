// Package agents implements the four reasoning stage workers of the Forge
// pipeline. Each worker is a pure transformation from the prior stage's
// payload to its own, delegating text generation to an injected inference
// backend and owning the parsing and validation of the model's response.
package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/contextforge/forge/internal/inference"
	"github.com/contextforge/forge/pkg/envelope"
)

// LLM bundles a backend with its generation parameters. The orchestrator
// passes a different LLM when it switches to the fallback backend; workers
// never choose backends themselves.
type LLM struct {
	Backend inference.Backend
	Config  inference.ModelConfig
}

// Infer forwards to the underlying backend.
func (l LLM) Infer(ctx context.Context, prompt string) (string, error) {
	return l.Backend.Infer(ctx, prompt, l.Config)
}

// Worker is the uniform stage contract. Run transforms the prior stage's
// payload into this stage's payload. Workers hold no session state: for a
// fixed model response, output is a deterministic function of the input.
//
// On empty or unusable model output, Run fails with MalformedResponseError
// rather than returning an empty result; that error is the orchestrator's
// retry signal.
type Worker interface {
	Stage() envelope.Stage
	Run(ctx context.Context, llm LLM, input json.RawMessage) (json.RawMessage, error)
}

// MalformedResponseError reports that a model response could not be parsed
// into the stage's payload shape, even after JSON repair.
type MalformedResponseError struct {
	Stage  envelope.Stage
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("stage %s: malformed model response: %s", e.Stage, e.Reason)
}

// Documents is the initial payload handed to the gap detector by the
// orchestrator: an opaque sequence of document texts.
type Documents struct {
	Texts []string `json:"texts"`
}
