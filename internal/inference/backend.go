// Package inference isolates the language-model call behind an injectable
// backend interface so the pipeline's protocol and privacy behavior can be
// tested against deterministic stubs, decoupled from any actual model.
package inference

import (
	"context"
	"errors"
	"fmt"
)

// ModelConfig carries per-call generation parameters.
type ModelConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Backend is one inference provider. Implementations must honor context
// cancellation and deadlines: Infer is the only blocking suspension point
// in the pipeline, and the orchestrator bounds every call with a timeout.
type Backend interface {
	// Name identifies the backend in diagnostics and logs.
	Name() string

	// Infer sends a prompt and returns the model's raw text response.
	// Fails with TimeoutError when the context deadline is exceeded and
	// ProviderError for any other backend failure.
	Infer(ctx context.Context, prompt string, cfg ModelConfig) (string, error)
}

// ProviderError reports a backend failure other than a timeout
// (connection refused, HTTP error, empty response). Retried by the
// orchestrator, then escalated to the fallback backend.
type ProviderError struct {
	Backend string
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("backend %s failed: %v", e.Backend, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that an inference call exceeded its deadline.
type TimeoutError struct {
	Backend string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("backend %s timed out", e.Backend)
}

// wrapErr classifies an error from a backend call into the taxonomy.
func wrapErr(backend string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Backend: backend}
	}
	return &ProviderError{Backend: backend, Err: err}
}
