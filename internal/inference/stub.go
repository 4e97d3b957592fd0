package inference

import (
	"context"
	"errors"
	"sync"
)

var errNoScript = errors.New("stub backend has no scripted responses")

// StubBackend is a deterministic in-memory backend for tests. Responses
// are scripted in order; once the script runs out the last entry repeats.
type StubBackend struct {
	name string

	mu      sync.Mutex
	script  []StubResponse
	cursor  int
	prompts []string
}

// StubResponse is one scripted reply: either Text or Err.
type StubResponse struct {
	Text string
	Err  error
}

// NewStubBackend creates a scripted backend.
func NewStubBackend(name string, script ...StubResponse) *StubBackend {
	return &StubBackend{name: name, script: script}
}

// Name implements Backend.
func (s *StubBackend) Name() string {
	return s.name
}

// Infer implements Backend. It records the prompt and returns the next
// scripted response, honoring context cancellation first.
func (s *StubBackend) Infer(ctx context.Context, prompt string, _ ModelConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", wrapErr(s.name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, prompt)

	if len(s.script) == 0 {
		return "", &ProviderError{Backend: s.name, Err: errNoScript}
	}

	resp := s.script[s.cursor]
	if s.cursor < len(s.script)-1 {
		s.cursor++
	}

	if resp.Err != nil {
		return "", resp.Err
	}
	return resp.Text, nil
}

// Calls returns how many times Infer was invoked.
func (s *StubBackend) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// Prompts returns a copy of every prompt received, in order.
func (s *StubBackend) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}
