package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/contextforge/forge/internal/agents"
	"github.com/contextforge/forge/internal/config"
	"github.com/contextforge/forge/internal/inference"
	"github.com/contextforge/forge/internal/privacy"
	"github.com/contextforge/forge/internal/store"
	"github.com/contextforge/forge/pkg/envelope"
)

// Orchestrator runs sessions through the fixed stage sequence. It is the
// only component that sees all four workers; every inter-stage handoff
// passes through the privacy ledger into the context store, and workers
// only ever read their input from the store.
//
// An orchestrator may run many sessions concurrently; all per-session
// state lives in the Session, the store partition and the ledger entry.
type Orchestrator struct {
	store    *store.Store
	ledger   *privacy.Ledger
	primary  agents.LLM
	fallback *agents.LLM

	// retryInterval is the constant pause between retry attempts.
	// Shortened in tests.
	retryInterval time.Duration
}

// New creates an orchestrator. fallback may be nil when no fallback
// backend is configured.
func New(st *store.Store, ledger *privacy.Ledger, primary agents.LLM, fallback *agents.LLM) *Orchestrator {
	return &Orchestrator{
		store:         st,
		ledger:        ledger,
		primary:       primary,
		fallback:      fallback,
		retryInterval: 500 * time.Millisecond,
	}
}

// stageStep pairs a worker with the stage that consumes its output.
type stageStep struct {
	state    State
	worker   agents.Worker
	receiver envelope.Stage
}

// Run executes one full analysis session over the given document texts.
// On return the session is either Finalized or Failed; the returned error
// is the failure reason, nil on success.
func (o *Orchestrator) Run(ctx context.Context, sess *Session, documents []string) error {
	if len(documents) == 0 {
		err := fmt.Errorf("no documents supplied")
		sess.fail(err)
		return err
	}

	if err := o.ledger.Register(sess.ID, float64(sess.Config.EpsilonBudget)); err != nil {
		sess.fail(err)
		return err
	}

	o.logEvent("session_started", map[string]interface{}{
		"session_id": sess.ID,
		"documents":  len(documents),
	})

	if err := sess.advance(StateGapDetection); err != nil {
		sess.fail(err)
		return err
	}

	// Seed the gap detector with the document payload. The seed crosses a
	// stage boundary like any other handoff, so it is wrapped and charged.
	if _, err := o.handoff(sess, envelope.StageOrchestrator, envelope.StageGapDetector,
		agents.Documents{Texts: documents}); err != nil {
		return err
	}

	steps := []stageStep{
		{StateGapDetection, agents.GapDetector{}, envelope.StageDebater},
		{StateDebate, agents.Debater{}, envelope.StageHypothesisGenerator},
		{StateHypothesisGeneration, agents.HypothesisGenerator{}, envelope.StageEvolutionAgent},
	}

	for i, step := range steps {
		if i > 0 {
			if err := sess.advance(step.state); err != nil {
				sess.fail(err)
				return err
			}
		}

		if err := o.checkCancelled(sess); err != nil {
			return err
		}

		input := o.store.Latest(sess.ID, step.worker.Stage())
		if input == nil {
			err := fmt.Errorf("no input envelope for stage %s", step.worker.Stage())
			o.failStage(sess, step.worker.Stage(), err)
			return err
		}

		output, err := o.runStage(ctx, sess, step.worker, input.Payload)
		if err != nil {
			o.failStage(sess, step.worker.Stage(), err)
			return err
		}

		// A result that lands after cancellation is discarded, never stored.
		if err := o.checkCancelled(sess); err != nil {
			return err
		}

		if _, err := o.handoff(sess, step.worker.Stage(), step.receiver, output); err != nil {
			return err
		}
	}

	if err := sess.advance(StateEvolving); err != nil {
		sess.fail(err)
		return err
	}

	return o.evolve(ctx, sess)
}

// evolve drives the refine-and-score loop. Each cycle's output becomes
// the next cycle's input via the store; the loop stops on convergence,
// cycle cap, or cycle time budget, whichever fires first.
func (o *Orchestrator) evolve(ctx context.Context, sess *Session) error {
	cfg := sess.Config
	prevBest := 0.0
	bestSoFar := -1.0
	var finalPayload json.RawMessage

	for cycle := 1; cycle <= cfg.MaxEvolutionCycles; cycle++ {
		if err := o.checkCancelled(sess); err != nil {
			return err
		}

		cycleStart := time.Now()

		input := o.store.Latest(sess.ID, envelope.StageEvolutionAgent)
		if input == nil {
			err := fmt.Errorf("no input envelope for evolution cycle %d", cycle)
			o.failStage(sess, envelope.StageEvolutionAgent, err)
			return err
		}

		output, err := o.runStage(ctx, sess, agents.Evolution{}, input.Payload)
		if err != nil {
			o.failStage(sess, envelope.StageEvolutionAgent, err)
			return err
		}

		if err := o.checkCancelled(sess); err != nil {
			return err
		}

		// Scores steering the loop come from the raw worker output; the
		// stored copy carries noise and is what later stages may read.
		var evolved []envelope.Hypothesis
		if err := envelope.UnmarshalPayload(output, &evolved); err != nil {
			o.failStage(sess, envelope.StageEvolutionAgent, err)
			return err
		}
		best := agents.BestAggregate(evolved)

		stored, err := o.handoff(sess, envelope.StageEvolutionAgent, envelope.StageEvolutionAgent, output)
		if err != nil {
			return err
		}
		sess.setCycles(cycle)

		// The final result is the best cycle seen, not necessarily the
		// last: a regressing cycle triggers the convergence stop but does
		// not replace a better predecessor.
		if best > bestSoFar {
			bestSoFar = best
			finalPayload = stored.Payload
		}

		o.logEvent("evolution_cycle", map[string]interface{}{
			"session_id": sess.ID,
			"cycle":      cycle,
			"best_score": best,
		})

		reason, stop := evolutionStop(cycle, cfg.MaxEvolutionCycles, prevBest, best,
			cfg.ConvergenceThreshold, time.Since(cycleStart), cfg.CycleTimeBudget.Std())
		prevBest = best

		if stop {
			o.appendDiagnostic(sess, envelope.Diagnostic{
				Event: "evolution_stopped",
				Stage: envelope.StageEvolutionAgent,
				Error: string(reason),
			})
			break
		}
	}

	var final []envelope.Hypothesis
	if err := envelope.UnmarshalPayload(finalPayload, &final); err != nil {
		sess.fail(err)
		return err
	}

	sess.finalize(final, sess.CompletedCycles())

	o.logEvent("session_finalized", map[string]interface{}{
		"session_id": sess.ID,
		"cycles":     sess.CompletedCycles(),
		"hypotheses": len(final),
	})

	return nil
}

// runStage executes one worker with retry against the primary backend,
// then against the fallback backend if configured. Non-retryable errors
// (bad input, invalid privacy parameters) fail immediately.
func (o *Orchestrator) runStage(ctx context.Context, sess *Session, worker agents.Worker, input json.RawMessage) (json.RawMessage, error) {
	output, err := o.attemptBackend(ctx, sess, worker, o.primary, input)
	if err == nil {
		return output, nil
	}
	if !retryable(err) || o.fallback == nil {
		return nil, err
	}

	o.appendDiagnostic(sess, envelope.Diagnostic{
		Event:   "fallback",
		Stage:   worker.Stage(),
		Backend: o.fallback.Backend.Name(),
		Error:   err.Error(),
	})

	return o.attemptBackend(ctx, sess, worker, *o.fallback, input)
}

// attemptBackend runs a worker against one backend with up to RetryCount
// attempts. Every failed attempt is recorded as a retry diagnostic.
func (o *Orchestrator) attemptBackend(ctx context.Context, sess *Session, worker agents.Worker, llm agents.LLM, input json.RawMessage) (json.RawMessage, error) {
	var output json.RawMessage
	attempt := 0

	op := func() error {
		attempt++

		callCtx, cancel := context.WithTimeout(ctx, sess.Config.PerStageTimeout.Std())
		defer cancel()

		result, err := worker.Run(callCtx, llm, input)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			o.appendDiagnostic(sess, envelope.Diagnostic{
				Event:   "retry",
				Stage:   worker.Stage(),
				Attempt: attempt,
				Backend: llm.Backend.Name(),
				Error:   err.Error(),
			})
			return err
		}

		output = result
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(o.retryInterval), uint64(sess.Config.RetryCount-1)),
		ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return output, nil
}

// retryable reports whether an error is worth another attempt: unusable
// model output or backend unavailability, per the failure policy.
func retryable(err error) bool {
	var malformed *agents.MalformedResponseError
	var provider *inference.ProviderError
	var timeout *inference.TimeoutError
	return errors.As(err, &malformed) || errors.As(err, &provider) || errors.As(err, &timeout)
}

// handoff wraps a stage output through the ledger and appends it to the
// store. On a budget breach the session either aborts (default) or stores
// the payload unprotected with a recorded warning, per configuration.
func (o *Orchestrator) handoff(sess *Session, sender, receiver envelope.Stage, payload any) (*envelope.Envelope, error) {
	env, err := o.ledger.Wrap(sess.ID, sender, receiver, payload,
		sess.Config.HandoffEpsilon, sess.Config.Sensitivity)

	var budgetErr *privacy.BudgetExceededError
	if errors.As(err, &budgetErr) {
		if sess.Config.OnBudgetExceeded == config.PolicyContinueUnprotected {
			o.appendDiagnostic(sess, envelope.Diagnostic{
				Event: "budget_warning",
				Stage: sender,
				Error: budgetErr.Error(),
			})
			env, err = o.ledger.WrapUnprotected(sess.ID, sender, receiver, payload)
		} else {
			o.appendDiagnostic(sess, envelope.Diagnostic{
				Event: "budget_exceeded",
				Stage: sender,
				Error: budgetErr.Error(),
			})
			sess.fail(budgetErr)
			return nil, budgetErr
		}
	}
	if err != nil {
		sess.fail(err)
		return nil, err
	}

	if err := o.store.Append(env); err != nil {
		sess.fail(err)
		return nil, err
	}
	return env, nil
}

// checkCancelled enforces cooperative cancellation at stage boundaries.
func (o *Orchestrator) checkCancelled(sess *Session) error {
	if !sess.Cancelled() {
		return nil
	}
	o.appendDiagnostic(sess, envelope.Diagnostic{
		Event: "cancelled",
		Stage: envelope.StageOrchestrator,
		Error: ErrCancelled.Error(),
	})
	sess.fail(ErrCancelled)
	return ErrCancelled
}

// failStage records a terminal stage failure and moves the session to
// Failed. The orchestrator never fabricates a result to mask a failure.
func (o *Orchestrator) failStage(sess *Session, stage envelope.Stage, err error) {
	o.appendDiagnostic(sess, envelope.Diagnostic{
		Event: "stage_failed",
		Stage: stage,
		Error: err.Error(),
	})
	sess.fail(err)
	o.logEvent("stage_failed", map[string]interface{}{
		"session_id": sess.ID,
		"stage":      string(stage),
		"error":      err.Error(),
	})
}

// appendDiagnostic records an orchestrator event in the session history.
// Diagnostics are non-privacy-bearing and best-effort: a failure to
// append is logged, not propagated.
func (o *Orchestrator) appendDiagnostic(sess *Session, d envelope.Diagnostic) {
	payload, err := envelope.MarshalPayload(d)
	if err != nil {
		log.Printf("[Orchestrator] Failed to marshal diagnostic: %v", err)
		return
	}

	env := &envelope.Envelope{
		ID:          uuid.New().String(),
		SessionID:   sess.ID,
		Sender:      envelope.StageOrchestrator,
		Receiver:    envelope.StageOrchestrator,
		Kind:        envelope.KindDiagnostic,
		CreatedAtMs: time.Now().UnixMilli(),
		Payload:     payload,
		Privacy:     envelope.PrivacyInfo{Applied: false},
	}

	if err := o.store.Append(env); err != nil {
		log.Printf("[Orchestrator] Failed to append diagnostic: %v", err)
	}
}

// logEvent logs a structured event in JSON format.
func (o *Orchestrator) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "orchestrator"
	data["event_type"] = eventType

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Orchestrator] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
