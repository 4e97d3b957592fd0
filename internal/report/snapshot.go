// Package report builds read-only summaries of analysis sessions for the
// CLI: final state, privacy accounting, envelope statistics and the final
// hypothesis set with lineage.
package report

import (
	"fmt"
	"io"
	"math"

	"github.com/fatih/color"

	"github.com/contextforge/forge/internal/pipeline"
	"github.com/contextforge/forge/internal/privacy"
	"github.com/contextforge/forge/internal/store"
)

// Hypothesis is one final hypothesis as presented to the user. Scores are
// the stored (privacy-protected) values and may fall outside [0, 1].
type Hypothesis struct {
	ID          string  `json:"id"`
	Text        string  `json:"text"`
	Methodology string  `json:"methodology,omitempty"`
	GapID       string  `json:"gap_id,omitempty"`
	Lineage     string  `json:"lineage,omitempty"`
	Novelty     float64 `json:"novelty"`
	Feasibility float64 `json:"feasibility"`
	Impact      float64 `json:"impact"`
	Aggregate   float64 `json:"aggregate"`
}

// Snapshot is a point-in-time summary of one session. It is built from
// the session, store and ledger without mutating any of them.
type Snapshot struct {
	SessionID        string      `json:"session_id"`
	State            string      `json:"state"`
	CompletedCycles  int         `json:"completed_cycles"`
	EpsilonSpent     float64     `json:"epsilon_spent"`
	EpsilonRemaining *float64    `json:"epsilon_remaining,omitempty"` // nil when the budget is unlimited
	Envelopes        store.Stats `json:"envelopes"`
	Failure          string      `json:"failure,omitempty"`
	Hypotheses       []Hypothesis `json:"hypotheses,omitempty"`
}

// Build assembles a snapshot for a session.
func Build(sess *pipeline.Session, st *store.Store, ledger *privacy.Ledger) (*Snapshot, error) {
	spent, err := ledger.Spent(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("session %s has no ledger entry: %w", sess.ID, err)
	}
	remaining, err := ledger.Remaining(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("session %s has no ledger entry: %w", sess.ID, err)
	}

	snap := &Snapshot{
		SessionID:       sess.ID,
		State:           string(sess.State()),
		CompletedCycles: sess.CompletedCycles(),
		EpsilonSpent:    spent,
		Envelopes:       st.Stats(sess.ID),
	}

	if !math.IsInf(remaining, 1) {
		snap.EpsilonRemaining = &remaining
	}
	if failure := sess.Failure(); failure != nil {
		snap.Failure = failure.Error()
	}

	for _, h := range sess.FinalHypotheses() {
		view := Hypothesis{
			ID:          h.ID,
			Text:        h.Text,
			Methodology: h.Methodology,
			GapID:       h.GapID,
			Lineage:     h.Lineage,
		}
		if h.Score != nil {
			view.Novelty = h.Score.Novelty
			view.Feasibility = h.Score.Feasibility
			view.Impact = h.Score.Impact
			view.Aggregate = h.Score.Aggregate
		}
		snap.Hypotheses = append(snap.Hypotheses, view)
	}

	return snap, nil
}

// Render writes a human-readable snapshot. Colors degrade to plain text
// when the writer is not a terminal (color.NoColor).
func Render(w io.Writer, snap *Snapshot) {
	header := color.New(color.FgCyan, color.Bold)
	label := color.New(color.Bold)
	good := color.New(color.FgGreen)
	bad := color.New(color.FgRed)

	header.Fprintf(w, "Session %s\n", snap.SessionID)

	label.Fprint(w, "  State:          ")
	switch snap.State {
	case string(pipeline.StateFinalized):
		good.Fprintln(w, snap.State)
	case string(pipeline.StateFailed):
		bad.Fprintln(w, snap.State)
	default:
		fmt.Fprintln(w, snap.State)
	}

	if snap.Failure != "" {
		label.Fprint(w, "  Failure:        ")
		bad.Fprintln(w, snap.Failure)
	}

	label.Fprint(w, "  Cycles:         ")
	fmt.Fprintln(w, snap.CompletedCycles)

	label.Fprint(w, "  Epsilon spent:  ")
	fmt.Fprintf(w, "%.3f\n", snap.EpsilonSpent)

	label.Fprint(w, "  Epsilon left:   ")
	if snap.EpsilonRemaining == nil {
		fmt.Fprintln(w, "unlimited")
	} else {
		fmt.Fprintf(w, "%.3f\n", *snap.EpsilonRemaining)
	}

	label.Fprint(w, "  Envelopes:      ")
	fmt.Fprintf(w, "%d (avg epsilon %.3f)\n", snap.Envelopes.Count, snap.Envelopes.AvgEpsilon)

	if len(snap.Hypotheses) > 0 {
		fmt.Fprintln(w)
		header.Fprintln(w, "Final hypotheses")
		for i, h := range snap.Hypotheses {
			label.Fprintf(w, "  %d. ", i+1)
			fmt.Fprintln(w, h.Text)
			if h.Methodology != "" {
				fmt.Fprintf(w, "     methodology: %s\n", h.Methodology)
			}
			fmt.Fprintf(w, "     scores: novelty %.3f, feasibility %.3f, impact %.3f (aggregate %.3f)\n",
				h.Novelty, h.Feasibility, h.Impact, h.Aggregate)
			if h.Lineage != "" {
				fmt.Fprintf(w, "     refined from: %s\n", h.Lineage)
			}
		}
	}
}
