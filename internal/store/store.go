// Package store provides the per-session context store: an append-only
// history of envelopes with lookup by stage and aggregate statistics, plus
// a Redis-backed archive for completed sessions.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/contextforge/forge/pkg/envelope"
)

// Store is the in-memory context store. Each session owns an independent
// partition; operations on different sessions never contend. Appends
// against the same session are serialized by a per-session mutex.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*partition
}

type partition struct {
	mu        sync.Mutex
	nextSeq   int64
	envelopes []*envelope.Envelope
}

// New creates an empty context store.
func New() *Store {
	return &Store{sessions: make(map[string]*partition)}
}

// Append adds an envelope to its session's history and assigns the
// per-session sequence number. The store is append-only: envelopes are
// never mutated or removed after this call. Only structural
// well-formedness is validated.
func (s *Store) Append(e *envelope.Envelope) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("malformed envelope: %w", err)
	}

	p := s.partition(e.SessionID)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextSeq++
	e.Seq = p.nextSeq
	p.envelopes = append(p.envelopes, e)
	return nil
}

// Latest returns the most recent envelope addressed to the given stage, or
// nil if none exists. This is what the next stage worker reads as input.
func (s *Store) Latest(sessionID string, stage envelope.Stage) *envelope.Envelope {
	p := s.partition(sessionID)

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := len(p.envelopes) - 1; i >= 0; i-- {
		if p.envelopes[i].Receiver == stage {
			return p.envelopes[i]
		}
	}
	return nil
}

// Get returns the envelope with the given ID, or nil if unknown.
func (s *Store) Get(sessionID, envelopeID string) *envelope.Envelope {
	p := s.partition(sessionID)

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.envelopes {
		if e.ID == envelopeID {
			return e
		}
	}
	return nil
}

// History returns the session's envelopes ordered by CreatedAtMs
// ascending. Timestamps may collide at millisecond resolution; ties are
// broken by sequence number, which preserves insertion order.
func (s *Store) History(sessionID string) []*envelope.Envelope {
	p := s.partition(sessionID)

	p.mu.Lock()
	out := make([]*envelope.Envelope, len(p.envelopes))
	copy(out, p.envelopes)
	p.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAtMs != out[j].CreatedAtMs {
			return out[i].CreatedAtMs < out[j].CreatedAtMs
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// Stats summarizes a session's history.
type Stats struct {
	Count      int                    `json:"count"`
	BySender   map[envelope.Stage]int `json:"by_sender"`
	AvgEpsilon float64                `json:"avg_epsilon"` // Mean epsilon over envelopes with privacy applied
}

// Stats computes aggregate statistics for a session.
func (s *Store) Stats(sessionID string) Stats {
	p := s.partition(sessionID)

	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{BySender: make(map[envelope.Stage]int)}
	var epsilonSum float64
	var applied int

	for _, e := range p.envelopes {
		stats.Count++
		stats.BySender[e.Sender]++
		if e.Privacy.Applied {
			epsilonSum += e.Privacy.Epsilon
			applied++
		}
	}

	if applied > 0 {
		stats.AvgEpsilon = epsilonSum / float64(applied)
	}
	return stats
}

func (s *Store) partition(sessionID string) *partition {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.sessions[sessionID]
	if !ok {
		p = &partition{}
		s.sessions[sessionID] = p
	}
	return p
}
