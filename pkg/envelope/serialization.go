package envelope

import (
	"fmt"
	"strconv"
)

// Serialization helpers for converting between envelopes and Redis hashes.
//
// Redis stores data as string-to-string maps (hashes). The opaque payload
// is already JSON and is stored verbatim in a single field.

// ToHash converts an Envelope to a Redis hash format.
func ToHash(e *Envelope) map[string]interface{} {
	return map[string]interface{}{
		"id":                  e.ID,
		"seq":                 e.Seq,
		"session_id":          e.SessionID,
		"sender":              string(e.Sender),
		"receiver":            string(e.Receiver),
		"kind":                string(e.Kind),
		"created_at_ms":       e.CreatedAtMs,
		"payload":             string(e.Payload),
		"privacy_applied":     strconv.FormatBool(e.Privacy.Applied),
		"privacy_epsilon":     e.Privacy.Epsilon,
		"privacy_mechanism":   e.Privacy.Mechanism,
		"privacy_sensitivity": e.Privacy.Sensitivity,
	}
}

// FromHash converts a Redis hash back to an Envelope.
func FromHash(hash map[string]string) (*Envelope, error) {
	seq, err := strconv.ParseInt(hash["seq"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid seq field: %w", err)
	}

	createdAtMs, err := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at_ms field: %w", err)
	}

	applied, err := strconv.ParseBool(hash["privacy_applied"])
	if err != nil {
		return nil, fmt.Errorf("invalid privacy_applied field: %w", err)
	}

	epsilon, err := strconv.ParseFloat(hash["privacy_epsilon"], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid privacy_epsilon field: %w", err)
	}

	sensitivity, err := strconv.ParseFloat(hash["privacy_sensitivity"], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid privacy_sensitivity field: %w", err)
	}

	e := &Envelope{
		ID:          hash["id"],
		Seq:         seq,
		SessionID:   hash["session_id"],
		Sender:      Stage(hash["sender"]),
		Receiver:    Stage(hash["receiver"]),
		Kind:        Kind(hash["kind"]),
		CreatedAtMs: createdAtMs,
		Payload:     []byte(hash["payload"]),
		Privacy: PrivacyInfo{
			Applied:     applied,
			Epsilon:     epsilon,
			Mechanism:   hash["privacy_mechanism"],
			Sensitivity: sensitivity,
		},
	}

	return e, nil
}
