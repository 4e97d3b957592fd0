package envelope

import "fmt"

// Redis key pattern helpers for the session archive.
//
// All keys are namespaced by session ID so archived sessions coexist on a
// single Redis server without interference.
//
// Key pattern: forge:{session_id}:{entity}

// Key returns the Redis key for an archived envelope.
// Pattern: forge:{session_id}:envelope:{envelope_id}
func Key(sessionID, envelopeID string) string {
	return fmt.Sprintf("forge:%s:envelope:%s", sessionID, envelopeID)
}

// IndexKey returns the Redis key for a session's envelope index ZSET.
// Members are envelope IDs scored by sequence number.
// Pattern: forge:{session_id}:envelopes
func IndexKey(sessionID string) string {
	return fmt.Sprintf("forge:%s:envelopes", sessionID)
}

// MetaKey returns the Redis key for a session's metadata hash
// (final state, epsilon totals).
// Pattern: forge:{session_id}:meta
func MetaKey(sessionID string) string {
	return fmt.Sprintf("forge:%s:meta", sessionID)
}
