// Package envelope defines the inter-stage message protocol for the Forge
// analysis pipeline.
//
// # Overview
//
// An analysis run moves a document through four reasoning stages (gap
// detection, debate, hypothesis generation, evolution). Stages never call
// each other directly; every handoff is an immutable Envelope appended to
// the session's context store by the orchestrator. The envelope carries
// routing metadata (sender, receiver), a per-session sequence number, and
// the differential-privacy annotation stamped by the privacy ledger.
//
// # Core Concepts
//
// Envelopes are immutable once appended. Refinement never rewrites an
// existing record: the evolution stage produces new hypothesis records with
// fresh IDs and a Lineage back-pointer, so the full derivation chain from
// final hypothesis back to the originating document gap is reconstructable
// from history alone.
//
// Diagnostic envelopes (Kind = KindDiagnostic) record retries, fallbacks
// and failures. They are produced by the orchestrator, never carry
// privacy-protected data, and make every run reconstructable from the
// store without consulting logs.
//
// # Redis Schema
//
// Archived sessions are stored under keys of the form:
//
//	forge:{session_id}:envelope:{envelope_id}
//	forge:{session_id}:envelopes   (ZSET index scored by sequence number)
//	forge:{session_id}:meta
//
// The live store is in-memory; the Redis schema is used only by the
// session archive.
package envelope
