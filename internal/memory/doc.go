// Package memory defines the episodic memory entry and the pure functions
// that operate on it.
//
// An Entry is a short free-text event remembered by a single agent. Entries
// live in one of four tiers of decreasing granularity:
//
//	Active       most recent raw entries, tiny and always retrieved
//	Situational  recent raw entries awaiting summarization
//	EventLog     summaries of recent history
//	Archive      deep summaries kept indefinitely
//
// This package owns no state. It provides the Tagger that derives keywords
// and tags from content, the retrieval scorer and composition used to build
// prompt context, and the decay pass that ages activity and evicts stale
// entries. Tier ownership, promotion, and summarization live in
// internal/tiered.
//
// # Scores
//
// Every entry carries two scores in [0,1]:
//   - Importance is long-term salience. It is clamped on write and never decays.
//   - Activity is short-term relevance. It starts at 1.0, only decreases
//     through Decay, and is reset by a user edit.
//
// # Ticks
//
// Timestamps are simulation ticks supplied by the caller. TicksPerHour and
// TicksPerDay fix the conversion used for "time ago" rendering and for the
// default decay and drain cadence.
package memory
