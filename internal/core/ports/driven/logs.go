package driven

import "github.com/custodia-labs/ragdoll/internal/core/domain"

// ActionLog is the per-collection append-only record of pipeline
// actions: stage transitions, file moves, AI calls, failures.
// Never embeddings or full document text.
type ActionLog interface {
	// Log appends one record. action is a short verb
	// ("process_start", "extract_ok", "move", ...); fields carry
	// JSON-serialisable context. Log never fails the caller; write
	// errors are swallowed after a console warning.
	Log(action string, fields map[string]any)
}

// GarbageLog is the per-collection append-only record of rejected
// candidate chunks. Entries are never mutated or deleted.
type GarbageLog interface {
	// Append writes one rejection entry.
	Append(entry domain.GarbageEntry)
}
