package domain

import "time"

// Garbage-filter stages, in pipeline order.
const (
	GarbageStageRules      = "stage1"
	GarbageStageScore      = "stage2"
	GarbageStageValidation = "stage3"
)

// GarbageEntry records one rejected candidate chunk. Entries are
// append-only diagnostics; they are never read back by the pipeline.
type GarbageEntry struct {
	// Timestamp is when the rejection happened (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Stage is the pipeline stage that rejected the candidate.
	Stage string `json:"stage"`

	// Reason is a short machine-readable rejection reason.
	Reason string `json:"reason"`

	// Artifact is the candidate's artifact kind.
	Artifact ArtifactKind `json:"artifact_type"`

	// SourcePath is the file the candidate came from.
	SourcePath string `json:"source_path,omitempty"`

	// Page is the candidate's page, nil when unknown.
	Page *int `json:"page,omitempty"`

	// CandidateID correlates with pipeline diagnostics.
	CandidateID string `json:"candidate_id,omitempty"`

	// Text is the candidate body, truncated for the log.
	Text string `json:"text"`

	// TextLength is the untruncated body length in bytes.
	TextLength int `json:"text_length"`
}

// GarbageLogTextLimit bounds the text stored in a garbage entry.
const GarbageLogTextLimit = 2000
