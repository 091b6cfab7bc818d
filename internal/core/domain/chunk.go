package domain

import "time"

// ArtifactKind classifies what a chunk's text was derived from.
// Plain prose embeds directly; chart/table/figure chunks carry an LLM
// summary of a stored artifact.
type ArtifactKind string

// Artifact kinds.
const (
	ArtifactText          ArtifactKind = "text"
	ArtifactChartSummary  ArtifactKind = "chart_summary"
	ArtifactTableSummary  ArtifactKind = "table_summary"
	ArtifactFigureSummary ArtifactKind = "figure_summary"
)

// Valid reports whether k is a known artifact kind.
func (k ArtifactKind) Valid() bool {
	switch k {
	case ArtifactText, ArtifactChartSummary, ArtifactTableSummary, ArtifactFigureSummary:
		return true
	}
	return false
}

// Source is one ingested document within a collection, identified by
// its final resting path under the collection's sources directory.
type Source struct {
	// ID is assigned by the store on first insert.
	ID int64

	// Path is the permanent storage path, unique per collection.
	Path string

	// Type is the original file extension, lowercased, with dot
	// (".pdf", ".md", ...).
	Type string
}

// Chunk is one retrievable unit of content belonging to a Source.
//
// Within one source, (SourceID, Index) is unique and indices form a
// contiguous 0..n-1 sequence; that pair is the deduplication key the
// reconciliation pass enforces.
type Chunk struct {
	// ID is the store row id (0 before insert).
	ID int64

	// SourceID links to the owning Source.
	SourceID int64

	// Index is the 0-based position within the source.
	Index int

	// Text is the embeddable body.
	Text string

	// Embedding is the vector representation.
	Embedding []float32

	// Artifact classifies the chunk's origin.
	Artifact ArtifactKind

	// ArtifactPath points at a stored non-text artifact (chart image,
	// table JSON), empty for plain text.
	ArtifactPath string

	// Page is the 1-based source page, nil when unknown.
	Page *int

	// CreatedAt is when the chunk was stored.
	CreatedAt time.Time
}

// Candidate is a chunk proposed by the chunker before filtering and
// embedding. It has no store identity yet; ID correlates garbage-log
// entries with pipeline diagnostics.
type Candidate struct {
	// ID is a per-run unique identifier (UUID).
	ID string

	// Text is the proposed chunk body.
	Text string

	// Artifact classifies the candidate's origin.
	Artifact ArtifactKind

	// ArtifactPath points at a stored artifact, empty for plain text.
	ArtifactPath string

	// Page is the 1-based source page, nil when unknown.
	Page *int
}
