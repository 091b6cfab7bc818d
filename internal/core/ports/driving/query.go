package driving

import "context"

// QueryOptions configures a similarity search.
type QueryOptions struct {
	// Collection restricts the search to one collection; empty
	// searches all.
	Collection string

	// Threshold is the minimum cosine similarity for a direct hit.
	Threshold float64

	// History is optional conversation context for query expansion.
	History string

	// ExpandNeighbors includes the chunks immediately before and
	// after each hit for context.
	ExpandNeighbors bool
}

// QueryResult is one chunk returned from a search, ordered
// deterministically by (collection, source path, chunk index).
type QueryResult struct {
	Collection   string   `json:"collection"`
	SourcePath   string   `json:"source_path"`
	SourceName   string   `json:"source_name"`
	SourceType   string   `json:"source_type"`
	ChunkIndex   int      `json:"chunk_index"`
	Text         string   `json:"text"`
	ArtifactType string   `json:"artifact_type"`
	ArtifactPath string   `json:"artifact_path,omitempty"`
	Page         *int     `json:"page,omitempty"`
	Similarity   *float64 `json:"similarity,omitempty"`

	// Implicated is true for direct hits, false for neighbor context.
	Implicated bool `json:"implicated"`
}

// QueryResponse is the full answer to one search.
type QueryResponse struct {
	Query         string        `json:"query"`
	ExpandedQuery string        `json:"expanded_query"`
	Threshold     float64       `json:"threshold"`
	Results       []QueryResult `json:"results"`
	Count         int           `json:"count"`
}

// QueryService performs brute-force cosine-similarity search over
// stored chunks.
type QueryService interface {
	Query(ctx context.Context, prompt string, opts QueryOptions) (*QueryResponse, error)
}
