package driven

import (
	"context"

	"github.com/custodia-labs/ragdoll/internal/core/domain"
)

// StoredChunk pairs a chunk with its owning source for query results.
type StoredChunk struct {
	Chunk  domain.Chunk
	Source domain.Source
}

// ChunkStore is the durable per-collection chunk table with source
// bookkeeping. One store instance serves exactly one collection.
//
// Contiguity contract: after any mutation, chunk indices for a source
// form an unbroken 0..n-1 sequence. Dedup enforces uniqueness of
// (source, index) mechanically; everything else is maintained by the
// mutation operations themselves.
type ChunkStore interface {
	// AddChunks stores one ingestion run's chunks for the source at
	// sourcePath, get-or-creating the source row. Chunks are stored
	// at indices 0..len-1 in slice order; a retried ingestion thus
	// produces duplicate (source, index) rows, which the dedup pass
	// collapses keeping the earliest. The whole batch commits or none
	// of it does.
	AddChunks(ctx context.Context, sourcePath, sourceType string, chunks []domain.Chunk) error

	// ListSources returns all sources with their chunk counts,
	// ordered by id.
	ListSources(ctx context.Context) ([]SourceInfo, error)

	// GetSource returns a source by id, or domain.ErrNotFound.
	GetSource(ctx context.Context, id int64) (*domain.Source, error)

	// GetChunk returns one chunk by source id and index, or
	// domain.ErrNotFound. The embedding is not loaded.
	GetChunk(ctx context.Context, sourceID int64, index int) (*StoredChunk, error)

	// AllChunks streams every chunk in the collection with its
	// embedding, for the brute-force similarity scan.
	AllChunks(ctx context.Context) ([]StoredChunk, error)

	// UpdateChunkText replaces a chunk's text and embedding in place.
	UpdateChunkText(ctx context.Context, sourceID int64, index int, text string, embedding []float32) error

	// InsertChunkAt inserts a chunk at the given index, shifting all
	// chunks at or after that index up by one.
	InsertChunkAt(ctx context.Context, sourceID int64, index int, chunk domain.Chunk) error

	// DeleteChunk removes one chunk and shifts later indices down by
	// one to keep the sequence contiguous. Deleting the last chunk of
	// a source removes the source row too.
	DeleteChunk(ctx context.Context, sourceID int64, index int) error

	// DeleteSource removes a source and all its chunks. Returns the
	// number of chunks removed.
	DeleteSource(ctx context.Context, sourceID int64) (int, error)

	// Dedup removes all but the lowest-id row for each
	// (source, index) pair. Returns the number of rows removed.
	// A locked store surfaces domain.ErrStoreBusy.
	Dedup(ctx context.Context) (int, error)

	// Close releases the underlying connection.
	Close() error
}

// SourceInfo is a source with its chunk count, for listings.
type SourceInfo struct {
	Source domain.Source
	Chunks int
}

// ChunkStoreOpener opens (creating or upgrading as needed) the store
// for one collection directory.
type ChunkStoreOpener interface {
	Open(dir string) (ChunkStore, error)
}
