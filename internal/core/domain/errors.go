package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoContent indicates a file yielded no extractable text.
	// The file is routed to the failure area, not retried.
	ErrNoContent = errors.New("no extractable content")

	// ErrNoChunks indicates chunking produced nothing for a file.
	ErrNoChunks = errors.New("no chunks produced")

	// ErrAllRejected indicates the garbage filter rejected every
	// candidate chunk for a file.
	ErrAllRejected = errors.New("all chunks rejected")

	// ErrEmbeddingMismatch indicates the embedder returned a vector
	// count that does not match the input count. The whole file fails.
	ErrEmbeddingMismatch = errors.New("embedding count mismatch")

	// ErrEmptyFile indicates a file was still zero bytes after the
	// retry delay.
	ErrEmptyFile = errors.New("file is empty")

	// ErrUnsupportedType indicates no extractor handles the file's
	// extension.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrStoreBusy indicates the collection store is locked by another
	// writer. The affected operation is skipped and retried on the
	// next cycle, never escalated.
	ErrStoreBusy = errors.New("store busy")

	// ErrGenerationUnavailable indicates the text-generation service
	// failed or returned unusable output. Callers fall back to
	// deterministic algorithms.
	ErrGenerationUnavailable = errors.New("text generation unavailable")
)
