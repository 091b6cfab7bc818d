package driven

// ProcessedLedger records which files have been fully ingested for one
// collection. Identity is (path, mtime, size); see
// domain.ProcessedRecord.
//
// Implementations must be safe for use from the ingest worker and
// administrative unmark operations concurrently.
type ProcessedLedger interface {
	// Contains reports whether the exact identity tuple is recorded.
	Contains(path string, mtimeNanos, size int64) bool

	// Mark records the tuple. Called only after a successful storage
	// commit.
	Mark(path string, mtimeNanos, size int64) error

	// Unmark removes every record addressed by match: the full path,
	// the base filename, or the flattened storage name of a nested
	// file (trailing path segments joined with "_"). Returns the
	// number removed. Used to force re-ingestion.
	Unmark(match string) (int, error)
}
