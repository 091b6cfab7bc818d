package domain

// ProcessedRecord marks a file as fully ingested. Identity is the
// (path, mtime, size) tuple, not a content hash: the same path with a
// different modification time or size is a different file.
type ProcessedRecord struct {
	// Path is the absolute path the file was ingested from.
	Path string `json:"path"`

	// MTimeNanos is the file modification time in unix nanoseconds.
	MTimeNanos int64 `json:"mtime"`

	// Size is the byte size at ingestion time.
	Size int64 `json:"size"`
}
