package driving

import "context"

// Ingestor runs the watched-folder ingestion pipeline.
type Ingestor interface {
	// Start scans existing files, starts the watch and the worker,
	// and blocks until ctx is cancelled. Configuration failures
	// (missing watch root) are returned before any work begins.
	Start(ctx context.Context) error

	// Enqueue adds one path to the work queue, subject to the same
	// filtering as watch events.
	Enqueue(path string)
}
