package driving

import (
	"context"

	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
)

// Admin exposes the management operations behind the CLI.
type Admin interface {
	// Collections lists all discovered collection names, sorted.
	Collections() ([]string, error)

	// Sources lists the sources of one collection with chunk counts.
	Sources(ctx context.Context, collection string) ([]driven.SourceInfo, error)

	// DeleteSource removes a source and its chunks, unmarks its
	// ledger record, and moves the stored file into the collection's
	// deleted area. Returns the number of chunks removed.
	DeleteSource(ctx context.Context, collection string, sourceID int64) (int, error)

	// Reprocess removes processed-ledger records matching the path or
	// filename so the file is re-ingested when it reappears under the
	// watch root. Returns the number of records removed.
	Reprocess(collection, pathOrName string) (int, error)
}
