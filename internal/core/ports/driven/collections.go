package driven

// CollectionDeps bundles the per-collection infrastructure: the chunk
// store, the processed-file ledger, the append-only logs and the
// artifact store. The registry opens one bundle per collection
// directory on first access.
type CollectionDeps struct {
	Store      ChunkStore
	Ledger     ProcessedLedger
	ActionLog  ActionLog
	GarbageLog GarbageLog
	Artifacts  ArtifactStore
}

// CollectionOpener assembles the infrastructure bundle for one
// collection directory, creating files as needed.
type CollectionOpener interface {
	Open(dir string) (*CollectionDeps, error)
}

// CollectionOpenerFunc adapts a function to the CollectionOpener
// interface.
type CollectionOpenerFunc func(dir string) (*CollectionDeps, error)

// Open calls f.
func (f CollectionOpenerFunc) Open(dir string) (*CollectionDeps, error) {
	return f(dir)
}
