package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/custodia-labs/ragdoll/internal/core/domain"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
)

// Collection is one registered collection: its directory and its
// opened infrastructure bundle. The embedded mutex serialises
// mutations (ingest, delete, reconcile) against each other.
type Collection struct {
	Name string
	Dir  string

	deps *driven.CollectionDeps

	mu sync.Mutex
}

// Lock acquires the collection's mutation lock.
func (c *Collection) Lock() { c.mu.Lock() }

// Unlock releases the collection's mutation lock.
func (c *Collection) Unlock() { c.mu.Unlock() }

// Store returns the collection's chunk store.
func (c *Collection) Store() driven.ChunkStore { return c.deps.Store }

// Ledger returns the collection's processed-file ledger.
func (c *Collection) Ledger() driven.ProcessedLedger { return c.deps.Ledger }

// ActionLog returns the collection's action log.
func (c *Collection) ActionLog() driven.ActionLog { return c.deps.ActionLog }

// GarbageLog returns the collection's garbage log.
func (c *Collection) GarbageLog() driven.GarbageLog { return c.deps.GarbageLog }

// Artifacts returns the collection's artifact store.
func (c *Collection) Artifacts() driven.ArtifactStore { return c.deps.Artifacts }

// SourcesDir is where ingested originals are stored.
func (c *Collection) SourcesDir() string {
	return filepath.Join(c.Dir, domain.SourcesSubdir)
}

// DeletedDir is where originals of deleted sources are moved.
func (c *Collection) DeletedDir() string {
	return filepath.Join(c.Dir, domain.DeletedSubdir)
}

// Registry owns the per-collection bundles. Collections are opened on
// first access and kept open until Close; there is no other cache.
type Registry struct {
	dataDir string
	opener  driven.CollectionOpener

	mu          sync.Mutex
	collections map[string]*Collection
}

// NewRegistry creates a registry rooted at dataDir.
func NewRegistry(dataDir string, opener driven.CollectionOpener) *Registry {
	return &Registry{
		dataDir:     dataDir,
		opener:      opener,
		collections: make(map[string]*Collection),
	}
}

// Get returns the collection for name, opening it on first access.
// The name is sanitised; an empty name maps to the default collection.
func (r *Registry) Get(name string) (*Collection, error) {
	name = domain.SanitizeCollection(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if col, ok := r.collections[name]; ok {
		return col, nil
	}

	dir := filepath.Join(r.dataDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create collection directory: %w", err)
	}

	deps, err := r.opener.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", name, err)
	}

	col := &Collection{Name: name, Dir: dir, deps: deps}
	r.collections[name] = col
	return col, nil
}

// Discover returns the names of all collections under the data dir,
// sorted. A collection is any subdirectory holding a store file.
func (r *Registry) Discover() ([]string, error) {
	entries, err := os.ReadDir(r.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		marker := filepath.Join(r.dataDir, e.Name(), domain.StoreFileName)
		if _, err := os.Stat(marker); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close closes every opened collection store.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, col := range r.collections {
		if err := col.deps.Store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close collection %s: %w", name, err)
		}
		delete(r.collections, name)
	}
	return firstErr
}
