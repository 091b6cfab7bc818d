package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driving"
	"github.com/custodia-labs/ragdoll/internal/logger"
)

// Ensure AdminService implements the interface.
var _ driving.Admin = (*AdminService)(nil)

// AdminService implements the management operations behind the CLI:
// listing collections and sources, deleting sources and forcing
// re-ingestion.
type AdminService struct {
	registry *Registry
}

// NewAdminService creates the admin service.
func NewAdminService(registry *Registry) *AdminService {
	return &AdminService{registry: registry}
}

// Collections lists all discovered collection names, sorted.
func (s *AdminService) Collections() ([]string, error) {
	return s.registry.Discover()
}

// Sources lists the sources of one collection with chunk counts.
func (s *AdminService) Sources(ctx context.Context, collection string) ([]driven.SourceInfo, error) {
	col, err := s.registry.Get(collection)
	if err != nil {
		return nil, err
	}
	return col.Store().ListSources(ctx)
}

// DeleteSource removes a source and its chunks, unmarks its ledger
// records and moves the stored original into the collection's deleted
// area. Returns the number of chunks removed.
func (s *AdminService) DeleteSource(ctx context.Context, collection string, sourceID int64) (int, error) {
	col, err := s.registry.Get(collection)
	if err != nil {
		return 0, err
	}

	col.Lock()
	defer col.Unlock()

	source, err := col.Store().GetSource(ctx, sourceID)
	if err != nil {
		return 0, err
	}

	removed, err := col.Store().DeleteSource(ctx, sourceID)
	if err != nil {
		return 0, err
	}

	// The ledger records the original ingest path. The stored base
	// name reaches it directly, or through the flattened-name match
	// for files that were nested under the collection.
	if _, err := col.Ledger().Unmark(filepath.Base(source.Path)); err != nil {
		logger.Warn("Failed to unmark %s: %v", source.Path, err)
	}

	if _, err := os.Stat(source.Path); err == nil {
		dest := filepath.Join(col.DeletedDir(), filepath.Base(source.Path))
		if err := moveFile(source.Path, dest); err != nil {
			logger.Warn("Failed to move %s to deleted area: %v", source.Path, err)
		} else {
			col.ActionLog().Log("move", map[string]any{
				"src": source.Path, "to": dest, "reason": "deleted",
			})
		}
	}

	col.ActionLog().Log("delete_source", map[string]any{
		"source": source.Path, "num_chunks": removed,
	})
	return removed, nil
}

// Reprocess removes processed-ledger records matching the path or
// filename so the file is re-ingested when it reappears under the
// watch root. Returns the number of records removed.
func (s *AdminService) Reprocess(collection, pathOrName string) (int, error) {
	col, err := s.registry.Get(collection)
	if err != nil {
		return 0, err
	}

	removed, err := col.Ledger().Unmark(pathOrName)
	if err != nil {
		return 0, fmt.Errorf("failed to unmark %s: %w", pathOrName, err)
	}
	if removed > 0 {
		col.ActionLog().Log("reprocess", map[string]any{
			"match": pathOrName, "removed": removed,
		})
	}
	return removed, nil
}
