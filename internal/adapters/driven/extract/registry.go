package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/ragdoll/internal/core/domain"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
)

// Registry maps file extensions to extractors.
type Registry struct {
	byExt map[string]driven.Extractor
}

var _ driven.ExtractorRegistry = (*Registry)(nil)

// NewRegistry builds a registry from the given extractors. A later
// extractor claiming an already-registered extension wins.
func NewRegistry(extractors ...driven.Extractor) *Registry {
	r := &Registry{byExt: make(map[string]driven.Extractor)}
	for _, e := range extractors {
		for _, ext := range e.Extensions() {
			r.byExt[strings.ToLower(ext)] = e
		}
	}
	return r
}

// DefaultRegistry returns the registry with all built-in extractors.
func DefaultRegistry() *Registry {
	return NewRegistry(NewPlainText(), NewPDF(), NewDocx())
}

// ForPath returns the extractor for the path's extension.
func (r *Registry) ForPath(path string) (driven.Extractor, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, ext)
	}
	return e, nil
}

// Supported reports whether any extractor handles the path.
func (r *Registry) Supported(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}
