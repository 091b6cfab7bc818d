package driven

import "github.com/custodia-labs/ragdoll/internal/core/domain"

// Extractor converts one file format into document content.
type Extractor interface {
	// Extensions returns the lowercased dotted extensions this
	// extractor handles (".pdf", ".md", ...).
	Extensions() []string

	// Extract returns the structured view of the file. A document
	// with no embeddable content is a valid, non-error outcome; the
	// caller falls back to ExtractText.
	Extract(path string) (*domain.StructuredDocument, error)

	// ExtractText returns the file's plain text. Used as the fallback
	// path when Extract yields nothing embeddable.
	ExtractText(path string) (string, error)
}

// ExtractorRegistry selects an extractor by file extension.
type ExtractorRegistry interface {
	// ForPath returns the extractor for the path's extension, or
	// domain.ErrUnsupportedType.
	ForPath(path string) (Extractor, error)

	// Supported reports whether any extractor handles the path.
	Supported(path string) bool
}
