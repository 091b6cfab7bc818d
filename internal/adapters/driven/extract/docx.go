package extract

import (
	"fmt"
	"strings"

	"github.com/lu4p/cat"

	"github.com/custodia-labs/ragdoll/internal/core/domain"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
)

// Docx extracts word-processor documents. Page numbers are not
// recoverable from these formats; everything lands in one unpaged
// block.
type Docx struct{}

var _ driven.Extractor = Docx{}

// NewDocx creates the word-processor extractor.
func NewDocx() Docx {
	return Docx{}
}

// Extensions returns the handled extensions.
func (Docx) Extensions() []string {
	return []string{".docx", ".odt", ".rtf"}
}

// Extract returns the document text as a single block.
func (d Docx) Extract(path string) (*domain.StructuredDocument, error) {
	text, err := d.ExtractText(path)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return &domain.StructuredDocument{}, nil
	}
	return &domain.StructuredDocument{
		TextBlocks: []domain.TextBlock{{Text: text}},
	}, nil
}

// ExtractText extracts the document's plain text.
func (Docx) ExtractText(path string) (string, error) {
	text, err := cat.File(path)
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", path, err)
	}
	return strings.TrimSpace(text), nil
}
