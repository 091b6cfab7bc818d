package extract

import (
	"fmt"
	"os"

	"github.com/custodia-labs/ragdoll/internal/core/domain"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
)

// PlainText extracts .txt and markdown files.
type PlainText struct{}

var _ driven.Extractor = PlainText{}

// NewPlainText creates the plain-text extractor.
func NewPlainText() PlainText {
	return PlainText{}
}

// Extensions returns the handled extensions.
func (PlainText) Extensions() []string {
	return []string{".txt", ".md", ".markdown"}
}

// Extract returns the file content as a single unpaged text block.
func (p PlainText) Extract(path string) (*domain.StructuredDocument, error) {
	text, err := p.ExtractText(path)
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

// ExtractText reads the whole file.
func (PlainText) ExtractText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}
