package extract

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dslipak/pdf"

	"github.com/custodia-labs/ragdoll/internal/core/domain"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
	"github.com/custodia-labs/ragdoll/internal/logger"
)

// pageExtractTimeout bounds text extraction for one page; malformed
// pages can send the parser spinning.
const pageExtractTimeout = 10 * time.Second

// PDF extracts text from PDF files page by page.
type PDF struct{}

var _ driven.Extractor = PDF{}

// NewPDF creates the PDF extractor.
func NewPDF() PDF {
	return PDF{}
}

// Extensions returns the handled extensions.
func (PDF) Extensions() []string {
	return []string{".pdf"}
}

// Extract returns one text block per page that yields text. Pages
// that fail to parse are skipped, not fatal.
func (PDF) Extract(path string) (*domain.StructuredDocument, error) {
	f, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}

	doc := &domain.StructuredDocument{}
	numPages := f.NumPage()
	for i := 1; i <= numPages; i++ {
		page := f.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := extractPage(page)
		if err != nil {
			logger.Warn("pdf: page %d of %s: %v", i, path, err)
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		n := i
		doc.TextBlocks = append(doc.TextBlocks, domain.TextBlock{Text: content, Page: &n})
	}
	return doc, nil
}

// ExtractText joins all page texts with paragraph breaks.
func (p PDF) ExtractText(path string) (string, error) {
	doc, err := p.Extract(path)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(doc.TextBlocks))
	for _, b := range doc.TextBlocks {
		parts = append(parts, b.Text)
	}
	return strings.Join(parts, "\n\n"), nil
}

// extractPage runs GetPlainText with a timeout guard.
func extractPage(page pdf.Page) (string, error) {
	type result struct {
		content string
		err     error
	}
	resChan := make(chan result, 1)

	go func() {
		content, err := page.GetPlainText(nil)
		resChan <- result{content, err}
	}()

	select {
	case r := <-resChan:
		return r.content, r.err
	case <-time.After(pageExtractTimeout):
		return "", errors.New("page extraction timed out")
	}
}
