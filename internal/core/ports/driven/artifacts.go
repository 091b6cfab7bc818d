package driven

import "github.com/custodia-labs/ragdoll/internal/core/domain"

// ArtifactStore persists raw non-text regions (chart images, table
// data, figure images) for one collection. Only the interpreted
// summaries are embedded; the raw material lives here for retrieval
// alongside query results.
type ArtifactStore interface {
	// StoreChart saves a chart image. Returns the stored path.
	StoreChart(sourceStem string, page, idx int, image []byte, ext string) (string, error)

	// StoreTable saves table rows as JSON. Returns the stored path.
	StoreTable(sourceStem string, page, idx int, rows [][]string) (string, error)

	// StoreFigure saves a figure image plus its inferred process
	// description and OCR text as JSON. Returns the JSON path.
	StoreFigure(sourceStem string, page, idx int, image []byte, process domain.FigureProcess, ocr string) (string, error)
}
