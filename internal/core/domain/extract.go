package domain

// TextBlock is one extracted prose block with an optional page number.
type TextBlock struct {
	Text string
	Page *int
}

// ChartRegion is an extracted chart image.
type ChartRegion struct {
	ImageBytes []byte
	ImageExt   string
	Page       *int
}

// TableRegion is an extracted table as rows of string cells.
type TableRegion struct {
	Rows [][]string
	Page *int
}

// FigureRegion is an extracted figure or process diagram image.
type FigureRegion struct {
	ImageBytes []byte
	ImageExt   string
	Page       *int
}

// ImageRegion is an embedded image of unknown kind; the pipeline
// classifies and routes it.
type ImageRegion struct {
	ImageBytes []byte
	ImageExt   string
	Page       *int
}

// StructuredDocument is the extractor's view of one file: prose blocks
// plus non-text regions. A document with no embeddable content is a
// valid outcome, not an error; the pipeline falls back to plain-text
// extraction.
type StructuredDocument struct {
	TextBlocks    []TextBlock
	ChartRegions  []ChartRegion
	TableRegions  []TableRegion
	FigureRegions []FigureRegion
	ImageRegions  []ImageRegion
}

// HasEmbeddable reports whether the document carries anything worth
// chunking or summarising.
func (d *StructuredDocument) HasEmbeddable() bool {
	if d == nil {
		return false
	}
	return len(d.TextBlocks) > 0 || len(d.ChartRegions) > 0 ||
		len(d.TableRegions) > 0 || len(d.FigureRegions) > 0 || len(d.ImageRegions) > 0
}
