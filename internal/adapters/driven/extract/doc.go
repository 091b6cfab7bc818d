// Package extract provides per-format content extractors and the
// registry that selects one by file extension. Extractors return a
// structured document; a document with nothing embeddable is a valid
// outcome and the pipeline falls back to plain-text extraction.
package extract
