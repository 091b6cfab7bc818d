// Package file stores raw chunk artifacts (chart images, table JSON,
// figure images and process JSON) on disk under a collection's
// artifacts directory. Summaries of these artifacts are what gets
// embedded; the files here are the originals they point back to.
package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/custodia-labs/ragdoll/internal/core/domain"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
)

// Subdirectory per artifact kind.
const (
	chartsSubdir  = "charts"
	tablesSubdir  = "tables"
	figuresSubdir = "figures"
)

var _ driven.ArtifactStore = (*Store)(nil)

var unsafeStemChars = regexp.MustCompile(`[^\w\-.]`)

// Store writes artifacts under dir/{charts,tables,figures}.
type Store struct {
	dir string
}

// New creates an artifact store rooted at the given directory,
// normally <collection>/artifacts.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// StoreChart saves a chart image as
// charts/<stem>_p<page>_<idx>.<ext>. Unknown image extensions fall
// back to png.
func (s *Store) StoreChart(sourceStem string, page, idx int, image []byte, ext string) (string, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch ext {
	case "png", "jpg", "jpeg", "gif", "bmp", "tiff":
	default:
		ext = "png"
	}

	path, err := s.preparePath(chartsSubdir, sourceStem, page, idx, ext)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return "", fmt.Errorf("failed to write chart image: %w", err)
	}
	return path, nil
}

// StoreTable saves table rows as tables/<stem>_p<page>_<idx>.json.
func (s *Store) StoreTable(sourceStem string, page, idx int, rows [][]string) (string, error) {
	path, err := s.preparePath(tablesSubdir, sourceStem, page, idx, "json")
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("failed to encode table: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write table: %w", err)
	}
	return path, nil
}

// StoreFigure saves the figure image next to a JSON file carrying the
// inferred process and the OCR text. The JSON path is returned; the
// image shares its base name.
func (s *Store) StoreFigure(sourceStem string, page, idx int, image []byte, process domain.FigureProcess, ocr string) (string, error) {
	imgPath, err := s.preparePath(figuresSubdir, sourceStem, page, idx, "png")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(imgPath, image, 0o644); err != nil {
		return "", fmt.Errorf("failed to write figure image: %w", err)
	}

	payload := struct {
		Process domain.FigureProcess `json:"process"`
		OCR     string               `json:"ocr"`
	}{Process: process, OCR: ocr}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode figure: %w", err)
	}

	jsonPath := strings.TrimSuffix(imgPath, ".png") + ".json"
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write figure: %w", err)
	}
	return jsonPath, nil
}

func (s *Store) preparePath(subdir, sourceStem string, page, idx int, ext string) (string, error) {
	dir := filepath.Join(s.dir, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	name := fmt.Sprintf("%s_p%d_%d.%s", safeStem(sourceStem), page, idx, ext)
	return filepath.Join(dir, name), nil
}

// safeStem maps a source filename stem to a filesystem-safe name,
// capped at 80 characters.
func safeStem(stem string) string {
	s := unsafeStemChars.ReplaceAllString(stem, "_")
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}
