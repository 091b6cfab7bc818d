package chunker

import (
	"regexp"
	"strings"
)

var mdHeaderRe = regexp.MustCompile(`^#+\s*\S`)

// commonSectionTitles is the closed set of titles recognised as
// headers regardless of shape.
var commonSectionTitles = map[string]bool{
	"key terms":    true,
	"overview":     true,
	"summary":      true,
	"introduction": true,
	"background":   true,
	"key concepts": true,
	"key points":   true,
	"glossary":     true,
	"definitions":  true,
	"references":   true,
}

// looksLikeSectionHeader reports whether a block is a short
// title/header that should stay with the content that follows it.
func looksLikeSectionHeader(block string) bool {
	block = strings.TrimSpace(block)
	if block == "" {
		return false
	}
	var lines []string
	for _, ln := range strings.Split(block, "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}
	switch len(lines) {
	case 1:
		line := lines[0]
		if mdHeaderRe.MatchString(line) {
			return true
		}
		if len(line) > 80 {
			return false
		}
		if strings.HasSuffix(line, ":") {
			return true
		}
		if commonSectionTitles[strings.ToLower(line)] {
			return true
		}
		// Short line with no sentence-ending punctuation reads as a
		// title.
		if len(line) <= 60 && !strings.ContainsAny(line, ".!?") {
			return true
		}
	case 2:
		// Title plus subtitle.
		if len(lines[0]) <= 60 && len(lines[1]) <= 60 {
			return true
		}
	}
	return false
}

// mergeHeaderBlocks merges header-like blocks into the next block so
// section headers never become standalone chunks.
func mergeHeaderBlocks(blocks []string) []string {
	if len(blocks) == 0 {
		return nil
	}
	out := make([]string, 0, len(blocks))
	for i := 0; i < len(blocks); i++ {
		b := blocks[i]
		if looksLikeSectionHeader(b) && i+1 < len(blocks) {
			out = append(out, strings.TrimSpace(b)+"\n\n"+strings.TrimSpace(blocks[i+1]))
			i++
			continue
		}
		out = append(out, b)
	}
	return out
}
