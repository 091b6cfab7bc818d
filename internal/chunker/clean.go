package chunker

import (
	"regexp"
	"strings"
)

// CharsPerToken is the rough chars-per-token ratio for English text.
const CharsPerToken = 4

// TokensApprox estimates the token count of text. Always at least 1.
func TokensApprox(text string) int {
	n := len(text) / CharsPerToken
	if n < 1 {
		return 1
	}
	return n
}

var (
	mdImageRe   = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdLinkRe    = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	htmlTagRe   = regexp.MustCompile(`<[^>\n]{1,200}>`)
	spaceRunRe  = regexp.MustCompile(`[ \t]{2,}`)
	blankRunRe  = regexp.MustCompile(`\n{3,}`)
	trailWSRe   = regexp.MustCompile(`[ \t]+\n`)
	bareURLRe   = regexp.MustCompile(`https?://\S+`)
	emphasisRe  = regexp.MustCompile(`(\*{1,3}|_{1,3})(\S[^*_\n]*?\S|\S)(\*{1,3}|_{1,3})`)
	headerMarks = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
)

// Clean strips markup and link decoration and collapses whitespace
// runs while preserving paragraph boundaries, so boundary detection
// and generation prompts operate on prose rather than markup noise.
func Clean(text string) string {
	s := strings.ReplaceAll(text, "\r\n", "\n")
	s = mdImageRe.ReplaceAllString(s, "$1")
	s = mdLinkRe.ReplaceAllString(s, "$1")
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = emphasisRe.ReplaceAllString(s, "$2")
	s = headerMarks.ReplaceAllString(s, "")
	s = bareURLRe.ReplaceAllString(s, "")
	s = trailWSRe.ReplaceAllString(s, "\n")
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// snapWindow bounds how far a boundary search looks in each direction.
const snapWindow = 200

// SnapStart moves offset backwards to the nearest boundary: the
// character after a paragraph break, sentence end, or line break
// within the search window. If none exists the offset is returned
// unchanged.
func SnapStart(text string, offset int) int {
	if offset <= 0 || offset >= len(text) {
		return clamp(offset, 0, len(text))
	}
	lo := offset - snapWindow
	if lo < 0 {
		lo = 0
	}
	// Prefer the strongest boundary available.
	for _, sep := range []string{"\n\n", ". ", ".\n", "\n"} {
		if i := strings.LastIndex(text[lo:offset], sep); i != -1 {
			return lo + i + len(sep)
		}
	}
	return offset
}

// SnapEnd moves offset forward to just past the nearest boundary
// within the search window. If none exists the offset is returned
// unchanged.
func SnapEnd(text string, offset int) int {
	if offset <= 0 || offset >= len(text) {
		return clamp(offset, 0, len(text))
	}
	hi := offset + snapWindow
	if hi > len(text) {
		hi = len(text)
	}
	for _, sep := range []string{"\n\n", ". ", ".\n", "\n"} {
		if i := strings.Index(text[offset:hi], sep); i != -1 {
			return offset + i + len(sep)
		}
	}
	return offset
}

// SnapRange snaps an arbitrary (start, end) pair outward so neither
// offset lands strictly inside a word when a sentence or paragraph
// boundary exists within the search window.
func SnapRange(text string, start, end int) (int, int) {
	s := SnapStart(text, start)
	e := SnapEnd(text, end)
	if e < s {
		e = s
	}
	return s, e
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
