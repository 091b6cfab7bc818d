package garbage

import (
	"regexp"
	"strings"

	"github.com/custodia-labs/ragdoll/internal/core/domain"
)

// stopwords covers common English function words.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "should": true, "could": true,
	"may": true, "might": true, "must": true, "can": true, "this": true,
	"that": true, "these": true, "those": true, "it": true, "its": true,
	"they": true, "them": true, "their": true, "there": true, "then": true,
	"than": true, "what": true, "which": true, "who": true, "when": true,
	"where": true, "why": true, "how": true, "as": true, "if": true,
	"so": true, "not": true, "no": true, "yes": true, "up": true,
	"down": true, "out": true, "off": true, "over": true, "under": true,
	"again": true, "further": true, "each": true, "both": true, "few": true,
	"more": true, "most": true, "other": true, "some": true, "such": true,
	"only": true, "own": true, "same": true, "too": true, "very": true,
	"just": true, "now": true, "here": true, "all": true, "any": true,
	"every": true,
}

var wordRe = regexp.MustCompile(`\b[a-zA-Z]+\b`)

// tokensApprox estimates subword tokens as words times 1.3.
func tokensApprox(text string) int {
	return int(float64(len(strings.Fields(text))) * 1.3)
}

// lexicalDiversity is unique words over total words, 0 for no words.
func lexicalDiversity(text string) float64 {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	if len(words) == 0 {
		return 0
	}
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[w] = true
	}
	return float64(len(seen)) / float64(len(words))
}

// stopwordRatio is stopwords over total words, 1 for no words.
func stopwordRatio(text string) float64 {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	if len(words) == 0 {
		return 1
	}
	n := 0
	for _, w := range words {
		if stopwords[w] {
			n++
		}
	}
	return float64(n) / float64(len(words))
}

// hasExcessiveRepetition reports whether any word of three or more
// characters makes up over half the text. Texts under ten words are
// exempt, the minimum-length rules cover those.
func hasExcessiveRepetition(text string) bool {
	words := strings.Fields(strings.ToLower(text))
	if len(words) < 10 {
		return false
	}
	counts := make(map[string]int)
	maxCount := 0
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		counts[w]++
		if counts[w] > maxCount {
			maxCount = counts[w]
		}
	}
	return maxCount*2 > len(words)
}

// isStructuralNoise flags header and navigation fragments: one or two
// very short lines, or all-caps text.
func isStructuralNoise(text string) bool {
	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}
	if len(lines) <= 2 {
		short := true
		for _, ln := range lines {
			if len(ln) >= 50 {
				short = false
				break
			}
		}
		if short {
			return true
		}
	}
	if len(text) > 20 && !strings.ContainsAny(text, "abcdefghijklmnopqrstuvwxyz") &&
		strings.ContainsAny(text, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		return true
	}
	return false
}

// Vocabulary a useful summary of each artifact kind is expected to
// draw on.
var (
	chartTrendWords = []string{
		"trend", "increase", "decrease", "compare", "comparison", "data",
		"shows", "indicates", "higher", "lower", "peak", "decline",
	}
	tablePurposeWords = []string{
		"table", "data", "shows", "contains", "purpose", "metric",
		"comparison", "ranking", "value",
	}
	figureProcessWords = []string{
		"step", "process", "decision", "flow", "action", "condition",
		"state", "workflow",
	}
)

func containsAnyWord(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// artifactVerdict applies per-kind vocabulary checks to summary
// artifacts. A summary that never touches its kind's vocabulary is
// treated as a failed generation.
func artifactVerdict(c domain.Candidate) (string, bool) {
	lower := strings.ToLower(c.Text)
	switch c.Artifact {
	case domain.ArtifactChartSummary:
		if !containsAnyWord(lower, chartTrendWords) {
			return "chart_summary_no_trends", true
		}
	case domain.ArtifactTableSummary:
		if !containsAnyWord(lower, tablePurposeWords) {
			return "table_summary_no_purpose", true
		}
	case domain.ArtifactFigureSummary:
		if !containsAnyWord(lower, figureProcessWords) {
			return "figure_summary_no_process", true
		}
	}
	return "", false
}

// rulesVerdict is the deterministic rejection stage. Rules run in a
// fixed order and the first hit wins.
func (f *Filter) rulesVerdict(c domain.Candidate) (string, bool) {
	text := c.Text

	if len(strings.TrimSpace(text)) < f.minChars {
		return "too_short_chars", true
	}
	if tokensApprox(text) < f.minTokens {
		return "too_short_tokens", true
	}
	if hasExcessiveRepetition(text) {
		return "excessive_repetition", true
	}
	if lexicalDiversity(text) < f.minDiversity {
		return "low_diversity", true
	}
	if stopwordRatio(text) > f.maxStopwordRatio {
		return "stopword_dominant", true
	}
	if isStructuralNoise(text) {
		return "structural_noise", true
	}
	return artifactVerdict(c)
}
