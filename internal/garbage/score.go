package garbage

import (
	"regexp"
	"strings"
)

var sentenceSplitRe = regexp.MustCompile(`[.!?]+`)

// Score rates a text's overall meaningfulness in [0, 1]. Higher is
// more meaningful. Signals: length (up to 0.3), lexical diversity
// (up to 0.3), sentence structure (up to 0.2) and stopword balance
// (up to 0.2).
func Score(text string) float64 {
	if text == "" {
		return 0
	}

	score := 0.0

	switch n := len(text); {
	case n >= 200:
		score += 0.3
	case n >= 100:
		score += 0.2
	case n >= 50:
		score += 0.1
	}

	score += lexicalDiversity(text) * 0.3

	var sentences []string
	for _, s := range sentenceSplitRe.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) >= 2 {
		total := 0
		for _, s := range sentences {
			total += len(strings.Fields(s))
		}
		avg := float64(total) / float64(len(sentences))
		switch {
		case avg >= 5 && avg <= 30:
			score += 0.2
		case avg >= 3 && avg <= 50:
			score += 0.1
		}
	}

	score += (1 - stopwordRatio(text)) * 0.2

	if score > 1 {
		score = 1
	}
	return score
}
