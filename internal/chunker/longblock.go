package chunker

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
)

// llmSplitMaxInputTokens bounds what one split request sends, leaving
// context room for the prompt and the response.
const llmSplitMaxInputTokens = 3500

const llmSplitPrompt = `Split the following text into 2 or 3 coherent semantic segments. Each segment should be self-contained. Return ONLY valid JSON in this exact format, no other text:
{"chunks": ["first segment text", "second segment text"]}

Text to split:
`

// llmSplitResponse is the strict shape expected from the service.
// A response that does not decode into it, or decodes with non-string
// or empty chunks, is rejected as a unit.
type llmSplitResponse struct {
	Chunks []string `json:"chunks"`
}

// splitLongBlock splits a block that exceeds the hard token budget
// into 2-3 pieces. It asks the text-generation service first and
// falls back to a midpoint split at a sentence or word boundary.
func (c *Chunker) splitLongBlock(ctx context.Context, block string) []string {
	if sub, err := c.llmSplit(ctx, block); err == nil {
		c.logChunkLLM(block, len(sub), false)
		return sub
	}
	sub := midSplit(block)
	c.logChunkLLM(block, len(sub), true)
	return sub
}

// llmSplit asks the service for a JSON chunk array. Any failure mode
// (no service, request error, empty output, invalid JSON, wrong
// shape) returns an error so the caller picks the fallback branch.
func (c *Chunker) llmSplit(ctx context.Context, block string) ([]string, error) {
	if c.llm == nil {
		return nil, fmt.Errorf("split block: no generation service")
	}

	text := block
	if maxIn := llmSplitMaxInputTokens * CharsPerToken; len(text) > maxIn {
		text = text[:maxIn] + "\n[...truncated...]"
	}

	raw, err := c.llm.Generate(ctx, llmSplitPrompt+text, driven.GenerateOptions{JSONFormat: true})
	if err != nil {
		return nil, fmt.Errorf("split block: %w", err)
	}
	raw = StripCodeFences(raw)
	if raw == "" {
		return nil, fmt.Errorf("split block: empty response")
	}

	var resp llmSplitResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("split block: invalid JSON: %w", err)
	}
	out := make([]string, 0, len(resp.Chunks))
	for _, s := range resp.Chunks {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("split block: no chunks in response")
	}
	return out, nil
}

// midSplit halves a block at the sentence, line or word boundary
// nearest its midpoint (search window ±200 characters). When no
// boundary exists it cuts at the midpoint exactly.
func midSplit(text string) []string {
	mid := len(text) / 2
	lo := mid - snapWindow
	if lo < 0 {
		lo = 0
	}
	hi := mid + snapWindow
	if hi > len(text) {
		hi = len(text)
	}
	for _, sep := range []string{". ", ".\n", "\n", " "} {
		if i := strings.Index(text[lo:hi], sep); i != -1 {
			cut := lo + i + len(sep)
			return trimPair(text[:cut], text[cut:])
		}
	}
	return trimPair(text[:mid], text[mid:])
}

func trimPair(a, b string) []string {
	out := make([]string, 0, 2)
	if a = strings.TrimSpace(a); a != "" {
		out = append(out, a)
	}
	if b = strings.TrimSpace(b); b != "" {
		out = append(out, b)
	}
	return out
}

var codeFenceRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// StripCodeFences unwraps a response the service wrapped in a
// markdown code fence, and trims surrounding whitespace. Input
// without fences is returned trimmed.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "```") {
		if m := codeFenceRe.FindStringSubmatch(s); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return s
}

func (c *Chunker) logChunkLLM(input string, numChunks int, fallback bool) {
	if c.log == nil {
		return
	}
	c.log.Log("chunk_llm", map[string]any{
		"input_len":  len(input),
		"num_chunks": numChunks,
		"fallback":   fallback,
	})
}
