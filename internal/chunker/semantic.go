package chunker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
)

// SemanticChunk is one chunk with the character offset where it was
// located inside the cleaned input, used for page mapping.
type SemanticChunk struct {
	Text   string
	Offset int
}

const semanticPrompt = `Split the following text into self-contained chunks for retrieval. Together the chunks must cover the full content of the text verbatim: do not paraphrase, do not drop content, and never emit a heading without the content that follows it. Return ONLY valid JSON in this exact format, no other text:
{"chunks": ["first chunk text", "second chunk text"]}

Text:
`

// SplitSemantic produces ordered chunks with offsets by windowing the
// text and asking the text-generation service to propose boundaries
// per window. The fallback ladder per window is explicit: service
// failure or unusable output falls back to the whole window when it
// fits the hard budget, and to the deterministic splitter otherwise.
//
// When preCleaned is false the text is cleaned first; offsets always
// refer to the cleaned text.
func (c *Chunker) SplitSemantic(ctx context.Context, text string, preCleaned bool) []SemanticChunk {
	if !preCleaned {
		text = Clean(text)
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []SemanticChunk
	for _, w := range c.windows(text) {
		proposed, err := c.llmProposeChunks(ctx, w.text)
		if err != nil {
			for _, fb := range c.windowFallback(ctx, w.text) {
				out = append(out, SemanticChunk{Text: fb.Text, Offset: w.offset + fb.Offset})
			}
			continue
		}
		for _, sc := range locateChunks(w.text, proposed) {
			out = append(out, SemanticChunk{Text: sc.Text, Offset: w.offset + sc.Offset})
		}
	}
	return out
}

// windowFallback is the deterministic ladder for one window: the
// whole window when it fits the hard budget, else the legacy
// splitter. Offsets are recovered by forward substring search over
// the window.
func (c *Chunker) windowFallback(ctx context.Context, window string) []SemanticChunk {
	if TokensApprox(window) <= c.maxTokens {
		return []SemanticChunk{{Text: strings.TrimSpace(window), Offset: 0}}
	}
	return locateChunks(window, c.Split(ctx, window))
}

// llmProposeChunks asks for a verbatim chunking of one window. Any
// failure returns an error so the caller picks the fallback branch.
func (c *Chunker) llmProposeChunks(ctx context.Context, window string) ([]string, error) {
	if c.llm == nil {
		return nil, fmt.Errorf("semantic split: no generation service")
	}
	raw, err := c.llm.Generate(ctx, semanticPrompt+window, driven.GenerateOptions{JSONFormat: true})
	if err != nil {
		return nil, fmt.Errorf("semantic split: %w", err)
	}
	raw = StripCodeFences(raw)
	if raw == "" {
		return nil, fmt.Errorf("semantic split: empty response")
	}
	var resp llmSplitResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("semantic split: invalid JSON: %w", err)
	}
	chunks := make([]string, 0, len(resp.Chunks))
	for _, s := range resp.Chunks {
		if s = strings.TrimSpace(s); s != "" {
			chunks = append(chunks, s)
		}
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("semantic split: no chunks in response")
	}
	return chunks, nil
}

// locateChunks recovers character offsets by searching for each chunk
// as a literal substring, starting from the end of the previous
// match. A chunk the service paraphrased (not found literally) gets
// the last known search position.
func locateChunks(window string, chunks []string) []SemanticChunk {
	out := make([]SemanticChunk, 0, len(chunks))
	searchFrom := 0
	for _, ch := range chunks {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		offset := searchFrom
		if i := strings.Index(window[searchFrom:], ch); i != -1 {
			offset = searchFrom + i
			searchFrom = offset + len(ch)
		}
		out = append(out, SemanticChunk{Text: ch, Offset: offset})
	}
	return out
}

// window is one windowing slice with its offset in the full text.
type textWindow struct {
	text   string
	offset int
}

// windows splits cleaned text into sequential windows of at most
// windowSize characters, cutting at the last paragraph boundary
// before the limit so a heading is never separated from its body
// across a seam. Remainders below the floor are merged into the
// previous window rather than emitted as degenerate slivers.
func (c *Chunker) windows(text string) []textWindow {
	if len(text) <= c.windowSize {
		return []textWindow{{text: text, offset: 0}}
	}
	var out []textWindow
	pos := 0
	for pos < len(text) {
		remaining := len(text) - pos
		if remaining <= c.windowSize {
			if remaining < c.windowFloor && len(out) > 0 {
				last := &out[len(out)-1]
				last.text = text[last.offset:]
				break
			}
			out = append(out, textWindow{text: text[pos:], offset: pos})
			break
		}
		cut := pos + c.windowSize
		if i := strings.LastIndex(text[pos:cut], "\n\n"); i != -1 && i >= c.windowFloor {
			cut = pos + i + 2
		} else {
			cut = SnapStart(text, cut)
			if cut <= pos {
				cut = pos + c.windowSize
			}
		}
		out = append(out, textWindow{text: text[pos:cut], offset: pos})
		pos = cut
	}
	return out
}
