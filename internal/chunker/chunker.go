package chunker

import (
	"context"
	"strings"

	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
)

// Default token budgets.
const (
	DefaultTargetTokens = 400
	DefaultMaxTokens    = 600
	DefaultWindowSize   = 10000
	DefaultWindowFloor  = 1500
)

// Chunker splits document text into bounded chunks.
type Chunker struct {
	targetTokens int
	maxTokens    int
	windowSize   int
	windowFloor  int
	llm          driven.LLMService
	log          driven.ActionLog
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithTargetTokens sets the accumulation budget for the deterministic
// splitter.
func WithTargetTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.targetTokens = n
		}
	}
}

// WithMaxTokens sets the hard per-chunk budget.
func WithMaxTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithWindowSize sets the semantic-split window size in characters.
func WithWindowSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.windowSize = n
		}
	}
}

// WithLLM provides the text-generation service used for semantic
// splitting of long blocks. When nil the deterministic fallbacks are
// used everywhere.
func WithLLM(svc driven.LLMService) Option {
	return func(c *Chunker) { c.llm = svc }
}

// WithActionLog provides the per-collection action log.
func WithActionLog(log driven.ActionLog) Option {
	return func(c *Chunker) { c.log = log }
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		targetTokens: DefaultTargetTokens,
		maxTokens:    DefaultMaxTokens,
		windowSize:   DefaultWindowSize,
		windowFloor:  DefaultWindowFloor,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxTokens < c.targetTokens {
		c.maxTokens = c.targetTokens
	}
	return c
}

// Split is the deterministic splitter. It cleans nothing: callers
// pass prose (see Clean). Blocks are blank-line paragraphs; header
// blocks merge forward; consecutive blocks accumulate until the
// target token budget; a single block over the hard maximum is split
// via the text-generation service, falling back to a midpoint split.
//
// Concatenating the output (ignoring whitespace) reproduces all
// non-whitespace input characters.
func (c *Chunker) Split(ctx context.Context, text string) []string {
	blocks := c.splitBlocks(text)
	if len(blocks) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current = nil
			currentTokens = 0
		}
	}

	for _, block := range blocks {
		blockTokens := TokensApprox(block)

		if blockTokens > c.maxTokens {
			flush()
			for _, sub := range c.splitLongBlock(ctx, block) {
				if TokensApprox(sub) <= c.maxTokens {
					chunks = append(chunks, sub)
					continue
				}
				// One more level; beyond that a midpoint split
				// always halves, so depth is bounded.
				chunks = append(chunks, c.splitLongBlock(ctx, sub)...)
			}
			continue
		}

		if currentTokens+blockTokens > c.targetTokens && len(current) > 0 {
			flush()
		}
		current = append(current, block)
		currentTokens += blockTokens
	}
	flush()

	out := chunks[:0]
	for _, ch := range chunks {
		if strings.TrimSpace(ch) != "" {
			out = append(out, ch)
		}
	}
	return out
}

// splitBlocks splits text into paragraph blocks. Oversized blocks are
// further split on single newlines. Header-like blocks are merged
// with the block that follows them.
func (c *Chunker) splitBlocks(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var blocks []string
	for _, b := range splitParagraphs(text) {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		if TokensApprox(b) > c.maxTokens*2 {
			for _, line := range strings.Split(b, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					blocks = append(blocks, line)
				}
			}
			continue
		}
		blocks = append(blocks, b)
	}
	return mergeHeaderBlocks(blocks)
}

// splitParagraphs splits on blank lines (a newline, optional
// whitespace, another newline).
func splitParagraphs(text string) []string {
	var parts []string
	lines := strings.Split(text, "\n")
	var buf []string
	for _, ln := range lines {
		if strings.TrimSpace(ln) == "" {
			if len(buf) > 0 {
				parts = append(parts, strings.Join(buf, "\n"))
				buf = buf[:0]
			}
			continue
		}
		buf = append(buf, ln)
	}
	if len(buf) > 0 {
		parts = append(parts, strings.Join(buf, "\n"))
	}
	return parts
}
