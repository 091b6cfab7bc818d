// Package interpret turns non-text document regions (charts, tables,
// figures) into embeddable prose summaries, and produces one-sentence
// document summaries. All generation is qualitative: the prompts
// forbid inventing numbers, steps or relationships, and every call
// degrades to a deterministic fallback when the service fails.
package interpret

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/ragdoll/internal/core/domain"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
)

// Input bounds keep prompts and stored summaries small.
const (
	docSummaryMaxChars      = 12000
	docSummaryResponseChars = 200
	tableMaxRows            = 20
	fallbackTextChars       = 500
)

const antiHallucination = "Do not invent values, steps, or relationships. " +
	"If something is unclear, say so. Be neutral and descriptive rather than evaluative. " +
	"Focus on what is present, not what is missing or problematic."

// Interpreter summarises artifacts and documents via a text-generation
// service. A nil service is valid; every method then returns its
// deterministic fallback.
type Interpreter struct {
	llm       driven.LLMService
	actionLog driven.ActionLog
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithActionLog records one entry per interpretation call.
func WithActionLog(log driven.ActionLog) Option {
	return func(i *Interpreter) { i.actionLog = log }
}

// New creates an Interpreter. llm may be nil.
func New(llm driven.LLMService, opts ...Option) *Interpreter {
	i := &Interpreter{llm: llm}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// SummariseDocument produces a one-sentence summary of the document
// text, suitable for prepending to every chunk. Returns "" when no
// summary could be produced; callers skip the prefix then.
func (i *Interpreter) SummariseDocument(ctx context.Context, documentText, filename string) string {
	text := strings.TrimSpace(documentText)
	if text == "" {
		return ""
	}
	if len(text) > docSummaryMaxChars {
		text = text[:docSummaryMaxChars] + "\n\n[... document truncated ...]"
	}

	var b strings.Builder
	b.WriteString("Summarize the following document in exactly one short sentence. ")
	b.WriteString("Keep it as short as possible. ")
	b.WriteString("Be factual and descriptive. Reply with only that one sentence, no preamble or labels.\n\n")
	if fn := strings.TrimSpace(filename); fn != "" {
		fmt.Fprintf(&b, "Document filename: %s\n\n", fn)
	}
	b.WriteString("Document:\n\n")
	b.WriteString(text)

	out := i.generate(ctx, b.String())
	if out == "" {
		return ""
	}

	summary := firstSentence(out)
	if len(summary) > docSummaryResponseChars {
		summary = truncateAtWord(summary, docSummaryResponseChars-1)
		if summary != "" && !strings.HasSuffix(summary, ".") {
			summary += "."
		}
	}
	i.log("summarize_document", nil)
	return summary
}

// Chart produces a qualitative summary of a chart from its OCR text.
func (i *Interpreter) Chart(ctx context.Context, ocrText, filename string) string {
	var b strings.Builder
	b.WriteString("You are summarizing a chart or graph. Use ONLY the OCR text from the chart (titles, axis labels, legends, annotations).\n")
	if filename != "" {
		fmt.Fprintf(&b, "Source filename: %s\n\n", filename)
	}
	b.WriteString("Output a short qualitative summary: what is being compared, major trends, outliers, and any annotations. ")
	b.WriteString("Include relevant context from the filename if it provides useful information. ")
	b.WriteString("Do NOT guess or invent specific numbers from bars or lines. ")
	b.WriteString(antiHallucination)
	b.WriteString("\n\nReply with only your summary, no JSON and no preamble.\n\nOCR text:\n")
	b.WriteString(orPlaceholder(ocrText))

	if summary := i.generate(ctx, b.String()); summary != "" {
		i.log("interpret_chart", nil)
		return summary
	}
	i.log("interpret_chart", map[string]any{"fallback": true})
	return "Chart: " + fallbackBody(ocrText) + "."
}

// Figure infers the process a figure or diagram depicts from its OCR
// text. Returns the summary for embedding plus the structured process
// for the artifact store.
func (i *Interpreter) Figure(ctx context.Context, ocrText, filename string) (string, domain.FigureProcess) {
	process := domain.FigureProcess{
		Steps:     []string{},
		Decisions: []string{},
		Actors:    []string{},
		EndStates: []string{},
	}

	var b strings.Builder
	b.WriteString("You are analyzing a figure or process diagram. Use ONLY the OCR text from the diagram.\n")
	if filename != "" {
		fmt.Fprintf(&b, "Source filename: %s\n\n", filename)
	}
	b.WriteString("Infer: steps, decisions (with conditions), actors, and end states. If order or branching is unclear, state the uncertainty. ")
	b.WriteString("Include relevant context from the filename if it provides useful information. ")
	b.WriteString(antiHallucination)
	b.WriteString("\n\nReply with only your process summary, no JSON and no preamble.\n\nOCR text:\n")
	b.WriteString(orPlaceholder(ocrText))

	if summary := i.generate(ctx, b.String()); summary != "" {
		i.log("interpret_figure", nil)
		return summary, process
	}
	i.log("interpret_figure", map[string]any{"fallback": true})
	return "Figure: " + fallbackBody(ocrText) + ".", process
}

// Table summarises a table's purpose, metrics and comparisons from
// its cells. Large tables are truncated to their first rows.
func (i *Interpreter) Table(ctx context.Context, rows [][]string, filename string) string {
	shown := rows
	if len(shown) > tableMaxRows {
		shown = shown[:tableMaxRows]
	}
	var lines []string
	for _, row := range shown {
		lines = append(lines, strings.Join(row, "\t"))
	}
	tbl := strings.Join(lines, "\n")
	if len(rows) > tableMaxRows {
		tbl += fmt.Sprintf("\n... (%d more rows)", len(rows)-tableMaxRows)
	}

	var b strings.Builder
	b.WriteString("You are summarizing a table. Use only the provided cells.\n")
	if filename != "" {
		fmt.Fprintf(&b, "Source filename: %s\n\n", filename)
	}
	b.WriteString("Output: purpose of the table, main metrics, key comparisons or rankings, and any trends or notes. ")
	b.WriteString("Include relevant context from the filename if it provides useful information. ")
	b.WriteString("Do not invent or guess values that are not in the table. ")
	b.WriteString(antiHallucination)
	b.WriteString("\n\nReply with only your summary, no JSON and no preamble.\n\nTable (tab-separated):\n")
	b.WriteString(tbl)

	if summary := i.generate(ctx, b.String()); summary != "" {
		i.log("interpret_table", map[string]any{"rows": len(rows)})
		return summary
	}
	i.log("interpret_table", map[string]any{"fallback": true})

	flat := strings.ReplaceAll(tbl, "\n", " ")
	if len(flat) > 400 {
		flat = flat[:400]
	}
	if flat == "" {
		flat = "empty"
	}
	return "Table: " + flat
}

// generate runs one completion, treating a nil service, an error and
// empty output identically as "no summary".
func (i *Interpreter) generate(ctx context.Context, prompt string) string {
	if i.llm == nil {
		return ""
	}
	out, err := i.llm.Generate(ctx, prompt, driven.GenerateOptions{})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

func (i *Interpreter) log(action string, fields map[string]any) {
	if i.actionLog == nil {
		return
	}
	merged := map[string]any{}
	if i.llm != nil {
		merged["model"] = i.llm.ModelName()
	}
	for k, v := range fields {
		merged[k] = v
	}
	i.actionLog.Log(action, merged)
}

// firstSentence keeps only the first sentence of a multi-sentence
// reply, ensuring it ends with a period.
func firstSentence(s string) string {
	first, _, found := strings.Cut(s, ". ")
	first = strings.TrimSpace(first)
	if first == "" {
		return s
	}
	if found && !strings.HasSuffix(first, ".") {
		first += "."
	}
	if !strings.HasSuffix(first, ".") {
		first += "."
	}
	return first
}

// truncateAtWord cuts s to at most n bytes, backing up to the last
// word boundary.
func truncateAtWord(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}

func orPlaceholder(ocr string) string {
	if t := strings.TrimSpace(ocr); t != "" {
		return t
	}
	return "(no text detected)"
}

func fallbackBody(ocr string) string {
	t := strings.TrimSpace(ocr)
	if t == "" {
		return "no OCR text"
	}
	if len(t) > fallbackTextChars {
		t = strings.TrimSpace(t[:fallbackTextChars])
	}
	return t
}
