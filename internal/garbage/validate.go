package garbage

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/ragdoll/internal/core/domain"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
)

// validatePromptTextLimit bounds what one validation request sends.
const validatePromptTextLimit = 500

// validate asks the text-generation service for a binary verdict on
// whether the candidate expresses a coherent, retrievable idea.
// The stage is advisory: with no service configured, or on any
// service failure, the candidate is accepted.
func (f *Filter) validate(ctx context.Context, c domain.Candidate) bool {
	if f.llm == nil {
		return true
	}

	text := c.Text
	if len(text) > validatePromptTextLimit {
		text = text[:validatePromptTextLimit]
	}
	prompt := fmt.Sprintf(
		"Does this text express a coherent, retrievable idea that could be useful for information retrieval?\n\nText: %s\n\nRespond with only YES or NO:",
		text,
	)

	raw, err := f.llm.Generate(ctx, prompt, driven.GenerateOptions{})
	if err != nil {
		if f.actionLog != nil {
			f.actionLog.Log("garbage_validate_error", map[string]any{"error": err.Error()})
		}
		return true
	}
	return strings.Contains(strings.ToUpper(raw), "YES")
}
