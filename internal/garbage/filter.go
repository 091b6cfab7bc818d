package garbage

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/ragdoll/internal/core/domain"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
)

// Default thresholds.
const (
	DefaultMinChars         = 20
	DefaultMinTokens        = 10
	DefaultMinDiversity     = 0.3
	DefaultMaxStopwordRatio = 0.7
	DefaultMinScore         = 0.3
)

// Filter runs candidate chunks through the staged garbage pipeline.
type Filter struct {
	minChars         int
	minTokens        int
	minDiversity     float64
	maxStopwordRatio float64
	minScore         float64

	llm        driven.LLMService
	garbageLog driven.GarbageLog
	actionLog  driven.ActionLog
}

// Option configures a Filter.
type Option func(*Filter)

// WithThresholds overrides the stage thresholds. Non-positive values
// keep the defaults.
func WithThresholds(minChars, minTokens int, minDiversity, maxStopwordRatio, minScore float64) Option {
	return func(f *Filter) {
		if minChars > 0 {
			f.minChars = minChars
		}
		if minTokens > 0 {
			f.minTokens = minTokens
		}
		if minDiversity > 0 {
			f.minDiversity = minDiversity
		}
		if maxStopwordRatio > 0 {
			f.maxStopwordRatio = maxStopwordRatio
		}
		if minScore > 0 {
			f.minScore = minScore
		}
	}
}

// WithLLMValidation enables the final validation stage using the
// given text-generation service. Nil leaves the stage disabled.
func WithLLMValidation(svc driven.LLMService) Option {
	return func(f *Filter) { f.llm = svc }
}

// WithGarbageLog provides the per-collection rejection log.
func WithGarbageLog(log driven.GarbageLog) Option {
	return func(f *Filter) { f.garbageLog = log }
}

// WithActionLog provides the per-collection action log.
func WithActionLog(log driven.ActionLog) Option {
	return func(f *Filter) { f.actionLog = log }
}

// New creates a filter with the given options.
func New(opts ...Option) *Filter {
	f := &Filter{
		minChars:         DefaultMinChars,
		minTokens:        DefaultMinTokens,
		minDiversity:     DefaultMinDiversity,
		maxStopwordRatio: DefaultMaxStopwordRatio,
		minScore:         DefaultMinScore,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Verdict is one candidate's filtering outcome. Rejections carry the
// stage and a short machine-readable reason.
type Verdict struct {
	Rejected bool
	Stage    string
	Reason   string
}

// Filter returns the candidates that survive all stages, preserving
// input order. Every rejection is written to the garbage log, and a
// summary action is logged when anything was rejected.
func (f *Filter) Filter(ctx context.Context, candidates []domain.Candidate, sourcePath string) []domain.Candidate {
	kept := make([]domain.Candidate, 0, len(candidates))
	rejected := 0

	for _, c := range candidates {
		v := f.Judge(ctx, c)
		if !v.Rejected {
			kept = append(kept, c)
			continue
		}
		rejected++
		f.logReject(c, v, sourcePath)
	}

	if rejected > 0 && f.actionLog != nil {
		f.actionLog.Log("garbage_filtered", map[string]any{
			"file":     sourcePath,
			"rejected": rejected,
			"kept":     len(kept),
		})
	}
	return kept
}

// Judge runs one candidate through the stages in order and returns
// the first rejection, or an accepting verdict.
func (f *Filter) Judge(ctx context.Context, c domain.Candidate) Verdict {
	if reason, bad := f.rulesVerdict(c); bad {
		return Verdict{Rejected: true, Stage: domain.GarbageStageRules, Reason: reason}
	}

	// Plain text skips the score stage so technical and list-heavy
	// content is not dropped; only summary artifacts are scored.
	if c.Artifact != domain.ArtifactText {
		if score := Score(c.Text); score < f.minScore {
			return Verdict{
				Rejected: true,
				Stage:    domain.GarbageStageScore,
				Reason:   fmt.Sprintf("low_score_%.2f", score),
			}
		}
	}

	if !f.validate(ctx, c) {
		return Verdict{Rejected: true, Stage: domain.GarbageStageValidation, Reason: "llm_rejected"}
	}
	return Verdict{}
}

func (f *Filter) logReject(c domain.Candidate, v Verdict, sourcePath string) {
	if f.garbageLog != nil {
		text := c.Text
		if len(text) > domain.GarbageLogTextLimit {
			text = text[:domain.GarbageLogTextLimit]
		}
		f.garbageLog.Append(domain.GarbageEntry{
			Timestamp:   time.Now().UTC(),
			Stage:       v.Stage,
			Reason:      v.Reason,
			Artifact:    c.Artifact,
			SourcePath:  sourcePath,
			Page:        c.Page,
			CandidateID: c.ID,
			Text:        text,
			TextLength:  len(c.Text),
		})
	}
	if f.actionLog != nil {
		f.actionLog.Log("garbage_reject", map[string]any{
			"stage":         v.Stage,
			"reason":        v.Reason,
			"artifact_type": string(c.Artifact),
			"text_length":   len(c.Text),
		})
	}
}
