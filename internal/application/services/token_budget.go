package services

import (
	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	"github.com/scribeflow/scribeflow/backend/pkg/config"
)

// BudgetPlan is the token budget decision for one enhancement run.
type BudgetPlan struct {
	// SafeOutputTokens is the output ceiling to request per provider call.
	SafeOutputTokens int
	// MustChunk is set when the prompt cannot fit alongside a viable output
	// budget and the source text has to be split.
	MustChunk bool
	// MaxCharsPerChunk bounds each chunk when MustChunk is set.
	MaxCharsPerChunk int
}

// TokenBudgetPlanner decides whether a prompt fits a model's context window
// and what output ceiling to request. One chunking threshold applies
// uniformly to every operation type; exempting any operation from chunking
// is how context overflows happen.
type TokenBudgetPlanner struct {
	estimator        *TokenEstimator
	marginTokens     int
	minOutputTokens  int
	chunkTokenBudget int
}

// NewTokenBudgetPlanner creates a planner from configuration.
func NewTokenBudgetPlanner(estimator *TokenEstimator, cfg config.EnhancerConfig) *TokenBudgetPlanner {
	margin := cfg.SafetyMarginTokens
	if margin <= 0 {
		margin = 1500
	}
	minOutput := cfg.MinOutputTokens
	if minOutput <= 0 {
		minOutput = 512
	}
	chunkBudget := cfg.ChunkTokenBudget
	if chunkBudget <= 0 {
		chunkBudget = 2600
	}
	return &TokenBudgetPlanner{
		estimator:        estimator,
		marginTokens:     margin,
		minOutputTokens:  minOutput,
		chunkTokenBudget: chunkBudget,
	}
}

// Plan computes the budget for an estimated prompt size against a model's
// limits. The margin absorbs estimation error so the vendor never truncates.
func (p *TokenBudgetPlanner) Plan(estimatedPromptTokens int, model *entities.ModelDescriptor, language string) BudgetPlan {
	safe := model.ContextLength - estimatedPromptTokens - p.marginTokens
	if safe > model.MaxOutputTokens {
		safe = model.MaxOutputTokens
	}

	if safe >= p.minOutputTokens {
		return BudgetPlan{SafeOutputTokens: safe}
	}

	return BudgetPlan{
		MustChunk:        true,
		SafeOutputTokens: p.chunkOutputTokens(model),
		MaxCharsPerChunk: p.estimator.CharsForTokens(p.chunkTokenBudget, language),
	}
}

// chunkOutputTokens is the per-call output ceiling once the prompt is bounded
// by the chunk token budget.
func (p *TokenBudgetPlanner) chunkOutputTokens(model *entities.ModelDescriptor) int {
	safe := model.ContextLength - p.chunkTokenBudget - p.marginTokens
	if safe > model.MaxOutputTokens {
		safe = model.MaxOutputTokens
	}
	if safe < p.minOutputTokens {
		safe = p.minOutputTokens
	}
	return safe
}

// HalvedChunkSize returns the emergency chunk size used when a vendor still
// reports a token overflow despite the plan.
func (p *TokenBudgetPlanner) HalvedChunkSize(currentMaxChars int) int {
	half := currentMaxChars / 2
	if half < 1 {
		half = 1
	}
	return half
}
