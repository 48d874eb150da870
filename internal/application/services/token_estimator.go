package services

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/scribeflow/scribeflow/backend/pkg/config"
)

// TokenEstimator approximates vendor token counts without a network call.
// The ratios are chars-per-token per language; the inflation factor absorbs
// the gap between this heuristic and real tokenizers so the budget planner
// errs on the side of smaller prompts.
type TokenEstimator struct {
	ratios       map[string]float64
	defaultRatio float64
	inflation    float64
}

// NewTokenEstimator creates an estimator from configuration.
func NewTokenEstimator(cfg config.TokenizerConfig) *TokenEstimator {
	defaultRatio := cfg.DefaultCharsPerToken
	if defaultRatio <= 0 {
		defaultRatio = 4.0
	}
	inflation := cfg.InflationFactor
	if inflation < 1.0 {
		inflation = 1.3
	}
	return &TokenEstimator{
		ratios:       cfg.LanguageRatios,
		defaultRatio: defaultRatio,
		inflation:    inflation,
	}
}

// Estimate returns the estimated token count for text in the given language.
// It is deterministic, pure, and never returns 0 for non-empty input.
func (e *TokenEstimator) Estimate(text, language string) int {
	if text == "" {
		return 0
	}

	chars := utf8.RuneCountInString(text)
	tokens := int(math.Ceil(float64(chars) / e.ratioFor(language) * e.inflation))
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// CharsForTokens inverts Estimate: the number of characters that fit a token
// budget in the given language, inflation included. Used to derive chunk
// sizes from a per-chunk token target.
func (e *TokenEstimator) CharsForTokens(tokens int, language string) int {
	if tokens <= 0 {
		return 0
	}

	chars := int(float64(tokens) * e.ratioFor(language) / e.inflation)
	if chars < 1 {
		chars = 1
	}
	return chars
}

func (e *TokenEstimator) ratioFor(language string) float64 {
	lang := strings.ToLower(strings.TrimSpace(language))
	// "en-US" and "en" share a ratio
	if idx := strings.IndexAny(lang, "-_"); idx > 0 {
		lang = lang[:idx]
	}
	if ratio, ok := e.ratios[lang]; ok && ratio > 0 {
		return ratio
	}
	return e.defaultRatio
}
