package entities

import "time"

// Auto-quarantine thresholds. A model is disabled automatically when its
// rolling error rate exceeds half of a meaningful sample, or when it fails
// ten times in a row.
const (
	QuarantineErrorRate       = 0.5
	QuarantineMinRequests     = 10
	QuarantineConsecutiveMax  = 10
	latencySmoothingNewWeight = 0.1
)

// ModelDescriptor is the registry's record of one (provider, model) pair:
// whether it may be used, what it costs, its token limits, and its rolling
// health statistics. All mutations happen under a row lock in the registry
// adapter; callers mutate a locked copy via RecordSuccess/RecordFailure.
type ModelDescriptor struct {
	Provider          string    `json:"provider"`
	ModelKey          string    `json:"model_key"`
	DisplayName       string    `json:"display_name"`
	IsActive          bool      `json:"is_active"`
	PriceMultiplier   float64   `json:"price_multiplier"`
	MaxOutputTokens   int       `json:"max_output_tokens"`
	ContextLength     int       `json:"context_length"`
	TotalRequests     int64     `json:"total_requests"`
	TotalErrors       int64     `json:"total_errors"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	ErrorRate         float64   `json:"error_rate"`
	AvgLatencyMS      float64   `json:"avg_latency_ms"`
	DisabledReason    string    `json:"disabled_reason,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// RecordSuccess folds a successful call into the rolling statistics. The
// consecutive error counter resets and latency is smoothed with an
// exponential moving average.
func (m *ModelDescriptor) RecordSuccess(latencyMS int) {
	m.TotalRequests++
	m.ConsecutiveErrors = 0
	if m.TotalRequests > 0 {
		m.ErrorRate = float64(m.TotalErrors) / float64(m.TotalRequests)
	}
	if m.AvgLatencyMS == 0 {
		m.AvgLatencyMS = float64(latencyMS)
	} else {
		m.AvgLatencyMS = m.AvgLatencyMS*(1-latencySmoothingNewWeight) + float64(latencyMS)*latencySmoothingNewWeight
	}
}

// RecordFailure folds a failed call into the rolling statistics and applies
// the auto-quarantine policy. It returns true when this failure disabled the
// model; re-enabling requires an explicit admin action.
func (m *ModelDescriptor) RecordFailure(reason string) bool {
	m.TotalRequests++
	m.TotalErrors++
	m.ConsecutiveErrors++
	m.ErrorRate = float64(m.TotalErrors) / float64(m.TotalRequests)

	if !m.IsActive {
		return false
	}

	highErrorRate := m.ErrorRate > QuarantineErrorRate && m.TotalRequests >= QuarantineMinRequests
	tooManyConsecutive := m.ConsecutiveErrors >= QuarantineConsecutiveMax
	if highErrorRate || tooManyConsecutive {
		m.IsActive = false
		m.DisabledReason = "auto-quarantined: " + reason
		return true
	}

	return false
}
