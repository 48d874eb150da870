package llm

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type llmMetrics struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestErrors   metric.Int64Counter
}

// instruments are created once; concurrent dispatcher workers all record
// through the same set
var llmMetricsOnce sync.Once
var llmMetricsInit = false
var llmMetricsInstruments llmMetrics

func initLLMMetrics() {
	meter := otel.Meter("github.com/scribeflow/scribeflow/backend/llm")

	requestCount, err := meter.Int64Counter(
		"ai.request.count",
		metric.WithDescription("Number of LLM provider requests"),
	)
	if err != nil {
		return
	}
	requestDuration, err := meter.Float64Histogram(
		"ai.request.duration",
		metric.WithDescription("LLM provider request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return
	}
	requestErrors, err := meter.Int64Counter(
		"ai.request.errors",
		metric.WithDescription("Number of LLM provider request errors"),
	)
	if err != nil {
		return
	}

	llmMetricsInstruments = llmMetrics{
		requestCount:    requestCount,
		requestDuration: requestDuration,
		requestErrors:   requestErrors,
	}
	llmMetricsInit = true
}

func recordLLMMetric(ctx context.Context, provider, model string, statusCode int, duration time.Duration, err error) {
	llmMetricsOnce.Do(initLLMMetrics)
	if !llmMetricsInit {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("ai.provider", provider),
		attribute.String("ai.model", model),
	}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", statusCode))
	}

	llmMetricsInstruments.requestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	llmMetricsInstruments.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		llmMetricsInstruments.requestErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
