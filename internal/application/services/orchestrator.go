package services

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	"github.com/scribeflow/scribeflow/backend/internal/domain/providers"
	"github.com/scribeflow/scribeflow/backend/internal/domain/repositories"
	"github.com/scribeflow/scribeflow/backend/internal/infrastructure/observability"
	"github.com/scribeflow/scribeflow/backend/pkg/config"
	apperrors "github.com/scribeflow/scribeflow/backend/pkg/errors"
)

// Orchestrator drives one enhancement request through its state machine:
// CREATED, VALIDATING, CHUNKING when needed, CALLING, AGGREGATING, BILLING,
// DONE. Any failure transitions to ERRORED with the source text preserved
// and no billing. Jobs are independent; the only shared state is the model
// registry rows and the credit ledger.
type Orchestrator struct {
	registry       *RegistryService
	billing        *BillingService
	estimator      *TokenEstimator
	planner        *TokenBudgetPlanner
	chunker        *Chunker
	factory        providers.AdapterFactory
	transcriptions repositories.TranscriptionRepository
	errorLog       repositories.ErrorLogRepository
	jobs           repositories.JobRepository
	enricher       providers.ContextEnricher
	bus            providers.EventBus

	callTimeout time.Duration
	maxRetries  int
}

// OrchestratorDeps bundles the orchestrator's collaborators. Enricher and
// Bus are optional.
type OrchestratorDeps struct {
	Registry       *RegistryService
	Billing        *BillingService
	Estimator      *TokenEstimator
	Planner        *TokenBudgetPlanner
	Chunker        *Chunker
	Factory        providers.AdapterFactory
	Transcriptions repositories.TranscriptionRepository
	ErrorLog       repositories.ErrorLogRepository
	Jobs           repositories.JobRepository
	Enricher       providers.ContextEnricher
	Bus            providers.EventBus
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(deps OrchestratorDeps, cfg config.EnhancerConfig) *Orchestrator {
	timeout := time.Duration(cfg.CallTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Orchestrator{
		registry:       deps.Registry,
		billing:        deps.Billing,
		estimator:      deps.Estimator,
		planner:        deps.Planner,
		chunker:        deps.Chunker,
		factory:        deps.Factory,
		transcriptions: deps.Transcriptions,
		errorLog:       deps.ErrorLog,
		jobs:           deps.Jobs,
		enricher:       deps.Enricher,
		bus:            deps.Bus,
		callTimeout:    timeout,
		maxRetries:     retries,
	}
}

// Enqueue validates a request and persists a new job for background
// execution. An unusable model yields a job born ERRORED with code
// MODEL_UNAVAILABLE and no adapter call; an uncovered balance rejects the
// request without creating a job.
func (o *Orchestrator) Enqueue(ctx context.Context, req *entities.EnhancementRequest) (*entities.EnhancementJob, error) {
	if !req.Operation.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown operation %q", req.Operation))
	}
	if req.Provider == "" || req.ModelKey == "" {
		return nil, apperrors.NewValidationError("provider and model_key are required")
	}

	transcription, err := o.transcriptions.GetByID(ctx, req.TranscriptionID)
	if err != nil {
		return nil, err
	}
	if transcription.SourceText == "" {
		return nil, apperrors.NewValidationError("transcription has no text to enhance")
	}

	req.UserID = transcription.UserID
	req.SourceText = transcription.SourceText
	req.DurationSeconds = transcription.DurationSeconds
	req.SpeakerRecognition = transcription.SpeakerRecognition
	if req.Language == "" {
		req.Language = transcription.Language
	}

	now := time.Now().UTC()
	job := &entities.EnhancementJob{
		ID:        uuid.NewString(),
		Request:   *req,
		State:     entities.JobStateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}

	model, err := o.registry.IsUsable(ctx, req.Provider, req.ModelKey)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeValidation) || apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			job.State = entities.JobStateErrored
			job.Result = o.failedResult(req, entities.ErrCodeModelUnavailable, err.Error())
			if createErr := o.jobs.Create(ctx, job); createErr != nil {
				return nil, createErr
			}
			o.publish(ctx, job, entities.ErrCodeModelUnavailable)
			return job, nil
		}
		return nil, err
	}

	if err := o.billing.EnsureBalance(ctx, req.UserID, o.billing.Cost(req, model)); err != nil {
		return nil, err
	}

	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	o.publish(ctx, job, "")
	return job, nil
}

// GetJob retrieves a job with its result, if finished.
func (o *Orchestrator) GetJob(ctx context.Context, id string) (*entities.EnhancementJob, error) {
	return o.jobs.GetByID(ctx, id)
}

// Run executes one claimed job to a terminal state. It never returns a
// partial outcome: the job ends DONE with a billed result or ERRORED with
// the source text preserved.
func (o *Orchestrator) Run(ctx context.Context, job *entities.EnhancementJob) error {
	req := &job.Request
	logger := observability.LoggerFromContext(ctx)

	if err := o.transition(ctx, job, entities.JobStateValidating); err != nil {
		return err
	}

	// re-read per run; an admin flip or auto-quarantine since Enqueue wins
	model, err := o.registry.IsUsable(ctx, req.Provider, req.ModelKey)
	if err != nil {
		return o.fail(ctx, job, entities.ErrCodeModelUnavailable, err.Error(), 0)
	}

	adapter, err := o.factory.Adapter(req.Provider)
	if err != nil {
		return o.fail(ctx, job, entities.ErrCodeModelUnavailable, err.Error(), 0)
	}

	promptTokens := PromptOverheadTokens(o.estimator, req) + o.estimator.Estimate(req.SourceText, req.Language)
	plan := o.planner.Plan(promptTokens, model, req.Language)

	chunks := []entities.Chunk{{Index: 0, Total: 1, Text: req.SourceText}}
	if plan.MustChunk {
		if err := o.transition(ctx, job, entities.JobStateChunking); err != nil {
			return err
		}
		chunks = o.chunker.Split(req.SourceText, plan.MaxCharsPerChunk)
	}

	if err := o.transition(ctx, job, entities.JobStateCalling); err != nil {
		return err
	}

	parts, failedIndex, err := o.processChunks(ctx, job, model, adapter, chunks, plan)
	if err != nil {
		return o.fail(ctx, job, providers.CodeOf(err), err.Error(), failedIndex)
	}

	if err := o.transition(ctx, job, entities.JobStateAggregating); err != nil {
		return err
	}
	text, concepts := o.chunker.Recombine(req.Operation, parts)
	if text == "" {
		return o.fail(ctx, job, entities.ErrCodeEmptyResponse, "provider returned no usable text", 0)
	}

	result := &entities.EnhancementResult{
		EnhancedText:    text,
		KeyConcepts:     concepts,
		ChunksProcessed: len(parts),
		ProviderUsed:    req.Provider,
		ModelUsed:       req.ModelKey,
	}
	if req.Operation == entities.OperationSummary {
		result.Summary = text
	}

	if err := o.transition(ctx, job, entities.JobStateBilling); err != nil {
		return err
	}

	job.Result = result
	job.State = entities.JobStateDone
	job.UpdatedAt = time.Now().UTC()
	if err := o.billing.Commit(ctx, job, o.billing.Cost(req, model)); err != nil {
		// the debit did not commit, so nothing was charged
		return o.fail(ctx, job, entities.ErrCodeUnknown, "billing failed: "+err.Error(), 0)
	}

	o.publish(ctx, job, "")
	logger.Info().
		Str("job_id", job.ID).
		Str("provider", req.Provider).
		Str("model_key", req.ModelKey).
		Int("chunks", len(chunks)).
		Msg("Enhancement completed")
	return nil
}

// processChunks runs every chunk sequentially through the adapter. A token
// overflow despite the plan triggers one emergency re-split at half the
// chunk size before giving up.
func (o *Orchestrator) processChunks(ctx context.Context, job *entities.EnhancementJob, model *entities.ModelDescriptor, adapter providers.ProviderAdapter, chunks []entities.Chunk, plan BudgetPlan) ([]string, int, error) {
	req := &job.Request
	rechunked := false

	enrichment := o.enrich(ctx, req)

	parts := make([]string, 0, len(chunks))
	for i := 0; i < len(chunks); i++ {
		chunk := chunks[i]
		userPrompt := BuildUserPrompt(req, chunk, enrichment)

		text, err := o.callWithRetry(ctx, model, adapter, SystemPromptFor(req.Operation), userPrompt, plan.SafeOutputTokens)
		if err != nil {
			if providers.CodeOf(err) == entities.ErrCodeTokenOverflow && !rechunked {
				rechunked = true
				maxChars := plan.MaxCharsPerChunk
				if maxChars <= 0 {
					// the plan did not require chunking, halve the whole text
					maxChars = utf8.RuneCountInString(req.SourceText)
				}
				plan.MaxCharsPerChunk = o.planner.HalvedChunkSize(maxChars)
				chunks = o.chunker.Split(req.SourceText, plan.MaxCharsPerChunk)
				parts = parts[:0]
				i = -1
				observability.LoggerFromContext(ctx).Warn().
					Str("job_id", job.ID).
					Int("max_chars", plan.MaxCharsPerChunk).
					Msg("Token overflow despite budget, re-splitting at half chunk size")
				continue
			}
			return nil, chunk.Index, err
		}
		parts = append(parts, text)
	}
	return parts, 0, nil
}

// callWithRetry performs one adapter call with bounded retries on transient
// errors. Every attempt, success or failure, feeds the model's health
// statistics.
func (o *Orchestrator) callWithRetry(ctx context.Context, model *entities.ModelDescriptor, adapter providers.ProviderAdapter, systemPrompt, userPrompt string, maxOutputTokens int) (string, error) {
	var text string

	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		defer cancel()

		start := time.Now()
		out, err := adapter.Enhance(callCtx, model, systemPrompt, userPrompt, maxOutputTokens)
		latencyMS := int(time.Since(start).Milliseconds())

		if err != nil {
			code := providers.CodeOf(err)
			if recordErr := o.registry.RecordFailure(ctx, model.Provider, model.ModelKey, code); recordErr != nil {
				observability.LoggerFromContext(ctx).Error().Err(recordErr).Msg("Failed to record model outcome")
			}
			if !code.Retryable() {
				return backoff.Permanent(err)
			}
			return err
		}

		if recordErr := o.registry.RecordSuccess(ctx, model.Provider, model.ModelKey, latencyMS); recordErr != nil {
			observability.LoggerFromContext(ctx).Error().Err(recordErr).Msg("Failed to record model outcome")
		}
		text = out
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(o.maxRetries)), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return "", err
	}
	return text, nil
}

// enrich fetches optional external context for the first chunk. Enrichment
// is best-effort; a failed lookup never fails the run.
func (o *Orchestrator) enrich(ctx context.Context, req *entities.EnhancementRequest) string {
	if o.enricher == nil || req.Operation != entities.OperationLectureNotes {
		return ""
	}
	topic := req.SourceText
	if len(topic) > 280 {
		topic = topic[:280]
	}
	enrichment, err := o.enricher.Enrich(ctx, topic)
	if err != nil {
		observability.LoggerFromContext(ctx).Debug().Err(err).Msg("Context enrichment failed")
		return ""
	}
	return enrichment
}

// fail finalizes a job on the error path: the result carries the source
// text unchanged plus a structured error, the failure is persisted to the
// error log and the transcription, and no billing happens.
func (o *Orchestrator) fail(ctx context.Context, job *entities.EnhancementJob, code entities.ErrorCode, message string, chunkIndex int) error {
	req := &job.Request

	// a cancelled run must still reach ERRORED; with the caller's context the
	// writes below would all fail and the job would stay in-flight forever
	ctx = context.WithoutCancel(ctx)

	record := &entities.EnhancementErrorRecord{
		ID:              uuid.NewString(),
		TranscriptionID: req.TranscriptionID,
		Provider:        req.Provider,
		ModelKey:        req.ModelKey,
		Operation:       req.Operation,
		ErrorCode:       code,
		Message:         message,
		RequestChars:    len(req.SourceText),
		ChunkIndex:      chunkIndex,
		CreatedAt:       time.Now().UTC(),
	}
	record.Truncate()
	if err := o.errorLog.Create(ctx, record); err != nil {
		observability.LoggerFromContext(ctx).Error().Err(err).Msg("Failed to persist enhancement error")
	}

	job.Result = o.failedResult(req, code, message)
	job.State = entities.JobStateErrored
	job.UpdatedAt = time.Now().UTC()

	if err := o.transcriptions.SaveEnhancement(ctx, req.TranscriptionID, job.Result); err != nil {
		observability.LoggerFromContext(ctx).Error().Err(err).Msg("Failed to save failed enhancement")
	}
	if err := o.jobs.SaveResult(ctx, job); err != nil {
		return err
	}

	o.publish(ctx, job, code)
	observability.LoggerFromContext(ctx).Warn().
		Str("job_id", job.ID).
		Str("provider", req.Provider).
		Str("model_key", req.ModelKey).
		Str("error_code", string(code)).
		Msg("Enhancement failed")
	return nil
}

// failedResult builds the explicit no-op result: the text the user already
// had, plus the error. Unmodified text is never presented as a success.
func (o *Orchestrator) failedResult(req *entities.EnhancementRequest, code entities.ErrorCode, message string) *entities.EnhancementResult {
	return &entities.EnhancementResult{
		EnhancedText: req.SourceText,
		ProviderUsed: req.Provider,
		ModelUsed:    req.ModelKey,
		Error:        &entities.EnhancementError{Code: code, Message: message},
	}
}

func (o *Orchestrator) transition(ctx context.Context, job *entities.EnhancementJob, state entities.JobState) error {
	job.State = state
	job.UpdatedAt = time.Now().UTC()
	if err := o.jobs.UpdateState(ctx, job.ID, state); err != nil {
		return err
	}
	o.publish(ctx, job, "")
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, job *entities.EnhancementJob, code entities.ErrorCode) {
	if o.bus == nil {
		return
	}
	event := &entities.JobEvent{
		ID:         uuid.NewString(),
		JobID:      job.ID,
		UserID:     job.Request.UserID,
		State:      job.State,
		ErrorCode:  code,
		OccurredAt: time.Now().UTC(),
	}
	for _, channel := range []string{providers.EventChannelEnhancements, providers.GetUserChannel(job.Request.UserID)} {
		if err := o.bus.Publish(ctx, channel, event); err != nil {
			observability.LoggerFromContext(ctx).Debug().Err(err).Str("channel", channel).Msg("Failed to publish job event")
		}
	}
}
