package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	"github.com/scribeflow/scribeflow/backend/internal/domain/providers"
	"github.com/scribeflow/scribeflow/backend/pkg/config"
	apperrors "github.com/scribeflow/scribeflow/backend/pkg/errors"
)

type orchestratorFixture struct {
	registryRepo *MockModelRegistry
	ledger       *MockCreditLedger
	transcripts  *MockTranscriptionRepo
	errorLog     *MockErrorLog
	jobs         *MockJobRepo
	factory      *MockFactory
	adapter      *MockAdapter
	bus          *MockEventBus
	orch         *Orchestrator
}

func newOrchestratorFixture(withBus bool) *orchestratorFixture {
	f := &orchestratorFixture{
		registryRepo: new(MockModelRegistry),
		ledger:       new(MockCreditLedger),
		transcripts:  new(MockTranscriptionRepo),
		errorLog:     new(MockErrorLog),
		jobs:         new(MockJobRepo),
		factory:      new(MockFactory),
		adapter:      &MockAdapter{name: "openai"},
		bus:          new(MockEventBus),
	}

	estimator := NewTokenEstimator(testTokenizerConfig())
	enhancerCfg := config.EnhancerConfig{
		CallTimeoutSeconds: 5,
		MaxRetries:         2,
		SafetyMarginTokens: 1500,
		MinOutputTokens:    512,
		ChunkTokenBudget:   2600,
	}

	deps := OrchestratorDeps{
		Registry:       NewRegistryService(f.registryRepo, nil, f.factory, 3600),
		Billing:        NewBillingService(f.ledger, config.BillingConfig{BaseRatePerMinute: 1.0, SpeakerRateFraction: 0.5, OperationCost: 0.2}),
		Estimator:      estimator,
		Planner:        NewTokenBudgetPlanner(estimator, enhancerCfg),
		Chunker:        NewChunker(),
		Factory:        f.factory,
		Transcriptions: f.transcripts,
		ErrorLog:       f.errorLog,
		Jobs:           f.jobs,
	}
	if withBus {
		deps.Bus = f.bus
	}
	f.orch = NewOrchestrator(deps, enhancerCfg)
	return f
}

func activeModel() *entities.ModelDescriptor {
	return &entities.ModelDescriptor{
		Provider:        "openai",
		ModelKey:        "gpt-4o-mini",
		IsActive:        true,
		PriceMultiplier: 1.0,
		MaxOutputTokens: 4096,
		ContextLength:   128000,
	}
}

func testTranscription() *entities.Transcription {
	return &entities.Transcription{
		ID:                 "tr-1",
		UserID:             "user-1",
		Language:           "en",
		SourceText:         "Hello there. This is a short transcript.",
		DurationSeconds:    57,
		SpeakerRecognition: true,
	}
}

func testJob(source string) *entities.EnhancementJob {
	return &entities.EnhancementJob{
		ID: "job-1",
		Request: entities.EnhancementRequest{
			TranscriptionID: "tr-1",
			UserID:          "user-1",
			Operation:       entities.OperationCleanup,
			Provider:        "openai",
			ModelKey:        "gpt-4o-mini",
			Language:        "en",
			SourceText:      source,
			DurationSeconds: 60,
		},
		State: entities.JobStateValidating,
	}
}

func TestEnqueueRejectsUnknownOperation(t *testing.T) {
	f := newOrchestratorFixture(false)

	_, err := f.orch.Enqueue(context.Background(), &entities.EnhancementRequest{
		TranscriptionID: "tr-1",
		Operation:       "SHRED",
		Provider:        "openai",
		ModelKey:        "gpt-4o-mini",
	})

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	f.transcripts.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestEnqueueInactiveModelCreatesErroredJob(t *testing.T) {
	f := newOrchestratorFixture(false)

	disabled := activeModel()
	disabled.IsActive = false
	disabled.DisabledReason = "auto-quarantined: RATE_LIMITED"

	f.transcripts.On("GetByID", mock.Anything, "tr-1").Return(testTranscription(), nil)
	f.registryRepo.On("GetByKey", mock.Anything, "openai", "gpt-4o-mini").Return(disabled, nil)
	f.jobs.On("Create", mock.Anything, mock.MatchedBy(func(job *entities.EnhancementJob) bool {
		return job.State == entities.JobStateErrored &&
			job.Result != nil &&
			job.Result.Error != nil &&
			job.Result.Error.Code == entities.ErrCodeModelUnavailable &&
			job.Result.EnhancedText == testTranscription().SourceText
	})).Return(nil)

	job, err := f.orch.Enqueue(context.Background(), &entities.EnhancementRequest{
		TranscriptionID: "tr-1",
		Operation:       entities.OperationCleanup,
		Provider:        "openai",
		ModelKey:        "gpt-4o-mini",
	})

	require.NoError(t, err)
	assert.Equal(t, entities.JobStateErrored, job.State)

	// no adapter call, no billing
	f.factory.AssertNotCalled(t, "Adapter", mock.Anything)
	f.ledger.AssertNotCalled(t, "GetBalance", mock.Anything, mock.Anything)
	f.ledger.AssertNotCalled(t, "FinalizeEnhancement", mock.Anything, mock.Anything, mock.Anything)
	f.jobs.AssertExpectations(t)
}

func TestEnqueueRejectsInsufficientBalance(t *testing.T) {
	f := newOrchestratorFixture(false)

	f.transcripts.On("GetByID", mock.Anything, "tr-1").Return(testTranscription(), nil)
	f.registryRepo.On("GetByKey", mock.Anything, "openai", "gpt-4o-mini").Return(activeModel(), nil)
	f.ledger.On("GetBalance", mock.Anything, "user-1").Return(0.5, nil)

	_, err := f.orch.Enqueue(context.Background(), &entities.EnhancementRequest{
		TranscriptionID: "tr-1",
		Operation:       entities.OperationCleanup,
		Provider:        "openai",
		ModelKey:        "gpt-4o-mini",
	})

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInsufficientCredits))
	f.jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestEnqueueCreatesJobAndPublishesEvents(t *testing.T) {
	f := newOrchestratorFixture(true)

	f.transcripts.On("GetByID", mock.Anything, "tr-1").Return(testTranscription(), nil)
	f.registryRepo.On("GetByKey", mock.Anything, "openai", "gpt-4o-mini").Return(activeModel(), nil)
	f.ledger.On("GetBalance", mock.Anything, "user-1").Return(10.0, nil)
	f.jobs.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	job, err := f.orch.Enqueue(context.Background(), &entities.EnhancementRequest{
		TranscriptionID: "tr-1",
		Operation:       entities.OperationSummary,
		Provider:        "openai",
		ModelKey:        "gpt-4o-mini",
	})

	require.NoError(t, err)
	assert.Equal(t, entities.JobStateCreated, job.State)
	assert.Equal(t, "user-1", job.Request.UserID)
	assert.Equal(t, testTranscription().SourceText, job.Request.SourceText)
	assert.True(t, job.Request.SpeakerRecognition)

	// fleet channel plus the user's own channel
	f.bus.AssertNumberOfCalls(t, "Publish", 2)
}

func TestRunHappyPathBillsOnce(t *testing.T) {
	f := newOrchestratorFixture(false)
	job := testJob("Hello there. This is a short transcript.")

	f.jobs.On("UpdateState", mock.Anything, "job-1", mock.Anything).Return(nil)
	f.registryRepo.On("GetByKey", mock.Anything, "openai", "gpt-4o-mini").Return(activeModel(), nil)
	f.factory.On("Adapter", "openai").Return(f.adapter, nil)
	f.adapter.On("Enhance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("Hello there. This is a cleaned transcript.", nil)
	f.registryRepo.On("UpdateOutcome", mock.Anything, "openai", "gpt-4o-mini", mock.Anything).Return(activeModel(), nil)
	f.ledger.On("FinalizeEnhancement", mock.Anything, mock.MatchedBy(func(j *entities.EnhancementJob) bool {
		return j.State == entities.JobStateDone && j.Result != nil && j.Result.Error == nil
	}), mock.MatchedBy(func(entry *entities.CreditLedgerEntry) bool {
		// 60s at base rate plus the flat operation cost
		return entry.Amount == -1.2 && entry.ReferenceID == "job-1"
	})).Return(nil)

	err := f.orch.Run(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, entities.JobStateDone, job.State)
	assert.Equal(t, "Hello there. This is a cleaned transcript.", job.Result.EnhancedText)
	assert.Equal(t, 1, job.Result.ChunksProcessed)
	f.ledger.AssertExpectations(t)
	f.adapter.AssertNumberOfCalls(t, "Enhance", 1)
}

func TestRunFailureSkipsBillingAndPreservesSource(t *testing.T) {
	f := newOrchestratorFixture(false)
	source := "Hello there. This is a short transcript."
	job := testJob(source)

	authErr := &providers.ProviderError{Code: entities.ErrCodeAuthFailed, Provider: "openai", StatusCode: 401, Message: "invalid api key"}

	f.jobs.On("UpdateState", mock.Anything, "job-1", mock.Anything).Return(nil)
	f.registryRepo.On("GetByKey", mock.Anything, "openai", "gpt-4o-mini").Return(activeModel(), nil)
	f.factory.On("Adapter", "openai").Return(f.adapter, nil)
	f.adapter.On("Enhance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", authErr)
	f.registryRepo.On("UpdateOutcome", mock.Anything, "openai", "gpt-4o-mini", mock.Anything).Return(activeModel(), nil)
	f.errorLog.On("Create", mock.Anything, mock.MatchedBy(func(r *entities.EnhancementErrorRecord) bool {
		return r.ErrorCode == entities.ErrCodeAuthFailed && r.TranscriptionID == "tr-1"
	})).Return(nil)
	f.transcripts.On("SaveEnhancement", mock.Anything, "tr-1", mock.MatchedBy(func(r *entities.EnhancementResult) bool {
		return r.Error != nil && r.EnhancedText == source
	})).Return(nil)
	f.jobs.On("SaveResult", mock.Anything, mock.MatchedBy(func(j *entities.EnhancementJob) bool {
		return j.State == entities.JobStateErrored
	})).Return(nil)

	err := f.orch.Run(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, entities.JobStateErrored, job.State)
	assert.Equal(t, entities.ErrCodeAuthFailed, job.Result.Error.Code)

	// AUTH_FAILED is not retryable: one attempt, and never billed
	f.adapter.AssertNumberOfCalls(t, "Enhance", 1)
	f.ledger.AssertNotCalled(t, "FinalizeEnhancement", mock.Anything, mock.Anything, mock.Anything)
	f.errorLog.AssertExpectations(t)
	f.transcripts.AssertExpectations(t)
}

func TestRunCancellationStillPersistsErroredState(t *testing.T) {
	f := newOrchestratorFixture(false)
	source := "Hello there. This is a short transcript."
	job := testJob(source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	timeoutErr := &providers.ProviderError{Code: entities.ErrCodeUpstreamTimeout, Provider: "openai", Message: "context canceled"}

	f.jobs.On("UpdateState", mock.Anything, "job-1", mock.Anything).Return(nil)
	f.registryRepo.On("GetByKey", mock.Anything, "openai", "gpt-4o-mini").Return(activeModel(), nil)
	f.factory.On("Adapter", "openai").Return(f.adapter, nil)
	f.adapter.On("Enhance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return("", timeoutErr)
	f.registryRepo.On("UpdateOutcome", mock.Anything, "openai", "gpt-4o-mini", mock.Anything).Return(activeModel(), nil)

	// terminal-state writes must not ride the cancelled run context, or the
	// job would stay CALLING forever with no worker able to reclaim it
	live := mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil })
	f.errorLog.On("Create", live, mock.Anything).Return(nil)
	f.transcripts.On("SaveEnhancement", live, "tr-1", mock.MatchedBy(func(r *entities.EnhancementResult) bool {
		return r.Error != nil && r.EnhancedText == source
	})).Return(nil)
	f.jobs.On("SaveResult", live, mock.MatchedBy(func(j *entities.EnhancementJob) bool {
		return j.State == entities.JobStateErrored
	})).Return(nil)

	err := f.orch.Run(ctx, job)

	require.NoError(t, err)
	assert.Equal(t, entities.JobStateErrored, job.State)
	f.ledger.AssertNotCalled(t, "FinalizeEnhancement", mock.Anything, mock.Anything, mock.Anything)
	f.jobs.AssertExpectations(t)
	f.errorLog.AssertExpectations(t)
	f.transcripts.AssertExpectations(t)
}

func TestRunRetriesTransientErrorThenSucceeds(t *testing.T) {
	f := newOrchestratorFixture(false)
	job := testJob("Hello there. This is a short transcript.")

	rateErr := &providers.ProviderError{Code: entities.ErrCodeRateLimited, Provider: "openai", StatusCode: 429, Message: "slow down"}

	f.jobs.On("UpdateState", mock.Anything, "job-1", mock.Anything).Return(nil)
	f.registryRepo.On("GetByKey", mock.Anything, "openai", "gpt-4o-mini").Return(activeModel(), nil)
	f.factory.On("Adapter", "openai").Return(f.adapter, nil)
	f.adapter.On("Enhance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", rateErr).Once()
	f.adapter.On("Enhance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("cleaned", nil)
	f.registryRepo.On("UpdateOutcome", mock.Anything, "openai", "gpt-4o-mini", mock.Anything).Return(activeModel(), nil)
	f.ledger.On("FinalizeEnhancement", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err := f.orch.Run(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, entities.JobStateDone, job.State)
	f.adapter.AssertNumberOfCalls(t, "Enhance", 2)
	// both the failed attempt and the success fed the health statistics
	f.registryRepo.AssertNumberOfCalls(t, "UpdateOutcome", 2)
}

func TestRunChunksOversizedInput(t *testing.T) {
	f := newOrchestratorFixture(false)

	// 200 sentences of 100 chars force chunking against a small context window
	sentence := strings.Repeat("a", 98) + ". "
	job := testJob(strings.Repeat(sentence, 200))

	model := activeModel()
	model.ContextLength = 4096

	var states []entities.JobState
	f.jobs.On("UpdateState", mock.Anything, "job-1", mock.Anything).
		Run(func(args mock.Arguments) {
			states = append(states, args.Get(2).(entities.JobState))
		}).Return(nil)
	f.registryRepo.On("GetByKey", mock.Anything, "openai", "gpt-4o-mini").Return(model, nil)
	f.factory.On("Adapter", "openai").Return(f.adapter, nil)
	f.adapter.On("Enhance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("cleaned part", nil)
	f.registryRepo.On("UpdateOutcome", mock.Anything, "openai", "gpt-4o-mini", mock.Anything).Return(model, nil)
	f.ledger.On("FinalizeEnhancement", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err := f.orch.Run(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, entities.JobStateDone, job.State)
	assert.Greater(t, job.Result.ChunksProcessed, 1)
	assert.Contains(t, states, entities.JobStateChunking)
	assert.Equal(t, job.Result.ChunksProcessed, len(f.adapter.Calls))
}

func TestRunTokenOverflowRechunksOnce(t *testing.T) {
	f := newOrchestratorFixture(false)
	job := testJob(strings.Repeat("Word here. ", 8))

	overflowErr := &providers.ProviderError{Code: entities.ErrCodeTokenOverflow, Provider: "openai", StatusCode: 422, Message: "context length exceeded"}

	f.jobs.On("UpdateState", mock.Anything, "job-1", mock.Anything).Return(nil)
	f.registryRepo.On("GetByKey", mock.Anything, "openai", "gpt-4o-mini").Return(activeModel(), nil)
	f.factory.On("Adapter", "openai").Return(f.adapter, nil)
	f.adapter.On("Enhance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", overflowErr).Once()
	f.adapter.On("Enhance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("part", nil)
	f.registryRepo.On("UpdateOutcome", mock.Anything, "openai", "gpt-4o-mini", mock.Anything).Return(activeModel(), nil)
	f.ledger.On("FinalizeEnhancement", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err := f.orch.Run(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, entities.JobStateDone, job.State)
	// the emergency re-split processed the text in more than one piece
	assert.Greater(t, job.Result.ChunksProcessed, 1)
}

func TestRunTokenOverflowTwiceFails(t *testing.T) {
	f := newOrchestratorFixture(false)
	job := testJob(strings.Repeat("Word here. ", 8))

	overflowErr := &providers.ProviderError{Code: entities.ErrCodeTokenOverflow, Provider: "openai", StatusCode: 422, Message: "context length exceeded"}

	f.jobs.On("UpdateState", mock.Anything, "job-1", mock.Anything).Return(nil)
	f.registryRepo.On("GetByKey", mock.Anything, "openai", "gpt-4o-mini").Return(activeModel(), nil)
	f.factory.On("Adapter", "openai").Return(f.adapter, nil)
	f.adapter.On("Enhance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", overflowErr)
	f.registryRepo.On("UpdateOutcome", mock.Anything, "openai", "gpt-4o-mini", mock.Anything).Return(activeModel(), nil)
	f.errorLog.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.transcripts.On("SaveEnhancement", mock.Anything, "tr-1", mock.Anything).Return(nil)
	f.jobs.On("SaveResult", mock.Anything, mock.Anything).Return(nil)

	err := f.orch.Run(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, entities.JobStateErrored, job.State)
	assert.Equal(t, entities.ErrCodeTokenOverflow, job.Result.Error.Code)
	f.ledger.AssertNotCalled(t, "FinalizeEnhancement", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunModelQuarantinedBetweenEnqueueAndRun(t *testing.T) {
	f := newOrchestratorFixture(false)
	job := testJob("Hello there. This is a short transcript.")

	disabled := activeModel()
	disabled.IsActive = false
	disabled.DisabledReason = "auto-quarantined: UPSTREAM_TIMEOUT"

	f.jobs.On("UpdateState", mock.Anything, "job-1", mock.Anything).Return(nil)
	f.registryRepo.On("GetByKey", mock.Anything, "openai", "gpt-4o-mini").Return(disabled, nil)
	f.errorLog.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.transcripts.On("SaveEnhancement", mock.Anything, "tr-1", mock.Anything).Return(nil)
	f.jobs.On("SaveResult", mock.Anything, mock.Anything).Return(nil)

	err := f.orch.Run(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, entities.JobStateErrored, job.State)
	assert.Equal(t, entities.ErrCodeModelUnavailable, job.Result.Error.Code)
	f.factory.AssertNotCalled(t, "Adapter", mock.Anything)
}

func TestRunEmptyRecombinedTextFails(t *testing.T) {
	f := newOrchestratorFixture(false)
	job := testJob("Hello there. This is a short transcript.")

	f.jobs.On("UpdateState", mock.Anything, "job-1", mock.Anything).Return(nil)
	f.registryRepo.On("GetByKey", mock.Anything, "openai", "gpt-4o-mini").Return(activeModel(), nil)
	f.factory.On("Adapter", "openai").Return(f.adapter, nil)
	f.adapter.On("Enhance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", nil)
	f.registryRepo.On("UpdateOutcome", mock.Anything, "openai", "gpt-4o-mini", mock.Anything).Return(activeModel(), nil)
	f.errorLog.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.transcripts.On("SaveEnhancement", mock.Anything, "tr-1", mock.Anything).Return(nil)
	f.jobs.On("SaveResult", mock.Anything, mock.Anything).Return(nil)

	err := f.orch.Run(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, entities.JobStateErrored, job.State)
	assert.Equal(t, entities.ErrCodeEmptyResponse, job.Result.Error.Code)
	f.ledger.AssertNotCalled(t, "FinalizeEnhancement", mock.Anything, mock.Anything, mock.Anything)
}
