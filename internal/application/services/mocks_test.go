package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	"github.com/scribeflow/scribeflow/backend/internal/domain/providers"
)

// Mocks shared by the service tests.

type MockModelRegistry struct {
	mock.Mock
}

func (m *MockModelRegistry) GetByKey(ctx context.Context, provider, modelKey string) (*entities.ModelDescriptor, error) {
	args := m.Called(ctx, provider, modelKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ModelDescriptor), args.Error(1)
}

func (m *MockModelRegistry) ListActive(ctx context.Context) ([]*entities.ModelDescriptor, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.ModelDescriptor), args.Error(1)
}

func (m *MockModelRegistry) Create(ctx context.Context, model *entities.ModelDescriptor) error {
	args := m.Called(ctx, model)
	return args.Error(0)
}

// UpdateOutcome applies mutate to the configured descriptor the way the real
// adapter does under its row lock, so tests observe the mutated statistics.
func (m *MockModelRegistry) UpdateOutcome(ctx context.Context, provider, modelKey string, mutate func(*entities.ModelDescriptor)) (*entities.ModelDescriptor, error) {
	args := m.Called(ctx, provider, modelKey, mutate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	model := args.Get(0).(*entities.ModelDescriptor)
	mutate(model)
	return model, args.Error(1)
}

type MockCreditLedger struct {
	mock.Mock
}

func (m *MockCreditLedger) GetBalance(ctx context.Context, userID string) (float64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockCreditLedger) Debit(ctx context.Context, entry *entities.CreditLedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockCreditLedger) FinalizeEnhancement(ctx context.Context, job *entities.EnhancementJob, entry *entities.CreditLedgerEntry) error {
	args := m.Called(ctx, job, entry)
	return args.Error(0)
}

type MockTranscriptionRepo struct {
	mock.Mock
}

func (m *MockTranscriptionRepo) GetByID(ctx context.Context, id string) (*entities.Transcription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Transcription), args.Error(1)
}

func (m *MockTranscriptionRepo) SaveEnhancement(ctx context.Context, id string, result *entities.EnhancementResult) error {
	args := m.Called(ctx, id, result)
	return args.Error(0)
}

type MockErrorLog struct {
	mock.Mock
}

func (m *MockErrorLog) Create(ctx context.Context, record *entities.EnhancementErrorRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockErrorLog) ListByTranscription(ctx context.Context, transcriptionID string) ([]*entities.EnhancementErrorRecord, error) {
	args := m.Called(ctx, transcriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.EnhancementErrorRecord), args.Error(1)
}

type MockJobRepo struct {
	mock.Mock
}

func (m *MockJobRepo) Create(ctx context.Context, job *entities.EnhancementJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepo) GetByID(ctx context.Context, id string) (*entities.EnhancementJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.EnhancementJob), args.Error(1)
}

func (m *MockJobRepo) UpdateState(ctx context.Context, id string, state entities.JobState) error {
	args := m.Called(ctx, id, state)
	return args.Error(0)
}

func (m *MockJobRepo) SaveResult(ctx context.Context, job *entities.EnhancementJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepo) ClaimNext(ctx context.Context) (*entities.EnhancementJob, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.EnhancementJob), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	args := m.Called(ctx, key, value, expirationSeconds)
	return args.Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockCache) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

type MockAdapter struct {
	mock.Mock
	name string
}

func (m *MockAdapter) Enhance(ctx context.Context, model *entities.ModelDescriptor, systemPrompt, userPrompt string, maxOutputTokens int) (string, error) {
	args := m.Called(ctx, model, systemPrompt, userPrompt, maxOutputTokens)
	return args.String(0), args.Error(1)
}

func (m *MockAdapter) Name() string {
	if m.name != "" {
		return m.name
	}
	return "mock"
}

// MockCatalogAdapter is an adapter that can also list the vendor catalog.
type MockCatalogAdapter struct {
	MockAdapter
}

func (m *MockCatalogAdapter) ListModels(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockFactory struct {
	mock.Mock
}

func (m *MockFactory) Adapter(provider string) (providers.ProviderAdapter, error) {
	args := m.Called(provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(providers.ProviderAdapter), args.Error(1)
}

func (m *MockFactory) Providers() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, channel string, event *entities.JobEvent) error {
	args := m.Called(ctx, channel, event)
	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.JobEvent, error) {
	args := m.Called(ctx, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan *entities.JobEvent), args.Error(1)
}

func (m *MockEventBus) Unsubscribe(ctx context.Context, channel string) error {
	args := m.Called(ctx, channel)
	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()
	return args.Error(0)
}
