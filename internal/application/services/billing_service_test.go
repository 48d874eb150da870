package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	"github.com/scribeflow/scribeflow/backend/pkg/config"
	apperrors "github.com/scribeflow/scribeflow/backend/pkg/errors"
)

func testBillingService(ledger *MockCreditLedger, operationCost float64) *BillingService {
	return NewBillingService(ledger, config.BillingConfig{
		BaseRatePerMinute:   1.0,
		SpeakerRateFraction: 0.5,
		OperationCost:       operationCost,
	})
}

func TestCostWithSpeakerSurcharge(t *testing.T) {
	svc := testBillingService(nil, 0)

	req := &entities.EnhancementRequest{
		DurationSeconds:    57,
		SpeakerRecognition: true,
	}
	model := &entities.ModelDescriptor{PriceMultiplier: 1.0}

	// (57/60)*1.0*1.5 = 1.425, half-up to 1.43
	assert.Equal(t, 1.43, svc.Cost(req, model))
}

func TestCostScalesOperationByPriceMultiplier(t *testing.T) {
	svc := testBillingService(nil, 0.2)

	req := &entities.EnhancementRequest{DurationSeconds: 600}
	model := &entities.ModelDescriptor{PriceMultiplier: 1.5}

	// 10 minutes at base rate plus 0.2*1.5 operation cost
	assert.Equal(t, 10.3, svc.Cost(req, model))
}

func TestCostDefaultsMissingMultiplierToOne(t *testing.T) {
	svc := testBillingService(nil, 0.2)

	req := &entities.EnhancementRequest{DurationSeconds: 0}

	assert.Equal(t, 0.2, svc.Cost(req, &entities.ModelDescriptor{}))
}

func TestCostRoundsHalfUpNotHalfEven(t *testing.T) {
	svc := testBillingService(nil, 0.125)

	req := &entities.EnhancementRequest{DurationSeconds: 0}
	model := &entities.ModelDescriptor{PriceMultiplier: 1.0}

	// 0.125 is exact in binary; half-up gives 0.13 where half-even would give 0.12
	assert.Equal(t, 0.13, svc.Cost(req, model))
}

func TestCostRoundingSurvivesFloatRepresentation(t *testing.T) {
	svc := testBillingService(nil, 0)
	model := &entities.ModelDescriptor{PriceMultiplier: 1.0}

	// (57/60)*1.5 computes as 1.4249999999999998; the tie must still go up
	req := &entities.EnhancementRequest{DurationSeconds: 57, SpeakerRecognition: true}
	assert.Equal(t, 1.43, svc.Cost(req, model))

	// 85.5s at the base rate is another inexact 1.425
	req = &entities.EnhancementRequest{DurationSeconds: 85.5}
	assert.Equal(t, 1.43, svc.Cost(req, model))
}

func TestEnsureBalanceSufficient(t *testing.T) {
	ledger := new(MockCreditLedger)
	svc := testBillingService(ledger, 0.2)

	ledger.On("GetBalance", mock.Anything, "user-1").Return(5.0, nil)

	assert.NoError(t, svc.EnsureBalance(context.Background(), "user-1", 1.43))
}

func TestEnsureBalanceInsufficient(t *testing.T) {
	ledger := new(MockCreditLedger)
	svc := testBillingService(ledger, 0.2)

	ledger.On("GetBalance", mock.Anything, "user-1").Return(1.0, nil)

	err := svc.EnsureBalance(context.Background(), "user-1", 1.43)

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInsufficientCredits))
}

func TestEnsureBalancePropagatesLedgerError(t *testing.T) {
	ledger := new(MockCreditLedger)
	svc := testBillingService(ledger, 0.2)

	ledger.On("GetBalance", mock.Anything, "user-1").Return(0.0, errors.New("db down"))

	assert.Error(t, svc.EnsureBalance(context.Background(), "user-1", 1.0))
}

func TestCommitDebitsWithJobAsReference(t *testing.T) {
	ledger := new(MockCreditLedger)
	svc := testBillingService(ledger, 0.2)

	job := &entities.EnhancementJob{
		ID: "job-42",
		Request: entities.EnhancementRequest{
			UserID:    "user-1",
			Operation: entities.OperationSummary,
		},
	}

	ledger.On("FinalizeEnhancement", mock.Anything, job, mock.MatchedBy(func(entry *entities.CreditLedgerEntry) bool {
		return entry.UserID == "user-1" &&
			entry.Amount == -1.43 &&
			entry.OperationType == "SUMMARY" &&
			entry.ReferenceID == "job-42" &&
			entry.ID != ""
	})).Return(nil)

	require.NoError(t, svc.Commit(context.Background(), job, 1.43))
	ledger.AssertExpectations(t)
}
