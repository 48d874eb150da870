package services

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	"github.com/scribeflow/scribeflow/backend/internal/domain/repositories"
	"github.com/scribeflow/scribeflow/backend/pkg/config"
	apperrors "github.com/scribeflow/scribeflow/backend/pkg/errors"
)

// BillingService prices enhancements and settles them against the credit
// ledger. A debit happens exactly once per job, only after the enhancement
// succeeded end to end; failures never reach the ledger.
type BillingService struct {
	ledger              repositories.CreditLedgerRepository
	baseRatePerMinute   float64
	speakerRateFraction float64
	operationCost       float64
}

// NewBillingService creates a billing service from configuration.
func NewBillingService(ledger repositories.CreditLedgerRepository, cfg config.BillingConfig) *BillingService {
	return &BillingService{
		ledger:              ledger,
		baseRatePerMinute:   cfg.BaseRatePerMinute,
		speakerRateFraction: cfg.SpeakerRateFraction,
		operationCost:       cfg.OperationCost,
	}
}

// Cost computes the credit price of one enhancement. Duration is billed at
// the per-minute base rate, raised by the speaker-recognition surcharge, and
// the operation itself costs a flat amount scaled by the model's price
// multiplier. The result rounds half-up to two decimals.
func (s *BillingService) Cost(req *entities.EnhancementRequest, model *entities.ModelDescriptor) float64 {
	minutes := req.DurationSeconds / 60.0

	durationRate := s.baseRatePerMinute
	if req.SpeakerRecognition {
		durationRate *= 1 + s.speakerRateFraction
	}

	multiplier := model.PriceMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	return roundHalfUp(minutes*durationRate + s.operationCost*multiplier)
}

// EnsureBalance verifies the user can afford the amount before any provider
// call is made. It does not reserve credits; the debit happens at commit.
func (s *BillingService) EnsureBalance(ctx context.Context, userID string, amount float64) error {
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return err
	}
	if balance < amount {
		return apperrors.NewInsufficientCreditsError(
			fmt.Sprintf("balance %.2f cannot cover cost %.2f", balance, amount))
	}
	return nil
}

// Commit settles a successful job: the debit, the transcription update and
// the DONE transition land in one transaction. The job id doubles as the
// ledger reference, so retrying a crashed commit cannot double-charge.
func (s *BillingService) Commit(ctx context.Context, job *entities.EnhancementJob, amount float64) error {
	entry := &entities.CreditLedgerEntry{
		ID:            uuid.NewString(),
		UserID:        job.Request.UserID,
		Amount:        -amount,
		OperationType: string(job.Request.Operation),
		ReferenceID:   job.ID,
	}
	return s.ledger.FinalizeEnhancement(ctx, job, entry)
}

// roundHalfUp rounds to two decimals with ties going up, so 0.005 becomes
// 0.01 rather than banker's-rounding to 0.00. The epsilon keeps values like
// 1.425, which the formula produces as 1.4249999999999998, on the up side of
// the tie.
func roundHalfUp(v float64) float64 {
	return math.Floor(v*100+0.5+1e-9) / 100
}
