package repositories

import (
	"context"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
)

// CreditLedgerRepository manages user credit balances and the append-only
// ledger. Debits are idempotent on ReferenceID: replaying the same debit
// changes the balance exactly once.
type CreditLedgerRepository interface {
	// GetBalance returns the user's current balance
	GetBalance(ctx context.Context, userID string) (float64, error)

	// Debit appends a negative ledger entry and adjusts the balance in one
	// transaction. A repeated ReferenceID is a no-op. Returns an
	// INSUFFICIENT_CREDITS AppError when the balance cannot cover the amount.
	Debit(ctx context.Context, entry *entities.CreditLedgerEntry) error

	// FinalizeEnhancement commits the success path atomically: the debit,
	// the transcription's enhanced text, and the job's DONE state either all
	// land or none do. A crash mid-way is resolved by retrying with the same
	// reference id.
	FinalizeEnhancement(ctx context.Context, job *entities.EnhancementJob, entry *entities.CreditLedgerEntry) error
}
