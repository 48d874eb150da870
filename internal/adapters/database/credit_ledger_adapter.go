package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	"github.com/scribeflow/scribeflow/backend/internal/domain/repositories"
	"github.com/scribeflow/scribeflow/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/scribeflow/scribeflow/backend/pkg/errors"
)

// CreditLedgerAdapter implements the CreditLedgerRepository interface. The
// ledger is append-only; balances live in user_credits and every change is
// mirrored by exactly one ledger row.
type CreditLedgerAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewCreditLedgerAdapter creates a new credit ledger adapter
func NewCreditLedgerAdapter(client *postgres.Client) repositories.CreditLedgerRepository {
	return &CreditLedgerAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// GetBalance returns the user's current balance. Users without a credit row
// have a zero balance.
func (a *CreditLedgerAdapter) GetBalance(ctx context.Context, userID string) (float64, error) {
	query, args, err := a.db.Select("balance").
		From("user_credits").
		Where(goqu.Ex{"user_id": userID}).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build query", err)
	}

	var balance float64
	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.NewInternalError("failed to get balance", err)
	}
	return balance, nil
}

// Debit appends a negative ledger entry and adjusts the balance in one
// transaction. Replaying the same ReferenceID is a no-op.
func (a *CreditLedgerAdapter) Debit(ctx context.Context, entry *entities.CreditLedgerEntry) error {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := a.applyDebit(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit debit", err)
	}
	return nil
}

// FinalizeEnhancement commits the success path atomically: the debit, the
// transcription's enhanced text, and the job's DONE state all land in one
// transaction. Retrying after a crash replays the same reference id, so the
// balance changes exactly once.
func (a *CreditLedgerAdapter) FinalizeEnhancement(ctx context.Context, job *entities.EnhancementJob, entry *entities.CreditLedgerEntry) error {
	if job.Result == nil || job.Result.Failed() {
		return apperrors.NewInternalError("cannot finalize a failed enhancement", nil)
	}

	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := a.applyDebit(ctx, tx, entry); err != nil {
		return err
	}

	// transcription gets the enhanced text
	record := goqu.Record{
		"enhanced_text":       job.Result.EnhancedText,
		"enhancement_summary": job.Result.Summary,
		"enhanced":            true,
		"updated_at":          time.Now().UTC(),
	}
	query, args, err := a.db.Update("transcriptions").
		Set(record).
		Where(goqu.Ex{"id": job.Request.TranscriptionID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build transcription update", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to update transcription", err)
	}

	// job reaches DONE with its result in the same transaction
	resultJSON, err := json.Marshal(job.Result)
	if err != nil {
		return apperrors.NewInternalError("failed to marshal job result", err)
	}
	query, args, err = a.db.Update("enhancement_jobs").
		Set(goqu.Record{
			"state":      string(entities.JobStateDone),
			"result":     resultJSON,
			"updated_at": time.Now().UTC(),
		}).
		Where(goqu.Ex{"id": job.ID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build job update", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to update job", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit enhancement", err)
	}
	return nil
}

// applyDebit performs the idempotent balance change inside tx. It returns
// false without touching the balance when the reference id was already
// settled. The balance row lock is taken before the duplicate check: two
// concurrent replays of the same reference serialize on the lock, and the
// second one's lookup then sees the committed ledger row. reference_id also
// carries a unique index, so a violated invariant fails the transaction
// instead of double-charging.
func (a *CreditLedgerAdapter) applyDebit(ctx context.Context, tx *sql.Tx, entry *entities.CreditLedgerEntry) (bool, error) {
	query, args, err := a.db.Select("balance").
		From("user_credits").
		Where(goqu.Ex{"user_id": entry.UserID}).
		ForUpdate(exp.Wait).
		ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build balance lock", err)
	}

	var balance float64
	err = tx.QueryRowContext(ctx, query, args...).Scan(&balance)
	if err == sql.ErrNoRows {
		return false, apperrors.NewInsufficientCreditsError(fmt.Sprintf("user %s has no credit balance", entry.UserID))
	}
	if err != nil {
		return false, apperrors.NewInternalError("failed to lock balance", err)
	}

	query, args, err = a.db.Select(goqu.COUNT("*")).
		From("credit_ledger").
		Where(goqu.Ex{"reference_id": entry.ReferenceID}).
		ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build ledger lookup", err)
	}

	var existing int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&existing); err != nil {
		return false, apperrors.NewInternalError("failed to check ledger reference", err)
	}
	if existing > 0 {
		return false, nil
	}

	newBalance := balance + entry.Amount
	if newBalance < 0 {
		return false, apperrors.NewInsufficientCreditsError(
			fmt.Sprintf("balance %.2f cannot cover debit %.2f", balance, -entry.Amount))
	}

	query, args, err = a.db.Update("user_credits").
		Set(goqu.Record{"balance": newBalance, "updated_at": time.Now().UTC()}).
		Where(goqu.Ex{"user_id": entry.UserID}).
		ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build balance update", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return false, apperrors.NewInternalError("failed to update balance", err)
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.BalanceAfter = newBalance

	query, args, err = a.db.Insert("credit_ledger").Rows(goqu.Record{
		"id":             entry.ID,
		"user_id":        entry.UserID,
		"amount":         entry.Amount,
		"operation_type": entry.OperationType,
		"reference_id":   entry.ReferenceID,
		"balance_after":  entry.BalanceAfter,
		"created_at":     entry.CreatedAt,
	}).ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build ledger insert", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return false, apperrors.NewInternalError("failed to append ledger entry", err)
	}

	return true, nil
}
