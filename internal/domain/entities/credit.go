package entities

import "time"

// CreditLedgerEntry is one row in the append-only credit ledger. Amounts are
// signed: debits are negative. ReferenceID ties a debit one-to-one with the
// operation that earned it and makes the debit idempotent.
type CreditLedgerEntry struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Amount        float64   `json:"amount"`
	OperationType string    `json:"operation_type"`
	ReferenceID   string    `json:"reference_id"`
	BalanceAfter  float64   `json:"balance_after"`
	CreatedAt     time.Time `json:"created_at"`
}

// EnhancementErrorRecord is the persisted observability record written on
// every terminal failure. It also feeds the auto-quarantine statistics.
type EnhancementErrorRecord struct {
	ID              string    `json:"id"`
	TranscriptionID string    `json:"transcription_id"`
	Provider        string    `json:"provider"`
	ModelKey        string    `json:"model_key"`
	Operation       Operation `json:"operation"`
	ErrorCode       ErrorCode `json:"error_code"`
	Message         string    `json:"message"`
	RequestChars    int       `json:"request_chars"`
	ChunkIndex      int       `json:"chunk_index"`
	CreatedAt       time.Time `json:"created_at"`
}

const errorMessageLimit = 500

// Truncate bounds the stored message so one oversized vendor payload cannot
// bloat the error log.
func (r *EnhancementErrorRecord) Truncate() {
	if len(r.Message) > errorMessageLimit {
		r.Message = r.Message[:errorMessageLimit]
	}
}
