package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// PaymentTransaction is the payout to one customer within one batch.
type PaymentTransaction struct {
	ID             uuid.UUID         `json:"id"`
	BatchID        uuid.UUID         `json:"batch_id"`
	CustomerPhone  string            `json:"customer_phone"`
	AmountSEK      decimal.Decimal   `json:"amount_sek"`
	RewardCount    int               `json:"reward_count"`
	Status         TransactionStatus `json:"status"`
	SwishReference string            `json:"swish_reference,omitempty"`
	FailureReason  string            `json:"failure_reason,omitempty"`
	ProcessedAt    *time.Time        `json:"processed_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type PaymentFailure struct {
	ID            uuid.UUID `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Reason        string    `json:"reason"`
	RetryCount    int       `json:"retry_count"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// PayoutRequest is what the payment client sends to Swish.
type PayoutRequest struct {
	PayeePaymentReference string          `json:"payee_payment_reference"`
	PayeeAlias            string          `json:"payee_alias"`
	AmountSEK             decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Message               string          `json:"message"`
}

type PayoutStatus string

const (
	PayoutPaid     PayoutStatus = "PAID"
	PayoutDeclined PayoutStatus = "DECLINED"
	PayoutError    PayoutStatus = "ERROR"
)

type PayoutResult struct {
	PaymentReference string       `json:"payment_reference"`
	Status           PayoutStatus `json:"status"`
	ErrorCode        string       `json:"error_code,omitempty"`
	ErrorMessage     string       `json:"error_message,omitempty"`
}

// TransactionEvent is published for each payout outcome.
type TransactionEvent struct {
	TransactionID uuid.UUID         `json:"transaction_id"`
	BatchID       uuid.UUID         `json:"batch_id"`
	Status        TransactionStatus `json:"status"`
	AmountSEK     decimal.Decimal   `json:"amount_sek"`
	Reason        string            `json:"reason,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}
