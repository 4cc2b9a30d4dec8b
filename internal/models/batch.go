package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// PaymentBatch is one weekly payout cycle, unique per ISO week label.
type PaymentBatch struct {
	ID                 uuid.UUID       `json:"id"`
	BatchWeek          string          `json:"batch_week"`
	Status             BatchStatus     `json:"status"`
	TotalAmountSEK     decimal.Decimal `json:"total_amount_sek"`
	TotalCustomers     int             `json:"total_customers"`
	SuccessfulPayments int             `json:"successful_payments"`
	FailedPayments     int             `json:"failed_payments"`
	StartedAt          *time.Time      `json:"started_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage       string          `json:"error_message,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// BatchTotals summarizes the transactions of one batch by outcome.
type BatchTotals struct {
	TotalCustomers      int
	TotalAmountSEK      decimal.Decimal
	SuccessfulPayments  int
	SuccessfulAmountSEK decimal.Decimal
	FailedPayments      int
	FailedAmountSEK     decimal.Decimal
	PendingPayments     int
}

// BatchEvent is published when a batch changes status.
type BatchEvent struct {
	BatchID            uuid.UUID       `json:"batch_id"`
	BatchWeek          string          `json:"batch_week"`
	Status             BatchStatus     `json:"status"`
	PreviousStatus     BatchStatus     `json:"previous_status,omitempty"`
	TotalAmountSEK     decimal.Decimal `json:"total_amount_sek"`
	SuccessfulPayments int             `json:"successful_payments"`
	FailedPayments     int             `json:"failed_payments"`
	Timestamp          time.Time       `json:"timestamp"`
}
