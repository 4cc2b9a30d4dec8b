package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "pending"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
)

// BusinessInvoice bills a business for the rewards its stores generated in
// one batch plus the platform admin fee.
type BusinessInvoice struct {
	ID             uuid.UUID       `json:"id"`
	BusinessID     uuid.UUID       `json:"business_id"`
	BatchID        uuid.UUID       `json:"batch_id"`
	TotalRewardSEK decimal.Decimal `json:"total_reward_sek"`
	AdminFeeSEK    decimal.Decimal `json:"admin_fee_sek"`
	TotalAmountSEK decimal.Decimal `json:"total_amount_sek"`
	PaymentStatus  InvoiceStatus   `json:"payment_status"`
	DueDate        time.Time       `json:"due_date"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
