package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReconciliationReport struct {
	ID                    uuid.UUID        `json:"id"`
	BatchID               uuid.UUID        `json:"batch_id"`
	ReportPeriod          string           `json:"report_period"`
	TotalRewardsSEK       decimal.Decimal  `json:"total_rewards_sek"`
	SuccessfulPaymentsSEK decimal.Decimal  `json:"successful_payments_sek"`
	FailedPaymentsSEK     decimal.Decimal  `json:"failed_payments_sek"`
	StoreBreakdown        []StoreBreakdown `json:"store_breakdown"`
	Discrepancies         []Discrepancy    `json:"discrepancies"`
	DiscrepancyCount      int              `json:"discrepancy_count"`
	CreatedAt             time.Time        `json:"created_at"`
}

// StoreBreakdown is the rewards a store's customers were paid in one batch.
type StoreBreakdown struct {
	BusinessID      uuid.UUID       `json:"business_id"`
	StoreID         uuid.UUID       `json:"store_id"`
	RewardCount     int             `json:"reward_count"`
	TotalRewardsSEK decimal.Decimal `json:"total_rewards_sek"`
	UniqueCustomers int             `json:"unique_customers"`
}

// Discrepancy is a completed transaction whose amount does not match the
// rewards linked to it.
type Discrepancy struct {
	TransactionID        uuid.UUID       `json:"transaction_id"`
	CustomerPhone        string          `json:"customer_phone"`
	TransactionAmountSEK decimal.Decimal `json:"transaction_amount_sek"`
	LinkedRewardsSEK     decimal.Decimal `json:"linked_rewards_sek"`
	DifferenceSEK        decimal.Decimal `json:"difference_sek"`
}
