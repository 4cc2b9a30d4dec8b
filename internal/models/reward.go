package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeedbackQuality is the input of the cashback percentage calculation.
type FeedbackQuality struct {
	Rating           int     `json:"rating"`
	DetailedFeedback bool    `json:"detailed_feedback"`
	Sentiment        float64 `json:"sentiment"`
}

// RewardCalculation is the pending cashback for one verified piece of feedback.
// ClaimedBatchID reserves it for a batch run; PaymentTransactionID marks it paid.
type RewardCalculation struct {
	ID                   uuid.UUID       `json:"id"`
	FeedbackID           uuid.UUID       `json:"feedback_id"`
	StoreID              uuid.UUID       `json:"store_id"`
	BusinessID           uuid.UUID       `json:"business_id"`
	CustomerPhone        string          `json:"customer_phone"`
	TransactionAmountSEK decimal.Decimal `json:"transaction_amount_sek"`
	Rating               int             `json:"rating"`
	DetailedFeedback     bool            `json:"detailed_feedback"`
	Sentiment            float64         `json:"sentiment"`
	RewardPercentage     int             `json:"reward_percentage"`
	RewardAmountSEK      decimal.Decimal `json:"reward_amount_sek"`
	VerifiedByBusiness   bool            `json:"verified_by_business"`
	VerifiedAt           time.Time       `json:"verified_at"`
	ClaimedBatchID       *uuid.UUID      `json:"claimed_batch_id,omitempty"`
	ClaimedAt            *time.Time      `json:"claimed_at,omitempty"`
	PaymentTransactionID *uuid.UUID      `json:"payment_transaction_id,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// CustomerRewardAggregate is one row of the per-customer pending reward sum.
type CustomerRewardAggregate struct {
	CustomerPhone  string          `json:"customer_phone"`
	TotalRewardSEK decimal.Decimal `json:"total_reward_sek"`
	RewardCount    int             `json:"reward_count"`
	StoreCount     int             `json:"store_count"`
}
