package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vocilia/payment-system/reward-payouts/internal/models"
)

const (
	basePercentage = 2
	maxPercentage  = 15
)

var ErrInvalidFeedback = errors.New("invalid feedback")

var hundred = decimal.NewFromInt(100)

// RewardPercentage is the cashback share of the purchase earned by one piece
// of feedback, between 2 and 15 percent.
func RewardPercentage(q models.FeedbackQuality) int {
	pct := basePercentage

	switch {
	case q.Rating >= 4:
		pct += 3
	case q.Rating >= 3:
		pct += 1
	}

	if q.DetailedFeedback {
		pct += 3
	}

	switch {
	case q.Sentiment > 0.7:
		pct += 7
	case q.Sentiment > 0.3:
		pct += 3
	}

	return min(pct, maxPercentage)
}

// RewardAmount applies pct to the purchase amount, rounded to whole öre.
func RewardAmount(transactionAmount decimal.Decimal, pct int) decimal.Decimal {
	return transactionAmount.Mul(decimal.NewFromInt(int64(pct))).Div(hundred).Round(2)
}

func ValidateFeedback(q models.FeedbackQuality, transactionAmount decimal.Decimal) error {
	if q.Rating < 1 || q.Rating > 5 {
		return fmt.Errorf("%w: rating %d outside 1..5", ErrInvalidFeedback, q.Rating)
	}
	if q.Sentiment < -1 || q.Sentiment > 1 {
		return fmt.Errorf("%w: sentiment %.2f outside -1..1", ErrInvalidFeedback, q.Sentiment)
	}
	if !transactionAmount.IsPositive() {
		return fmt.Errorf("%w: transaction amount must be positive", ErrInvalidFeedback)
	}
	return nil
}

// SumPendingRewards totals, per customer phone, the verified rewards that are
// not yet linked to a payment transaction.
func SumPendingRewards(rewards []models.RewardCalculation) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal)
	for _, r := range rewards {
		if !r.VerifiedByBusiness || r.PaymentTransactionID != nil {
			continue
		}
		sums[r.CustomerPhone] = sums[r.CustomerPhone].Add(r.RewardAmountSEK)
	}
	return sums
}
