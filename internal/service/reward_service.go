package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vocilia/payment-system/reward-payouts/internal/interfaces"
	"github.com/vocilia/payment-system/reward-payouts/internal/models"
	"github.com/vocilia/payment-system/reward-payouts/internal/swish"
	"github.com/vocilia/payment-system/reward-payouts/internal/telemetry"
)

var ErrDuplicateReward = errors.New("reward already recorded for feedback")

// VerifiedFeedback is feedback a business has confirmed against its own
// transaction records.
type VerifiedFeedback struct {
	FeedbackID           uuid.UUID
	StoreID              uuid.UUID
	BusinessID           uuid.UUID
	CustomerPhone        string
	TransactionAmountSEK decimal.Decimal
	Quality              models.FeedbackQuality
}

type RewardService struct {
	rewards interfaces.RewardCalculationRepository
	now     func() time.Time
}

func NewRewardService(rewards interfaces.RewardCalculationRepository) *RewardService {
	return &RewardService{rewards: rewards, now: time.Now}
}

// RecordVerifiedFeedback computes the cashback for the feedback and stores it
// as a pending reward for the next weekly batch.
func (s *RewardService) RecordVerifiedFeedback(ctx context.Context, fb VerifiedFeedback) (*models.RewardCalculation, error) {
	if err := validateFeedbackIDs(fb); err != nil {
		return nil, err
	}
	if err := ValidateFeedback(fb.Quality, fb.TransactionAmountSEK); err != nil {
		return nil, err
	}
	phone, err := swish.NormalizePhone(fb.CustomerPhone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFeedback, err)
	}

	pct := RewardPercentage(fb.Quality)
	reward := &models.RewardCalculation{
		ID:                   uuid.New(),
		FeedbackID:           fb.FeedbackID,
		StoreID:              fb.StoreID,
		BusinessID:           fb.BusinessID,
		CustomerPhone:        phone,
		TransactionAmountSEK: fb.TransactionAmountSEK,
		Rating:               fb.Quality.Rating,
		DetailedFeedback:     fb.Quality.DetailedFeedback,
		Sentiment:            fb.Quality.Sentiment,
		RewardPercentage:     pct,
		RewardAmountSEK:      RewardAmount(fb.TransactionAmountSEK, pct),
		VerifiedByBusiness:   true,
		VerifiedAt:           s.now(),
	}

	if err := s.rewards.Create(ctx, reward); err != nil {
		if errors.Is(err, interfaces.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateReward, fb.FeedbackID)
		}
		return nil, err
	}

	telemetry.RewardsCalculated.Inc()
	telemetry.Logger.Info("Reward recorded",
		zap.String("feedback_id", fb.FeedbackID.String()),
		zap.String("business_id", fb.BusinessID.String()),
		zap.Int("reward_percentage", pct),
		zap.String("reward_amount_sek", reward.RewardAmountSEK.StringFixed(2)),
	)
	return reward, nil
}

func validateFeedbackIDs(fb VerifiedFeedback) error {
	switch {
	case fb.FeedbackID == uuid.Nil:
		return fmt.Errorf("%w: feedback_id is required", ErrInvalidFeedback)
	case fb.StoreID == uuid.Nil:
		return fmt.Errorf("%w: store_id is required", ErrInvalidFeedback)
	case fb.BusinessID == uuid.Nil:
		return fmt.Errorf("%w: business_id is required", ErrInvalidFeedback)
	}
	return nil
}

// PendingForCustomer lists the customer's unpaid rewards and their total.
func (s *RewardService) PendingForCustomer(ctx context.Context, customerPhone string) ([]models.RewardCalculation, decimal.Decimal, error) {
	phone, err := swish.NormalizePhone(customerPhone)
	if err != nil {
		return nil, decimal.Zero, err
	}
	rewards, err := s.rewards.ListPendingByCustomer(ctx, phone)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return rewards, SumPendingRewards(rewards)[phone], nil
}
