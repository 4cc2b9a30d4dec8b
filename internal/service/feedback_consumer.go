package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vocilia/payment-system/reward-payouts/internal/models"
	"github.com/vocilia/payment-system/reward-payouts/internal/telemetry"
)

const feedbackRetryDelay = 5 * time.Second

// messageReader is the subset of *kafka.Reader used for consuming.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// FeedbackVerifiedEvent is emitted by the business app when a business
// confirms feedback against its transaction records.
type FeedbackVerifiedEvent struct {
	FeedbackID           uuid.UUID       `json:"feedback_id"`
	StoreID              uuid.UUID       `json:"store_id"`
	BusinessID           uuid.UUID       `json:"business_id"`
	CustomerPhone        string          `json:"customer_phone"`
	TransactionAmountSEK decimal.Decimal `json:"transaction_amount_sek"`
	Rating               int             `json:"rating"`
	DetailedFeedback     bool            `json:"detailed_feedback"`
	Sentiment            float64         `json:"sentiment"`
}

type rewardRecorder interface {
	RecordVerifiedFeedback(ctx context.Context, fb VerifiedFeedback) (*models.RewardCalculation, error)
}

// FeedbackConsumer turns verified feedback events into pending rewards.
type FeedbackConsumer struct {
	reader     messageReader
	rewards    rewardRecorder
	retryDelay time.Duration
}

func NewFeedbackConsumer(reader messageReader, rewards rewardRecorder) *FeedbackConsumer {
	return &FeedbackConsumer{reader: reader, rewards: rewards, retryDelay: feedbackRetryDelay}
}

// Run consumes until ctx is cancelled. A message is committed once its reward
// is stored, or when it can never be stored (malformed, invalid, duplicate).
func (c *FeedbackConsumer) Run(ctx context.Context) error {
	telemetry.Logger.Info("Started consuming feedback verified events")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			telemetry.Logger.Error("Error reading message from Kafka", zap.Error(err))
			if !c.wait(ctx) {
				return nil
			}
			continue
		}

		for {
			err = c.handle(ctx, msg)
			if err == nil {
				break
			}
			telemetry.Logger.Error("Error recording reward, retrying",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			if !c.wait(ctx) {
				return nil
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			telemetry.Logger.Error("Error committing offset", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// handle returns an error only for failures worth retrying.
func (c *FeedbackConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var event FeedbackVerifiedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		telemetry.Logger.Error("Error unmarshaling event", zap.Int64("offset", msg.Offset), zap.Error(err))
		return nil
	}

	_, err := c.rewards.RecordVerifiedFeedback(ctx, VerifiedFeedback{
		FeedbackID:           event.FeedbackID,
		StoreID:              event.StoreID,
		BusinessID:           event.BusinessID,
		CustomerPhone:        event.CustomerPhone,
		TransactionAmountSEK: event.TransactionAmountSEK,
		Quality: models.FeedbackQuality{
			Rating:           event.Rating,
			DetailedFeedback: event.DetailedFeedback,
			Sentiment:        event.Sentiment,
		},
	})
	switch {
	case errors.Is(err, ErrDuplicateReward):
		telemetry.Logger.Info("Reward already recorded", zap.String("feedback_id", event.FeedbackID.String()))
		return nil
	case errors.Is(err, ErrInvalidFeedback):
		telemetry.Logger.Warn("Dropping invalid feedback event",
			zap.String("feedback_id", event.FeedbackID.String()),
			zap.Error(err),
		)
		return nil
	}
	return err
}

func (c *FeedbackConsumer) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.retryDelay):
		return true
	}
}
