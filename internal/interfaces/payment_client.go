package interfaces

import (
	"context"
	"time"

	"github.com/vocilia/payment-system/reward-payouts/internal/models"
)

// PaymentClient issues a single payout to a customer's Swish alias.
// Implementations must treat PayeePaymentReference as an idempotency key.
type PaymentClient interface {
	Payout(ctx context.Context, req models.PayoutRequest) (*models.PayoutResult, error)
}

// BatchLocker guards a batch week against concurrent runs.
type BatchLocker interface {
	Lock(ctx context.Context, batchWeek string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, batchWeek string) error
}

// EventPublisher emits batch and transaction lifecycle events.
type EventPublisher interface {
	PublishBatchEvent(ctx context.Context, event models.BatchEvent) error
	PublishTransactionEvent(ctx context.Context, event models.TransactionEvent) error
}
