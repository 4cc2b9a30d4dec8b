package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/vocilia/payment-system/reward-payouts/internal/interfaces"
	"github.com/vocilia/payment-system/reward-payouts/internal/models"
	"github.com/vocilia/payment-system/reward-payouts/internal/swish"
	"github.com/vocilia/payment-system/reward-payouts/internal/telemetry"
)

// PaymentOutcome is the result of paying one customer. Payment failures are
// outcomes, not errors.
type PaymentOutcome struct {
	Transaction   *models.PaymentTransaction
	Paid          bool
	AlreadyPaid   bool
	Unsettled     bool
	FailureReason string
	RewardsLinked int64
}

type PaymentProcessor struct {
	transactions interfaces.PaymentTransactionRepository
	client       interfaces.PaymentClient
	events       interfaces.EventPublisher
}

func NewPaymentProcessor(
	transactions interfaces.PaymentTransactionRepository,
	client interfaces.PaymentClient,
	events interfaces.EventPublisher,
) *PaymentProcessor {
	return &PaymentProcessor{
		transactions: transactions,
		client:       client,
		events:       events,
	}
}

// Process pays one customer's aggregated rewards for the batch. The returned
// error is non-nil only when the outcome could not be persisted.
func (p *PaymentProcessor) Process(ctx context.Context, batch *models.PaymentBatch, aggregate models.CustomerRewardAggregate) (*PaymentOutcome, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "payment.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch.id", batch.ID.String()),
		attribute.Int("reward.count", aggregate.RewardCount),
	)

	ptx, err := p.transactions.UpsertPending(ctx, batch.ID, aggregate)
	if errors.Is(err, interfaces.ErrAlreadyPaid) {
		telemetry.Logger.Warn("Customer already paid in batch",
			zap.String("batch_id", batch.ID.String()),
			zap.String("customer_phone", swish.MaskPhone(aggregate.CustomerPhone)),
		)
		return &PaymentOutcome{AlreadyPaid: true}, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	span.SetAttributes(attribute.String("transaction.id", ptx.ID.String()))

	alias, err := swish.NormalizePhone(ptx.CustomerPhone)
	if err != nil {
		return p.fail(ctx, ptx, fmt.Sprintf("invalid_phone: %v", err))
	}

	result, err := p.client.Payout(ctx, models.PayoutRequest{
		PayeePaymentReference: payeeReference(ptx),
		PayeeAlias:            alias,
		AmountSEK:             ptx.AmountSEK,
		Currency:              "SEK",
		Message:               fmt.Sprintf("Vocilia cashback %s", batch.BatchWeek),
	})
	if err != nil {
		// The payout may have gone through; only a resume with the same
		// payee reference can tell.
		return p.unsettled(ctx, ptx, fmt.Sprintf("gateway_error: %v", err))
	}
	switch result.Status {
	case models.PayoutPaid:
	case models.PayoutDeclined, models.PayoutError:
		return p.fail(ctx, ptx, fmt.Sprintf("%s %s: %s", strings.ToLower(string(result.Status)), result.ErrorCode, result.ErrorMessage))
	default:
		return p.unsettled(ctx, ptx, fmt.Sprintf("unknown_status: %q", result.Status))
	}

	linked, err := p.transactions.MarkCompleted(ctx, ptx, result.PaymentReference)
	if err != nil {
		// Money has left; a rerun re-sends the same payee reference.
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist completed payout")
		return nil, fmt.Errorf("mark transaction %s completed: %w", ptx.ID, err)
	}
	ptx.Status = models.TransactionCompleted
	ptx.SwishReference = result.PaymentReference

	telemetry.Payouts.WithLabelValues(string(models.TransactionCompleted)).Inc()
	telemetry.PayoutAmountSEK.Add(ptx.AmountSEK.InexactFloat64())
	telemetry.Logger.Info("Payout completed",
		zap.String("transaction_id", ptx.ID.String()),
		zap.String("customer_phone", swish.MaskPhone(ptx.CustomerPhone)),
		zap.String("amount_sek", ptx.AmountSEK.StringFixed(2)),
		zap.Int64("rewards_linked", linked),
	)
	p.publish(ctx, ptx, "")

	return &PaymentOutcome{Transaction: ptx, Paid: true, RewardsLinked: linked}, nil
}

func (p *PaymentProcessor) fail(ctx context.Context, ptx *models.PaymentTransaction, reason string) (*PaymentOutcome, error) {
	if err := p.transactions.MarkFailed(ctx, ptx, reason); err != nil {
		return nil, fmt.Errorf("mark transaction %s failed: %w", ptx.ID, err)
	}
	ptx.Status = models.TransactionFailed
	ptx.FailureReason = reason

	telemetry.Payouts.WithLabelValues(string(models.TransactionFailed)).Inc()
	telemetry.Logger.Warn("Payout failed",
		zap.String("transaction_id", ptx.ID.String()),
		zap.String("customer_phone", swish.MaskPhone(ptx.CustomerPhone)),
		zap.String("reason", reason),
	)
	p.publish(ctx, ptx, reason)

	return &PaymentOutcome{Transaction: ptx, FailureReason: reason}, nil
}

// unsettled keeps the transaction pending and its rewards claimed by the batch.
func (p *PaymentProcessor) unsettled(ctx context.Context, ptx *models.PaymentTransaction, reason string) (*PaymentOutcome, error) {
	if err := p.transactions.MarkUnsettled(ctx, ptx, reason); err != nil {
		return nil, fmt.Errorf("record unsettled transaction %s: %w", ptx.ID, err)
	}
	ptx.FailureReason = reason

	telemetry.Payouts.WithLabelValues("unsettled").Inc()
	telemetry.Logger.Warn("Payout outcome unknown, leaving transaction pending",
		zap.String("transaction_id", ptx.ID.String()),
		zap.String("customer_phone", swish.MaskPhone(ptx.CustomerPhone)),
		zap.String("reason", reason),
	)

	return &PaymentOutcome{Transaction: ptx, Unsettled: true, FailureReason: reason}, nil
}

func (p *PaymentProcessor) publish(ctx context.Context, ptx *models.PaymentTransaction, reason string) {
	err := p.events.PublishTransactionEvent(ctx, models.TransactionEvent{
		TransactionID: ptx.ID,
		BatchID:       ptx.BatchID,
		Status:        ptx.Status,
		AmountSEK:     ptx.AmountSEK,
		Reason:        reason,
		Timestamp:     time.Now(),
	})
	if err != nil {
		telemetry.Logger.Error("Failed to publish transaction event",
			zap.String("transaction_id", ptx.ID.String()),
			zap.Error(err),
		)
	}
}

// payeeReference fits the transaction id into Swish's 35 character limit.
func payeeReference(ptx *models.PaymentTransaction) string {
	return strings.ToUpper(strings.ReplaceAll(ptx.ID.String(), "-", ""))
}
