package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/vocilia/payment-system/reward-payouts/internal/interfaces"
	"github.com/vocilia/payment-system/reward-payouts/internal/models"
	"github.com/vocilia/payment-system/reward-payouts/internal/swish"
	"github.com/vocilia/payment-system/reward-payouts/internal/telemetry"
)

const defaultBatchLockTTL = 30 * time.Minute

var (
	ErrBatchLocked = errors.New("payment batch is already running")
	// ErrPayoutsUnsettled means some payouts have no known outcome. Their
	// rewards stay claimed until the batch is resumed.
	ErrPayoutsUnsettled = errors.New("payouts left unsettled")
)

// resumable batch states; a completed batch is never reprocessed.
var resumableStates = []models.BatchStatus{models.BatchPending, models.BatchProcessing, models.BatchFailed}

type BatchScheduler struct {
	batches      interfaces.PaymentBatchRepository
	rewards      interfaces.RewardCalculationRepository
	transactions interfaces.PaymentTransactionRepository
	processor    *PaymentProcessor
	reconciler   *ReconciliationService
	locker       interfaces.BatchLocker
	events       interfaces.EventPublisher
	location     *time.Location
	lockTTL      time.Duration
}

func NewBatchScheduler(
	batches interfaces.PaymentBatchRepository,
	rewards interfaces.RewardCalculationRepository,
	transactions interfaces.PaymentTransactionRepository,
	processor *PaymentProcessor,
	reconciler *ReconciliationService,
	locker interfaces.BatchLocker,
	events interfaces.EventPublisher,
	location *time.Location,
) *BatchScheduler {
	return &BatchScheduler{
		batches:      batches,
		rewards:      rewards,
		transactions: transactions,
		processor:    processor,
		reconciler:   reconciler,
		locker:       locker,
		events:       events,
		location:     location,
		lockTTL:      defaultBatchLockTTL,
	}
}

// ProcessBatch pays out every verified, unpaid reward of the week. Running it
// again for the same week resumes an unfinished batch and returns a completed
// one unchanged.
func (s *BatchScheduler) ProcessBatch(ctx context.Context, weekLabel string) (*models.PaymentBatch, error) {
	week, err := ParseBatchWeek(weekLabel)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.Tracer.Start(ctx, "payment_batch.process")
	defer span.End()
	span.SetAttributes(attribute.String("batch.week", week.String()))

	locked, err := s.locker.Lock(ctx, week.String(), s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire batch lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrBatchLocked, week)
	}
	defer func() {
		if err := s.locker.Unlock(context.Background(), week.String()); err != nil {
			telemetry.Logger.Error("Failed to release batch lock", zap.String("batch_week", week.String()), zap.Error(err))
		}
	}()

	batch, err := s.batches.GetOrCreate(ctx, week.String())
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", week, err)
	}
	span.SetAttributes(attribute.String("batch.id", batch.ID.String()))

	if batch.Status == models.BatchCompleted {
		telemetry.Logger.Info("Payment batch already completed",
			zap.String("batch_id", batch.ID.String()),
			zap.String("batch_week", batch.BatchWeek),
		)
		return batch, nil
	}

	if err := s.transition(ctx, batch, resumableStates, models.BatchProcessing); err != nil {
		return nil, err
	}

	start := time.Now()
	telemetry.Logger.Info("Payment batch started",
		zap.String("batch_id", batch.ID.String()),
		zap.String("batch_week", batch.BatchWeek),
	)

	if err := s.run(ctx, batch, week); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment batch failed")
		s.markFailed(batch, err)
		telemetry.BatchRuns.WithLabelValues(string(models.BatchFailed)).Inc()
		return nil, err
	}

	completed, err := s.batches.GetByID(ctx, batch.ID)
	if err != nil {
		return nil, fmt.Errorf("reload batch: %w", err)
	}

	telemetry.BatchRuns.WithLabelValues(string(models.BatchCompleted)).Inc()
	telemetry.BatchDuration.Observe(time.Since(start).Seconds())
	telemetry.Logger.Info("Payment batch completed",
		zap.String("batch_id", completed.ID.String()),
		zap.String("batch_week", completed.BatchWeek),
		zap.Int("customers", completed.TotalCustomers),
		zap.Int("successful_payments", completed.SuccessfulPayments),
		zap.Int("failed_payments", completed.FailedPayments),
		zap.String("total_amount_sek", completed.TotalAmountSEK.StringFixed(2)),
		zap.Duration("duration", time.Since(start)),
	)

	if s.reconciler != nil {
		if _, _, err := s.reconciler.Reconcile(ctx, completed); err != nil {
			// The payouts stand; the report can be regenerated from the admin API.
			telemetry.Logger.Error("Reconciliation failed",
				zap.String("batch_week", completed.BatchWeek),
				zap.Error(err),
			)
		}
	}

	return completed, nil
}

func (s *BatchScheduler) run(ctx context.Context, batch *models.PaymentBatch, week BatchWeek) error {
	claimed, err := s.rewards.ClaimPending(ctx, batch.ID, week.End(s.location))
	if err != nil {
		return fmt.Errorf("claim pending rewards: %w", err)
	}

	aggregates, err := s.rewards.AggregatePendingByCustomer(ctx, batch.ID)
	if err != nil {
		return fmt.Errorf("aggregate pending rewards: %w", err)
	}
	telemetry.Logger.Info("Rewards reserved for batch",
		zap.String("batch_id", batch.ID.String()),
		zap.Int64("rewards_claimed", claimed),
		zap.Int("customers", len(aggregates)),
	)

	for _, aggregate := range aggregates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.processor.Process(ctx, batch, aggregate); err != nil {
			return fmt.Errorf("pay customer %s: %w", swish.MaskPhone(aggregate.CustomerPhone), err)
		}
	}

	totals, err := s.transactions.SummarizeBatch(ctx, batch.ID)
	if err != nil {
		return fmt.Errorf("summarize batch: %w", err)
	}
	if totals.PendingPayments > 0 {
		return fmt.Errorf("%w: %d transactions still pending after run", ErrPayoutsUnsettled, totals.PendingPayments)
	}
	if err := s.batches.UpdateTotals(ctx, batch.ID, totals); err != nil {
		return fmt.Errorf("update batch totals: %w", err)
	}

	batch.TotalAmountSEK = totals.TotalAmountSEK
	batch.TotalCustomers = totals.TotalCustomers
	batch.SuccessfulPayments = totals.SuccessfulPayments
	batch.FailedPayments = totals.FailedPayments

	return s.transition(ctx, batch, []models.BatchStatus{models.BatchProcessing}, models.BatchCompleted)
}

func (s *BatchScheduler) transition(ctx context.Context, batch *models.PaymentBatch, from []models.BatchStatus, to models.BatchStatus) error {
	rows, err := s.batches.TransitionStatus(ctx, batch.ID, from, to)
	if err != nil {
		return fmt.Errorf("transition batch to %s: %w", to, err)
	}
	if rows == 0 {
		return fmt.Errorf("invalid batch transition from %s to %s for batch %s", batch.Status, to, batch.BatchWeek)
	}

	previous := batch.Status
	batch.Status = to
	s.publish(ctx, batch, previous)

	telemetry.Logger.Info("Payment batch state transition",
		zap.String("batch_id", batch.ID.String()),
		zap.String("from_state", string(previous)),
		zap.String("to_state", string(to)),
	)
	return nil
}

// markFailed runs on a fresh context so a cancelled run is still recorded.
func (s *BatchScheduler) markFailed(batch *models.PaymentBatch, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.batches.MarkFailed(ctx, batch.ID, cause.Error()); err != nil {
		telemetry.Logger.Error("Failed to mark batch failed",
			zap.String("batch_id", batch.ID.String()),
			zap.Error(err),
		)
		return
	}

	previous := batch.Status
	batch.Status = models.BatchFailed
	batch.ErrorMessage = cause.Error()
	s.publish(ctx, batch, previous)

	telemetry.Logger.Error("Payment batch failed",
		zap.String("batch_id", batch.ID.String()),
		zap.String("batch_week", batch.BatchWeek),
		zap.Error(cause),
	)
}

func (s *BatchScheduler) publish(ctx context.Context, batch *models.PaymentBatch, previous models.BatchStatus) {
	err := s.events.PublishBatchEvent(ctx, models.BatchEvent{
		BatchID:            batch.ID,
		BatchWeek:          batch.BatchWeek,
		Status:             batch.Status,
		PreviousStatus:     previous,
		TotalAmountSEK:     batch.TotalAmountSEK,
		SuccessfulPayments: batch.SuccessfulPayments,
		FailedPayments:     batch.FailedPayments,
		Timestamp:          time.Now(),
	})
	if err != nil {
		telemetry.Logger.Error("Failed to publish batch event",
			zap.String("batch_id", batch.ID.String()),
			zap.Error(err),
		)
	}
}

// GetBatch and ListBatches serve the admin API.
func (s *BatchScheduler) GetBatch(ctx context.Context, id uuid.UUID) (*models.PaymentBatch, error) {
	return s.batches.GetByID(ctx, id)
}

func (s *BatchScheduler) ListBatches(ctx context.Context, status models.BatchStatus, limit, offset int) ([]models.PaymentBatch, error) {
	return s.batches.List(ctx, status, limit, offset)
}

func (s *BatchScheduler) ListTransactions(ctx context.Context, batchID uuid.UUID, status models.TransactionStatus, limit, offset int) ([]models.PaymentTransaction, error) {
	return s.transactions.ListByBatch(ctx, batchID, status, limit, offset)
}
