package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/vocilia/payment-system/reward-payouts/internal/models"
	"github.com/vocilia/payment-system/reward-payouts/internal/service"
	"github.com/vocilia/payment-system/reward-payouts/internal/telemetry"
)

const defaultJobTimeout = 2 * time.Hour

// BatchRunner is satisfied by *service.BatchScheduler.
type BatchRunner interface {
	ProcessBatch(ctx context.Context, weekLabel string) (*models.PaymentBatch, error)
}

// WeeklyPayouts pays out the previous ISO week on a fixed schedule.
type WeeklyPayouts struct {
	runner   BatchRunner
	location *time.Location
	cron     *cron.Cron
	now      func() time.Time
	timeout  time.Duration
}

func NewWeeklyPayouts(runner BatchRunner, location *time.Location) *WeeklyPayouts {
	return &WeeklyPayouts{
		runner:   runner,
		location: location,
		cron:     cron.New(cron.WithLocation(location)),
		now:      time.Now,
		timeout:  defaultJobTimeout,
	}
}

// Start registers the job under spec (five-field cron syntax) and starts the
// cron loop in the background.
func (w *WeeklyPayouts) Start(spec string) error {
	if _, err := w.cron.AddFunc(spec, w.RunOnce); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	w.cron.Start()
	telemetry.Logger.Info("Weekly payout schedule registered",
		zap.String("schedule", spec),
		zap.String("timezone", w.location.String()),
	)
	return nil
}

// Stop waits for a running job to finish or ctx to expire.
func (w *WeeklyPayouts) Stop(ctx context.Context) {
	select {
	case <-w.cron.Stop().Done():
	case <-ctx.Done():
		telemetry.Logger.Warn("Payout job still running at shutdown")
	}
}

// RunOnce processes the week before now. Failures are logged, never
// propagated, so the schedule keeps firing.
func (w *WeeklyPayouts) RunOnce() {
	week := service.PreviousBatchWeek(w.now().In(w.location)).String()

	defer func() {
		if r := recover(); r != nil {
			telemetry.Logger.Error("Payout job panicked",
				zap.String("batch_week", week),
				zap.Any("panic", r),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	telemetry.Logger.Info("Scheduled payout run starting", zap.String("batch_week", week))
	batch, err := w.runner.ProcessBatch(ctx, week)
	if err != nil {
		telemetry.Logger.Error("Scheduled payout run failed",
			zap.String("batch_week", week),
			zap.Error(err),
		)
		return
	}
	telemetry.Logger.Info("Scheduled payout run finished",
		zap.String("batch_week", week),
		zap.String("status", string(batch.Status)),
		zap.Int("successful_payments", batch.SuccessfulPayments),
		zap.Int("failed_payments", batch.FailedPayments),
	)
}
