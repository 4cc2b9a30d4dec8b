package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vocilia/payment-system/reward-payouts/internal/models"
)

var (
	// ErrConflict is returned when a unique key already exists.
	ErrConflict = errors.New("record already exists")
	// ErrAlreadyPaid is returned when a customer's transaction in a batch is
	// already completed and must not be paid again.
	ErrAlreadyPaid = errors.New("transaction already completed")
)

// PaymentBatchRepository defines the contract for payment batch data access
type PaymentBatchRepository interface {
	GetOrCreate(ctx context.Context, batchWeek string) (*models.PaymentBatch, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentBatch, error)
	GetByWeek(ctx context.Context, batchWeek string) (*models.PaymentBatch, error)
	List(ctx context.Context, status models.BatchStatus, limit, offset int) ([]models.PaymentBatch, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []models.BatchStatus, to models.BatchStatus) (int64, error)
	UpdateTotals(ctx context.Context, id uuid.UUID, totals models.BatchTotals) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// RewardCalculationRepository defines the contract for reward calculation data access
type RewardCalculationRepository interface {
	Create(ctx context.Context, reward *models.RewardCalculation) error
	GetByFeedbackID(ctx context.Context, feedbackID uuid.UUID) (*models.RewardCalculation, error)
	ListPendingByCustomer(ctx context.Context, customerPhone string) ([]models.RewardCalculation, error)
	// ClaimPending reserves every verified, unclaimed, unpaid reward verified
	// before cutoff for the batch and returns how many rows were claimed.
	ClaimPending(ctx context.Context, batchID uuid.UUID, cutoff time.Time) (int64, error)
	AggregatePendingByCustomer(ctx context.Context, batchID uuid.UUID) ([]models.CustomerRewardAggregate, error)
}

// PaymentTransactionRepository defines the contract for payment transaction data access
type PaymentTransactionRepository interface {
	UpsertPending(ctx context.Context, batchID uuid.UUID, aggregate models.CustomerRewardAggregate) (*models.PaymentTransaction, error)
	// MarkCompleted sets the transaction completed and links the customer's
	// claimed rewards to it atomically. It returns the number of rewards linked.
	MarkCompleted(ctx context.Context, tx *models.PaymentTransaction, swishReference string) (int64, error)
	// MarkFailed sets the transaction failed, records the PaymentFailure and
	// releases the customer's claims on the batch atomically.
	MarkFailed(ctx context.Context, tx *models.PaymentTransaction, reason string) error
	// MarkUnsettled notes why a pending transaction has no known outcome. The
	// transaction stays pending and the claims stay with the batch.
	MarkUnsettled(ctx context.Context, tx *models.PaymentTransaction, reason string) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	GetFailure(ctx context.Context, transactionID uuid.UUID) (*models.PaymentFailure, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID, status models.TransactionStatus, limit, offset int) ([]models.PaymentTransaction, error)
	SummarizeBatch(ctx context.Context, batchID uuid.UUID) (models.BatchTotals, error)
}

// ReconciliationReportRepository defines the contract for reconciliation report data access
type ReconciliationReportRepository interface {
	Upsert(ctx context.Context, report *models.ReconciliationReport) error
	GetByBatch(ctx context.Context, batchID uuid.UUID) (*models.ReconciliationReport, error)
	StoreBreakdown(ctx context.Context, batchID uuid.UUID) ([]models.StoreBreakdown, error)
	Discrepancies(ctx context.Context, batchID uuid.UUID) ([]models.Discrepancy, error)
}

// BusinessInvoiceRepository defines the contract for business invoice data access
type BusinessInvoiceRepository interface {
	Upsert(ctx context.Context, invoice *models.BusinessInvoice) error
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.BusinessInvoice, error)
	ListByBusiness(ctx context.Context, businessID uuid.UUID, limit, offset int) ([]models.BusinessInvoice, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status models.InvoiceStatus) (int64, error)
}
