package handlers

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vocilia/payment-system/reward-payouts/internal/models"
	"github.com/vocilia/payment-system/reward-payouts/internal/service"
)

// Test errors
var (
	ErrMockDB = errors.New("database unavailable")
)

// MockBatchService implements BatchService for testing
type MockBatchService struct {
	ProcessBatchFunc     func(ctx context.Context, weekLabel string) (*models.PaymentBatch, error)
	GetBatchFunc         func(ctx context.Context, id uuid.UUID) (*models.PaymentBatch, error)
	ListBatchesFunc      func(ctx context.Context, status models.BatchStatus, limit, offset int) ([]models.PaymentBatch, error)
	ListTransactionsFunc func(ctx context.Context, batchID uuid.UUID, status models.TransactionStatus, limit, offset int) ([]models.PaymentTransaction, error)
}

func (m *MockBatchService) ProcessBatch(ctx context.Context, weekLabel string) (*models.PaymentBatch, error) {
	if m.ProcessBatchFunc != nil {
		return m.ProcessBatchFunc(ctx, weekLabel)
	}
	return &models.PaymentBatch{ID: uuid.New(), BatchWeek: weekLabel, Status: models.BatchCompleted}, nil
}

func (m *MockBatchService) GetBatch(ctx context.Context, id uuid.UUID) (*models.PaymentBatch, error) {
	if m.GetBatchFunc != nil {
		return m.GetBatchFunc(ctx, id)
	}
	return nil, sql.ErrNoRows
}

func (m *MockBatchService) ListBatches(ctx context.Context, status models.BatchStatus, limit, offset int) ([]models.PaymentBatch, error) {
	if m.ListBatchesFunc != nil {
		return m.ListBatchesFunc(ctx, status, limit, offset)
	}
	return nil, nil
}

func (m *MockBatchService) ListTransactions(ctx context.Context, batchID uuid.UUID, status models.TransactionStatus, limit, offset int) ([]models.PaymentTransaction, error) {
	if m.ListTransactionsFunc != nil {
		return m.ListTransactionsFunc(ctx, batchID, status, limit, offset)
	}
	return nil, nil
}

// MockReconciler implements Reconciler for testing
type MockReconciler struct {
	ReconcileFunc func(ctx context.Context, batch *models.PaymentBatch) (*models.ReconciliationReport, []models.BusinessInvoice, error)
	CallCount     int
}

func (m *MockReconciler) Reconcile(ctx context.Context, batch *models.PaymentBatch) (*models.ReconciliationReport, []models.BusinessInvoice, error) {
	m.CallCount++
	if m.ReconcileFunc != nil {
		return m.ReconcileFunc(ctx, batch)
	}
	return &models.ReconciliationReport{BatchID: batch.ID}, nil, nil
}

// MockReportReader implements ReportReader for testing
type MockReportReader struct {
	GetByBatchFunc func(ctx context.Context, batchID uuid.UUID) (*models.ReconciliationReport, error)
}

func (m *MockReportReader) GetByBatch(ctx context.Context, batchID uuid.UUID) (*models.ReconciliationReport, error) {
	if m.GetByBatchFunc != nil {
		return m.GetByBatchFunc(ctx, batchID)
	}
	return nil, sql.ErrNoRows
}

// MockTransactionReader implements TransactionReader for testing
type MockTransactionReader struct {
	GetByIDFunc    func(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	GetFailureFunc func(ctx context.Context, transactionID uuid.UUID) (*models.PaymentFailure, error)
}

func (m *MockTransactionReader) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, sql.ErrNoRows
}

func (m *MockTransactionReader) GetFailure(ctx context.Context, transactionID uuid.UUID) (*models.PaymentFailure, error) {
	if m.GetFailureFunc != nil {
		return m.GetFailureFunc(ctx, transactionID)
	}
	return nil, sql.ErrNoRows
}

// MockInvoiceStore implements InvoiceStore for testing
type MockInvoiceStore struct {
	ListByBatchFunc         func(ctx context.Context, batchID uuid.UUID) ([]models.BusinessInvoice, error)
	ListByBusinessFunc      func(ctx context.Context, businessID uuid.UUID, limit, offset int) ([]models.BusinessInvoice, error)
	UpdatePaymentStatusFunc func(ctx context.Context, id uuid.UUID, status models.InvoiceStatus) (int64, error)
}

func (m *MockInvoiceStore) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.BusinessInvoice, error) {
	if m.ListByBatchFunc != nil {
		return m.ListByBatchFunc(ctx, batchID)
	}
	return nil, nil
}

func (m *MockInvoiceStore) ListByBusiness(ctx context.Context, businessID uuid.UUID, limit, offset int) ([]models.BusinessInvoice, error) {
	if m.ListByBusinessFunc != nil {
		return m.ListByBusinessFunc(ctx, businessID, limit, offset)
	}
	return nil, nil
}

func (m *MockInvoiceStore) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status models.InvoiceStatus) (int64, error) {
	if m.UpdatePaymentStatusFunc != nil {
		return m.UpdatePaymentStatusFunc(ctx, id, status)
	}
	return 1, nil
}

// MockRewardRecorder implements RewardRecorder for testing
type MockRewardRecorder struct {
	RecordVerifiedFeedbackFunc func(ctx context.Context, fb service.VerifiedFeedback) (*models.RewardCalculation, error)
	PendingForCustomerFunc     func(ctx context.Context, customerPhone string) ([]models.RewardCalculation, decimal.Decimal, error)
}

func (m *MockRewardRecorder) RecordVerifiedFeedback(ctx context.Context, fb service.VerifiedFeedback) (*models.RewardCalculation, error) {
	if m.RecordVerifiedFeedbackFunc != nil {
		return m.RecordVerifiedFeedbackFunc(ctx, fb)
	}
	return &models.RewardCalculation{ID: uuid.New(), FeedbackID: fb.FeedbackID, BusinessID: fb.BusinessID}, nil
}

func (m *MockRewardRecorder) PendingForCustomer(ctx context.Context, customerPhone string) ([]models.RewardCalculation, decimal.Decimal, error) {
	if m.PendingForCustomerFunc != nil {
		return m.PendingForCustomerFunc(ctx, customerPhone)
	}
	return nil, decimal.Zero, nil
}
