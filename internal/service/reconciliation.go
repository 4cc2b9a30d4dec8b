package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vocilia/payment-system/reward-payouts/internal/interfaces"
	"github.com/vocilia/payment-system/reward-payouts/internal/models"
	"github.com/vocilia/payment-system/reward-payouts/internal/telemetry"
)

type ReconciliationService struct {
	reports      interfaces.ReconciliationReportRepository
	invoices     interfaces.BusinessInvoiceRepository
	transactions interfaces.PaymentTransactionRepository
	adminFeeRate decimal.Decimal
	dueDays      int
	location     *time.Location
}

func NewReconciliationService(
	reports interfaces.ReconciliationReportRepository,
	invoices interfaces.BusinessInvoiceRepository,
	transactions interfaces.PaymentTransactionRepository,
	adminFeeRate decimal.Decimal,
	dueDays int,
	location *time.Location,
) *ReconciliationService {
	return &ReconciliationService{
		reports:      reports,
		invoices:     invoices,
		transactions: transactions,
		adminFeeRate: adminFeeRate,
		dueDays:      dueDays,
		location:     location,
	}
}

// Reconcile writes the batch's reconciliation report and invoices every
// business whose stores generated paid rewards. It is safe to run again.
func (s *ReconciliationService) Reconcile(ctx context.Context, batch *models.PaymentBatch) (*models.ReconciliationReport, []models.BusinessInvoice, error) {
	if batch.Status != models.BatchCompleted {
		return nil, nil, fmt.Errorf("batch %s is %s, not completed", batch.BatchWeek, batch.Status)
	}

	report, err := s.GenerateReport(ctx, batch)
	if err != nil {
		return nil, nil, err
	}
	invoices, err := s.GenerateInvoices(ctx, batch, report.StoreBreakdown)
	if err != nil {
		return report, nil, err
	}
	return report, invoices, nil
}

func (s *ReconciliationService) GenerateReport(ctx context.Context, batch *models.PaymentBatch) (*models.ReconciliationReport, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "reconciliation.report")
	defer span.End()

	breakdown, err := s.reports.StoreBreakdown(ctx, batch.ID)
	if err != nil {
		return nil, fmt.Errorf("store breakdown: %w", err)
	}
	discrepancies, err := s.reports.Discrepancies(ctx, batch.ID)
	if err != nil {
		return nil, fmt.Errorf("discrepancies: %w", err)
	}
	totals, err := s.transactions.SummarizeBatch(ctx, batch.ID)
	if err != nil {
		return nil, fmt.Errorf("summarize batch: %w", err)
	}

	report := &models.ReconciliationReport{
		BatchID:               batch.ID,
		ReportPeriod:          batch.BatchWeek,
		TotalRewardsSEK:       totals.TotalAmountSEK,
		SuccessfulPaymentsSEK: totals.SuccessfulAmountSEK,
		FailedPaymentsSEK:     totals.FailedAmountSEK,
		StoreBreakdown:        breakdown,
		Discrepancies:         discrepancies,
		DiscrepancyCount:      len(discrepancies),
	}

	paidByStores := decimal.Zero
	for _, b := range breakdown {
		paidByStores = paidByStores.Add(b.TotalRewardsSEK)
	}
	if !paidByStores.Equal(totals.SuccessfulAmountSEK) {
		telemetry.Logger.Warn("Store breakdown does not match successful payouts",
			zap.String("batch_week", batch.BatchWeek),
			zap.String("stores_sek", paidByStores.StringFixed(2)),
			zap.String("payouts_sek", totals.SuccessfulAmountSEK.StringFixed(2)),
		)
	}

	if err := s.reports.Upsert(ctx, report); err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}

	telemetry.Logger.Info("Reconciliation report generated",
		zap.String("batch_week", batch.BatchWeek),
		zap.Int("stores", len(breakdown)),
		zap.Int("discrepancies", len(discrepancies)),
	)
	return report, nil
}

// GenerateInvoices bills each business the rewards paid to its customers plus
// the admin fee. Due date counts from the end of the batch week.
func (s *ReconciliationService) GenerateInvoices(ctx context.Context, batch *models.PaymentBatch, breakdown []models.StoreBreakdown) ([]models.BusinessInvoice, error) {
	week, err := ParseBatchWeek(batch.BatchWeek)
	if err != nil {
		return nil, err
	}
	dueDate := week.End(s.location).AddDate(0, 0, s.dueDays)

	rewardsByBusiness := make(map[uuid.UUID]decimal.Decimal)
	for _, b := range breakdown {
		rewardsByBusiness[b.BusinessID] = rewardsByBusiness[b.BusinessID].Add(b.TotalRewardsSEK)
	}

	businessIDs := make([]uuid.UUID, 0, len(rewardsByBusiness))
	for id := range rewardsByBusiness {
		businessIDs = append(businessIDs, id)
	}
	sort.Slice(businessIDs, func(i, j int) bool { return businessIDs[i].String() < businessIDs[j].String() })

	invoices := make([]models.BusinessInvoice, 0, len(businessIDs))
	for _, businessID := range businessIDs {
		rewards := rewardsByBusiness[businessID]
		fee := rewards.Mul(s.adminFeeRate).Round(2)

		invoice := models.BusinessInvoice{
			BusinessID:     businessID,
			BatchID:        batch.ID,
			TotalRewardSEK: rewards,
			AdminFeeSEK:    fee,
			TotalAmountSEK: rewards.Add(fee),
			PaymentStatus:  models.InvoicePending,
			DueDate:        dueDate,
		}
		if err := s.invoices.Upsert(ctx, &invoice); err != nil {
			return nil, fmt.Errorf("save invoice for business %s: %w", businessID, err)
		}
		invoices = append(invoices, invoice)
	}
	return invoices, nil
}
