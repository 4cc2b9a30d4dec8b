package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/vocilia/payment-system/reward-payouts/internal/models"
)

type ReconciliationReportRepository struct {
	db *sql.DB
}

func NewReconciliationReportRepository(db *sql.DB) *ReconciliationReportRepository {
	return &ReconciliationReportRepository{db: db}
}

// Upsert stores the report, replacing any earlier report for the same batch.
func (r *ReconciliationReportRepository) Upsert(ctx context.Context, report *models.ReconciliationReport) error {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	breakdown, err := json.Marshal(nonNilBreakdown(report.StoreBreakdown))
	if err != nil {
		return fmt.Errorf("marshal store breakdown: %w", err)
	}
	discrepancies, err := json.Marshal(nonNilDiscrepancies(report.Discrepancies))
	if err != nil {
		return fmt.Errorf("marshal discrepancies: %w", err)
	}

	return r.db.QueryRowContext(ctx, `
		INSERT INTO reconciliation_reports (id, batch_id, report_period, total_rewards_sek,
			successful_payments_sek, failed_payments_sek, store_breakdown, discrepancies, discrepancy_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (batch_id) DO UPDATE
		SET report_period = EXCLUDED.report_period,
			total_rewards_sek = EXCLUDED.total_rewards_sek,
			successful_payments_sek = EXCLUDED.successful_payments_sek,
			failed_payments_sek = EXCLUDED.failed_payments_sek,
			store_breakdown = EXCLUDED.store_breakdown,
			discrepancies = EXCLUDED.discrepancies,
			discrepancy_count = EXCLUDED.discrepancy_count
		RETURNING id, created_at
	`, report.ID, report.BatchID, report.ReportPeriod, report.TotalRewardsSEK,
		report.SuccessfulPaymentsSEK, report.FailedPaymentsSEK, breakdown, discrepancies,
		report.DiscrepancyCount,
	).Scan(&report.ID, &report.CreatedAt)
}

func (r *ReconciliationReportRepository) GetByBatch(ctx context.Context, batchID uuid.UUID) (*models.ReconciliationReport, error) {
	var (
		report        models.ReconciliationReport
		breakdown     []byte
		discrepancies []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, batch_id, report_period, total_rewards_sek, successful_payments_sek,
			failed_payments_sek, store_breakdown, discrepancies, discrepancy_count, created_at
		FROM reconciliation_reports WHERE batch_id = $1
	`, batchID).Scan(&report.ID, &report.BatchID, &report.ReportPeriod, &report.TotalRewardsSEK,
		&report.SuccessfulPaymentsSEK, &report.FailedPaymentsSEK, &breakdown, &discrepancies,
		&report.DiscrepancyCount, &report.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(breakdown, &report.StoreBreakdown); err != nil {
		return nil, fmt.Errorf("decode store breakdown: %w", err)
	}
	if err := json.Unmarshal(discrepancies, &report.Discrepancies); err != nil {
		return nil, fmt.Errorf("decode discrepancies: %w", err)
	}
	return &report, nil
}

func (r *ReconciliationReportRepository) StoreBreakdown(ctx context.Context, batchID uuid.UUID) ([]models.StoreBreakdown, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT business_id, store_id, reward_count, total_rewards_sek, unique_customers
		FROM generate_store_breakdown($1)
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StoreBreakdown
	for rows.Next() {
		var s models.StoreBreakdown
		if err := rows.Scan(&s.BusinessID, &s.StoreID, &s.RewardCount, &s.TotalRewardsSEK,
			&s.UniqueCustomers); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ReconciliationReportRepository) Discrepancies(ctx context.Context, batchID uuid.UUID) ([]models.Discrepancy, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT transaction_id, customer_phone, transaction_amount_sek, linked_rewards_sek, difference_sek
		FROM calculate_batch_discrepancies($1)
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Discrepancy
	for rows.Next() {
		var d models.Discrepancy
		if err := rows.Scan(&d.TransactionID, &d.CustomerPhone, &d.TransactionAmountSEK,
			&d.LinkedRewardsSEK, &d.DifferenceSEK); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func nonNilBreakdown(s []models.StoreBreakdown) []models.StoreBreakdown {
	if s == nil {
		return []models.StoreBreakdown{}
	}
	return s
}

func nonNilDiscrepancies(d []models.Discrepancy) []models.Discrepancy {
	if d == nil {
		return []models.Discrepancy{}
	}
	return d
}
