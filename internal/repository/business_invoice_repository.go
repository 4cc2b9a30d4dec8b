package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/vocilia/payment-system/reward-payouts/internal/models"
)

const invoiceColumns = `id, business_id, batch_id, total_reward_sek, admin_fee_sek,
	total_amount_sek, payment_status, due_date, paid_at, created_at`

type BusinessInvoiceRepository struct {
	db *sql.DB
}

func NewBusinessInvoiceRepository(db *sql.DB) *BusinessInvoiceRepository {
	return &BusinessInvoiceRepository{db: db}
}

// Upsert writes the invoice for (business, batch). Amounts of an invoice that
// is already paid are not changed.
func (r *BusinessInvoiceRepository) Upsert(ctx context.Context, invoice *models.BusinessInvoice) error {
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	if invoice.PaymentStatus == "" {
		invoice.PaymentStatus = models.InvoicePending
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO business_invoices (id, business_id, batch_id, total_reward_sek, admin_fee_sek,
			total_amount_sek, payment_status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (business_id, batch_id) DO UPDATE
		SET total_reward_sek = EXCLUDED.total_reward_sek,
			admin_fee_sek = EXCLUDED.admin_fee_sek,
			total_amount_sek = EXCLUDED.total_amount_sek,
			due_date = EXCLUDED.due_date
		WHERE business_invoices.payment_status <> 'paid'
		RETURNING id, created_at
	`, invoice.ID, invoice.BusinessID, invoice.BatchID, invoice.TotalRewardSEK, invoice.AdminFeeSEK,
		invoice.TotalAmountSEK, invoice.PaymentStatus, invoice.DueDate,
	).Scan(&invoice.ID, &invoice.CreatedAt)
	if err == sql.ErrNoRows {
		// already paid, nothing to update
		return nil
	}
	return err
}

func (r *BusinessInvoiceRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.BusinessInvoice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+` FROM business_invoices
		WHERE batch_id = $1
		ORDER BY business_id
	`, batchID)
	if err != nil {
		return nil, err
	}
	return collectInvoices(rows)
}

func (r *BusinessInvoiceRepository) ListByBusiness(ctx context.Context, businessID uuid.UUID, limit, offset int) ([]models.BusinessInvoice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+` FROM business_invoices
		WHERE business_id = $1
		ORDER BY due_date DESC
		LIMIT $2 OFFSET $3
	`, businessID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectInvoices(rows)
}

func (r *BusinessInvoiceRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status models.InvoiceStatus) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE business_invoices
		SET payment_status = $1::varchar,
			paid_at = CASE WHEN $1::varchar = 'paid' THEN NOW() ELSE NULL END
		WHERE id = $2
	`, string(status), id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func collectInvoices(rows *sql.Rows) ([]models.BusinessInvoice, error) {
	defer rows.Close()

	var invoices []models.BusinessInvoice
	for rows.Next() {
		var (
			inv    models.BusinessInvoice
			paidAt sql.NullTime
		)
		if err := rows.Scan(&inv.ID, &inv.BusinessID, &inv.BatchID, &inv.TotalRewardSEK, &inv.AdminFeeSEK,
			&inv.TotalAmountSEK, &inv.PaymentStatus, &inv.DueDate, &paidAt, &inv.CreatedAt); err != nil {
			return nil, err
		}
		if paidAt.Valid {
			inv.PaidAt = &paidAt.Time
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}
