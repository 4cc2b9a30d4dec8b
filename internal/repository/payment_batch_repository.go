package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/vocilia/payment-system/reward-payouts/internal/models"
)

const batchColumns = `id, batch_week, status, total_amount_sek, total_customers,
	successful_payments, failed_payments, started_at, completed_at, error_message,
	created_at, updated_at`

type PaymentBatchRepository struct {
	db *sql.DB
}

func NewPaymentBatchRepository(db *sql.DB) *PaymentBatchRepository {
	return &PaymentBatchRepository{db: db}
}

// GetOrCreate returns the batch for the week, inserting a pending one if none exists.
func (r *PaymentBatchRepository) GetOrCreate(ctx context.Context, batchWeek string) (*models.PaymentBatch, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_batches (id, batch_week, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (batch_week) DO NOTHING
	`, uuid.New(), batchWeek, models.BatchPending)
	if err != nil {
		return nil, err
	}
	return r.GetByWeek(ctx, batchWeek)
}

func (r *PaymentBatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentBatch, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM payment_batches WHERE id = $1`, id)
	return scanBatch(row)
}

func (r *PaymentBatchRepository) GetByWeek(ctx context.Context, batchWeek string) (*models.PaymentBatch, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM payment_batches WHERE batch_week = $1`, batchWeek)
	return scanBatch(row)
}

// List returns batches newest week first. An empty status lists all.
func (r *PaymentBatchRepository) List(ctx context.Context, status models.BatchStatus, limit, offset int) ([]models.PaymentBatch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+batchColumns+` FROM payment_batches
		WHERE ($1::varchar = '' OR status = $1::varchar)
		ORDER BY batch_week DESC
		LIMIT $2 OFFSET $3
	`, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []models.PaymentBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

// TransitionStatus moves the batch to `to` only if it is currently in one of
// `from`. The caller checks the affected row count.
func (r *PaymentBatchRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []models.BatchStatus, to models.BatchStatus) (int64, error) {
	fromStates := make([]string, len(from))
	for i, s := range from {
		fromStates[i] = string(s)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_batches
		SET status = $1::varchar,
			started_at = CASE WHEN $1::varchar = 'processing' THEN COALESCE(started_at, NOW()) ELSE started_at END,
			completed_at = CASE WHEN $1::varchar = 'completed' THEN NOW() ELSE completed_at END,
			error_message = CASE WHEN $1::varchar = 'failed' THEN error_message ELSE NULL END,
			updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
	`, string(to), id, pq.Array(fromStates))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *PaymentBatchRepository) UpdateTotals(ctx context.Context, id uuid.UUID, totals models.BatchTotals) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_batches
		SET total_amount_sek = $1, total_customers = $2, successful_payments = $3,
			failed_payments = $4, updated_at = NOW()
		WHERE id = $5
	`, totals.TotalAmountSEK, totals.TotalCustomers, totals.SuccessfulPayments, totals.FailedPayments, id)
	return err
}

func (r *PaymentBatchRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_batches
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3 AND status <> $4
	`, models.BatchFailed, reason, id, models.BatchCompleted)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*models.PaymentBatch, error) {
	var (
		b           models.PaymentBatch
		startedAt   sql.NullTime
		completedAt sql.NullTime
		errMessage  sql.NullString
	)
	err := row.Scan(&b.ID, &b.BatchWeek, &b.Status, &b.TotalAmountSEK, &b.TotalCustomers,
		&b.SuccessfulPayments, &b.FailedPayments, &startedAt, &completedAt, &errMessage,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		b.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		b.CompletedAt = &completedAt.Time
	}
	b.ErrorMessage = errMessage.String
	return &b, nil
}
