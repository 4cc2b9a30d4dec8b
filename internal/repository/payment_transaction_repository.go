package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vocilia/payment-system/reward-payouts/internal/interfaces"
	"github.com/vocilia/payment-system/reward-payouts/internal/models"
)

const transactionColumns = `id, batch_id, customer_phone, amount_sek, reward_count, status,
	swish_reference, failure_reason, processed_at, created_at, updated_at`

type PaymentTransactionRepository struct {
	db *sql.DB
}

func NewPaymentTransactionRepository(db *sql.DB) *PaymentTransactionRepository {
	return &PaymentTransactionRepository{db: db}
}

// UpsertPending creates the customer's transaction for the batch, or resets an
// existing non-completed one to pending with the fresh aggregate. A completed
// transaction is left untouched and ErrAlreadyPaid is returned.
func (r *PaymentTransactionRepository) UpsertPending(ctx context.Context, batchID uuid.UUID, aggregate models.CustomerRewardAggregate) (*models.PaymentTransaction, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO payment_transactions (id, batch_id, customer_phone, amount_sek, reward_count, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (batch_id, customer_phone) DO UPDATE
		SET amount_sek = EXCLUDED.amount_sek,
			reward_count = EXCLUDED.reward_count,
			status = EXCLUDED.status,
			updated_at = NOW()
		WHERE payment_transactions.status <> 'completed'
		RETURNING `+transactionColumns,
		uuid.New(), batchID, aggregate.CustomerPhone, aggregate.TotalRewardSEK, aggregate.RewardCount,
		models.TransactionPending)

	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrAlreadyPaid
	}
	return tx, err
}

func (r *PaymentTransactionRepository) MarkCompleted(ctx context.Context, ptx *models.PaymentTransaction, swishReference string) (int64, error) {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer dbTx.Rollback()

	result, err := dbTx.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = $1, swish_reference = $2, failure_reason = NULL, processed_at = NOW(), updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, models.TransactionCompleted, swishReference, ptx.ID, models.TransactionPending)
	if err != nil {
		return 0, err
	}
	if n, err := result.RowsAffected(); err != nil {
		return 0, err
	} else if n == 0 {
		return 0, fmt.Errorf("transaction %s is not pending", ptx.ID)
	}

	result, err = dbTx.ExecContext(ctx, `
		UPDATE reward_calculations
		SET payment_transaction_id = $1
		WHERE claimed_batch_id = $2 AND customer_phone = $3 AND payment_transaction_id IS NULL
	`, ptx.ID, ptx.BatchID, ptx.CustomerPhone)
	if err != nil {
		return 0, err
	}
	linked, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return linked, dbTx.Commit()
}

func (r *PaymentTransactionRepository) MarkFailed(ctx context.Context, ptx *models.PaymentTransaction, reason string) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	if _, err := dbTx.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = $1, failure_reason = $2, processed_at = NOW(), updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, models.TransactionFailed, reason, ptx.ID, models.TransactionPending); err != nil {
		return err
	}

	if _, err := dbTx.ExecContext(ctx, `
		INSERT INTO payment_failures (id, transaction_id, reason, retry_count, last_attempt_at)
		VALUES ($1, $2, $3, 0, NOW())
		ON CONFLICT (transaction_id) DO UPDATE
		SET reason = EXCLUDED.reason,
			retry_count = payment_failures.retry_count + 1,
			last_attempt_at = NOW()
	`, uuid.New(), ptx.ID, reason); err != nil {
		return err
	}

	if _, err := dbTx.ExecContext(ctx, `
		UPDATE reward_calculations
		SET claimed_batch_id = NULL, claimed_at = NULL
		WHERE claimed_batch_id = $1 AND customer_phone = $2 AND payment_transaction_id IS NULL
	`, ptx.BatchID, ptx.CustomerPhone); err != nil {
		return err
	}

	return dbTx.Commit()
}

func (r *PaymentTransactionRepository) MarkUnsettled(ctx context.Context, ptx *models.PaymentTransaction, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET failure_reason = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, reason, ptx.ID, models.TransactionPending)
	return err
}

func (r *PaymentTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM payment_transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

func (r *PaymentTransactionRepository) GetFailure(ctx context.Context, transactionID uuid.UUID) (*models.PaymentFailure, error) {
	var f models.PaymentFailure
	err := r.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, reason, retry_count, last_attempt_at, created_at
		FROM payment_failures WHERE transaction_id = $1
	`, transactionID).Scan(&f.ID, &f.TransactionID, &f.Reason, &f.RetryCount, &f.LastAttemptAt, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *PaymentTransactionRepository) ListByBatch(ctx context.Context, batchID uuid.UUID, status models.TransactionStatus, limit, offset int) ([]models.PaymentTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM payment_transactions
		WHERE batch_id = $1 AND ($2::varchar = '' OR status = $2::varchar)
		ORDER BY customer_phone
		LIMIT $3 OFFSET $4
	`, batchID, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.PaymentTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func (r *PaymentTransactionRepository) SummarizeBatch(ctx context.Context, batchID uuid.UUID) (models.BatchTotals, error) {
	totals := models.BatchTotals{
		TotalAmountSEK:      decimal.Zero,
		SuccessfulAmountSEK: decimal.Zero,
		FailedAmountSEK:     decimal.Zero,
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(amount_sek), 0)
		FROM payment_transactions
		WHERE batch_id = $1
		GROUP BY status
	`, batchID)
	if err != nil {
		return totals, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status models.TransactionStatus
			count  int
			sum    decimal.Decimal
		)
		if err := rows.Scan(&status, &count, &sum); err != nil {
			return totals, err
		}
		totals.TotalCustomers += count
		totals.TotalAmountSEK = totals.TotalAmountSEK.Add(sum)

		switch status {
		case models.TransactionCompleted:
			totals.SuccessfulPayments = count
			totals.SuccessfulAmountSEK = sum
		case models.TransactionFailed:
			totals.FailedPayments = count
			totals.FailedAmountSEK = sum
		case models.TransactionPending:
			totals.PendingPayments = count
		}
	}
	return totals, rows.Err()
}

func scanTransaction(row rowScanner) (*models.PaymentTransaction, error) {
	var (
		t           models.PaymentTransaction
		reference   sql.NullString
		reason      sql.NullString
		processedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.BatchID, &t.CustomerPhone, &t.AmountSEK, &t.RewardCount, &t.Status,
		&reference, &reason, &processedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.SwishReference = reference.String
	t.FailureReason = reason.String
	if processedAt.Valid {
		t.ProcessedAt = &processedAt.Time
	}
	return &t, nil
}
