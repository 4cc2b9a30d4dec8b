package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/vocilia/payment-system/reward-payouts/internal/interfaces"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS payment_batches (
		id UUID PRIMARY KEY,
		batch_week VARCHAR(10) NOT NULL UNIQUE,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		total_amount_sek NUMERIC(12,2) NOT NULL DEFAULT 0,
		total_customers INTEGER NOT NULL DEFAULT 0,
		successful_payments INTEGER NOT NULL DEFAULT 0,
		failed_payments INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_batches_status ON payment_batches(status)`,

	`CREATE TABLE IF NOT EXISTS payment_transactions (
		id UUID PRIMARY KEY,
		batch_id UUID NOT NULL REFERENCES payment_batches(id),
		customer_phone VARCHAR(20) NOT NULL,
		amount_sek NUMERIC(12,2) NOT NULL,
		reward_count INTEGER NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		swish_reference VARCHAR(64),
		failure_reason TEXT,
		processed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (batch_id, customer_phone)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_transactions_batch_status ON payment_transactions(batch_id, status)`,

	`CREATE TABLE IF NOT EXISTS reward_calculations (
		id UUID PRIMARY KEY,
		feedback_id UUID NOT NULL UNIQUE,
		store_id UUID NOT NULL,
		business_id UUID NOT NULL,
		customer_phone VARCHAR(20) NOT NULL,
		transaction_amount_sek NUMERIC(12,2) NOT NULL,
		rating SMALLINT NOT NULL,
		detailed_feedback BOOLEAN NOT NULL DEFAULT FALSE,
		sentiment DOUBLE PRECISION NOT NULL DEFAULT 0,
		reward_percentage SMALLINT NOT NULL,
		reward_amount_sek NUMERIC(12,2) NOT NULL,
		verified_by_business BOOLEAN NOT NULL DEFAULT FALSE,
		verified_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		claimed_batch_id UUID REFERENCES payment_batches(id),
		claimed_at TIMESTAMPTZ,
		payment_transaction_id UUID REFERENCES payment_transactions(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reward_calculations_pending
		ON reward_calculations(customer_phone) WHERE payment_transaction_id IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_reward_calculations_claimed ON reward_calculations(claimed_batch_id)`,

	`CREATE TABLE IF NOT EXISTS payment_failures (
		id UUID PRIMARY KEY,
		transaction_id UUID NOT NULL UNIQUE REFERENCES payment_transactions(id),
		reason TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS reconciliation_reports (
		id UUID PRIMARY KEY,
		batch_id UUID NOT NULL UNIQUE REFERENCES payment_batches(id),
		report_period VARCHAR(10) NOT NULL,
		total_rewards_sek NUMERIC(12,2) NOT NULL DEFAULT 0,
		successful_payments_sek NUMERIC(12,2) NOT NULL DEFAULT 0,
		failed_payments_sek NUMERIC(12,2) NOT NULL DEFAULT 0,
		store_breakdown JSONB NOT NULL DEFAULT '[]',
		discrepancies JSONB NOT NULL DEFAULT '[]',
		discrepancy_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS business_invoices (
		id UUID PRIMARY KEY,
		business_id UUID NOT NULL,
		batch_id UUID NOT NULL REFERENCES payment_batches(id),
		total_reward_sek NUMERIC(12,2) NOT NULL,
		admin_fee_sek NUMERIC(12,2) NOT NULL,
		total_amount_sek NUMERIC(12,2) NOT NULL,
		payment_status VARCHAR(20) NOT NULL DEFAULT 'pending',
		due_date DATE NOT NULL,
		paid_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (business_id, batch_id)
	)`,

	`CREATE OR REPLACE FUNCTION aggregate_pending_rewards_by_customer(p_batch_id UUID)
	RETURNS TABLE (customer_phone VARCHAR, total_reward_sek NUMERIC, reward_count BIGINT, store_count BIGINT)
	LANGUAGE sql STABLE AS $$
		SELECT r.customer_phone, SUM(r.reward_amount_sek), COUNT(*), COUNT(DISTINCT r.store_id)
		FROM reward_calculations r
		WHERE r.claimed_batch_id = p_batch_id
		  AND r.verified_by_business
		  AND r.payment_transaction_id IS NULL
		GROUP BY r.customer_phone
		ORDER BY r.customer_phone
	$$`,

	`CREATE OR REPLACE FUNCTION generate_store_breakdown(p_batch_id UUID)
	RETURNS TABLE (business_id UUID, store_id UUID, reward_count BIGINT, total_rewards_sek NUMERIC,
		unique_customers BIGINT)
	LANGUAGE sql STABLE AS $$
		SELECT r.business_id, r.store_id, COUNT(*), SUM(r.reward_amount_sek), COUNT(DISTINCT r.customer_phone)
		FROM reward_calculations r
		JOIN payment_transactions t ON t.id = r.payment_transaction_id
		WHERE t.batch_id = p_batch_id AND t.status = 'completed'
		GROUP BY r.business_id, r.store_id
		ORDER BY r.business_id, r.store_id
	$$`,

	`CREATE OR REPLACE FUNCTION calculate_batch_discrepancies(p_batch_id UUID)
	RETURNS TABLE (transaction_id UUID, customer_phone VARCHAR, transaction_amount_sek NUMERIC,
		linked_rewards_sek NUMERIC, difference_sek NUMERIC)
	LANGUAGE sql STABLE AS $$
		SELECT t.id, t.customer_phone, t.amount_sek,
			COALESCE(SUM(r.reward_amount_sek), 0),
			t.amount_sek - COALESCE(SUM(r.reward_amount_sek), 0)
		FROM payment_transactions t
		LEFT JOIN reward_calculations r ON r.payment_transaction_id = t.id
		WHERE t.batch_id = p_batch_id AND t.status = 'completed'
		GROUP BY t.id, t.customer_phone, t.amount_sek
		HAVING t.amount_sek <> COALESCE(SUM(r.reward_amount_sek), 0)
		ORDER BY t.customer_phone
	$$`,
}

// InitDB creates tables, indexes and the aggregate functions.
func InitDB(db *sql.DB) error {
	for _, query := range schema {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// pqUniqueViolation is the Postgres SQLSTATE for unique_violation.
const pqUniqueViolation = "23505"

func mapConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return fmt.Errorf("%w: %s", interfaces.ErrConflict, pqErr.Constraint)
	}
	return err
}
