package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/vocilia/payment-system/reward-payouts/internal/models"
)

const rewardColumns = `id, feedback_id, store_id, business_id, customer_phone,
	transaction_amount_sek, rating, detailed_feedback, sentiment, reward_percentage,
	reward_amount_sek, verified_by_business, verified_at, claimed_batch_id, claimed_at,
	payment_transaction_id, created_at`

type RewardCalculationRepository struct {
	db *sql.DB
}

func NewRewardCalculationRepository(db *sql.DB) *RewardCalculationRepository {
	return &RewardCalculationRepository{db: db}
}

func (r *RewardCalculationRepository) Create(ctx context.Context, reward *models.RewardCalculation) error {
	if reward.ID == uuid.Nil {
		reward.ID = uuid.New()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO reward_calculations (id, feedback_id, store_id, business_id, customer_phone,
			transaction_amount_sek, rating, detailed_feedback, sentiment, reward_percentage,
			reward_amount_sek, verified_by_business, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`, reward.ID, reward.FeedbackID, reward.StoreID, reward.BusinessID, reward.CustomerPhone,
		reward.TransactionAmountSEK, reward.Rating, reward.DetailedFeedback, reward.Sentiment,
		reward.RewardPercentage, reward.RewardAmountSEK, reward.VerifiedByBusiness, reward.VerifiedAt,
	).Scan(&reward.CreatedAt)
	return mapConflict(err)
}

func (r *RewardCalculationRepository) GetByFeedbackID(ctx context.Context, feedbackID uuid.UUID) (*models.RewardCalculation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+rewardColumns+` FROM reward_calculations WHERE feedback_id = $1`, feedbackID)
	return scanReward(row)
}

// ListPendingByCustomer returns verified rewards not yet linked to a payment.
func (r *RewardCalculationRepository) ListPendingByCustomer(ctx context.Context, customerPhone string) ([]models.RewardCalculation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+rewardColumns+` FROM reward_calculations
		WHERE customer_phone = $1 AND verified_by_business AND payment_transaction_id IS NULL
		ORDER BY verified_at
	`, customerPhone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rewards []models.RewardCalculation
	for rows.Next() {
		reward, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, *reward)
	}
	return rewards, rows.Err()
}

func (r *RewardCalculationRepository) ClaimPending(ctx context.Context, batchID uuid.UUID, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE reward_calculations
		SET claimed_batch_id = $1, claimed_at = NOW()
		WHERE verified_by_business
		  AND payment_transaction_id IS NULL
		  AND claimed_batch_id IS NULL
		  AND verified_at < $2
	`, batchID, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *RewardCalculationRepository) AggregatePendingByCustomer(ctx context.Context, batchID uuid.UUID) ([]models.CustomerRewardAggregate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT customer_phone, total_reward_sek, reward_count, store_count
		 FROM aggregate_pending_rewards_by_customer($1)`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aggregates []models.CustomerRewardAggregate
	for rows.Next() {
		var a models.CustomerRewardAggregate
		if err := rows.Scan(&a.CustomerPhone, &a.TotalRewardSEK, &a.RewardCount, &a.StoreCount); err != nil {
			return nil, err
		}
		aggregates = append(aggregates, a)
	}
	return aggregates, rows.Err()
}

func scanReward(row rowScanner) (*models.RewardCalculation, error) {
	var (
		rc           models.RewardCalculation
		claimedBatch uuid.NullUUID
		claimedAt    sql.NullTime
		paymentTxID  uuid.NullUUID
	)
	err := row.Scan(&rc.ID, &rc.FeedbackID, &rc.StoreID, &rc.BusinessID, &rc.CustomerPhone,
		&rc.TransactionAmountSEK, &rc.Rating, &rc.DetailedFeedback, &rc.Sentiment, &rc.RewardPercentage,
		&rc.RewardAmountSEK, &rc.VerifiedByBusiness, &rc.VerifiedAt, &claimedBatch, &claimedAt,
		&paymentTxID, &rc.CreatedAt)
	if err != nil {
		return nil, err
	}
	if claimedBatch.Valid {
		rc.ClaimedBatchID = &claimedBatch.UUID
	}
	if claimedAt.Valid {
		rc.ClaimedAt = &claimedAt.Time
	}
	if paymentTxID.Valid {
		rc.PaymentTransactionID = &paymentTxID.UUID
	}
	return &rc, nil
}
