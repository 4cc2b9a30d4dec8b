package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vocilia/payment-system/reward-payouts/internal/middleware"
	"github.com/vocilia/payment-system/reward-payouts/internal/models"
	"github.com/vocilia/payment-system/reward-payouts/internal/service"
	"github.com/vocilia/payment-system/reward-payouts/internal/swish"
	"github.com/vocilia/payment-system/reward-payouts/internal/telemetry"
)

type RewardRecorder interface {
	RecordVerifiedFeedback(ctx context.Context, fb service.VerifiedFeedback) (*models.RewardCalculation, error)
	PendingForCustomer(ctx context.Context, customerPhone string) ([]models.RewardCalculation, decimal.Decimal, error)
}

type RewardHandler struct {
	rewards RewardRecorder
}

func NewRewardHandler(rewards RewardRecorder) *RewardHandler {
	return &RewardHandler{rewards: rewards}
}

type createRewardRequest struct {
	FeedbackID           string          `json:"feedback_id" binding:"required,uuid"`
	StoreID              string          `json:"store_id" binding:"required,uuid"`
	CustomerPhone        string          `json:"customer_phone" binding:"required"`
	TransactionAmountSEK decimal.Decimal `json:"transaction_amount_sek"`
	Rating               int             `json:"rating" binding:"required,min=1,max=5"`
	DetailedFeedback     bool            `json:"detailed_feedback"`
	Sentiment            float64         `json:"sentiment" binding:"min=-1,max=1"`
}

// CreateReward records a reward for feedback the calling business verified.
func (h *RewardHandler) CreateReward(c *gin.Context) {
	businessID, ok := middleware.BusinessID(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "Business account missing"})
		return
	}

	var req createRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	reward, err := h.rewards.RecordVerifiedFeedback(c.Request.Context(), service.VerifiedFeedback{
		FeedbackID:           uuid.MustParse(req.FeedbackID),
		StoreID:              uuid.MustParse(req.StoreID),
		BusinessID:           businessID,
		CustomerPhone:        req.CustomerPhone,
		TransactionAmountSEK: req.TransactionAmountSEK,
		Quality: models.FeedbackQuality{
			Rating:           req.Rating,
			DetailedFeedback: req.DetailedFeedback,
			Sentiment:        req.Sentiment,
		},
	})
	switch {
	case errors.Is(err, service.ErrInvalidFeedback):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrDuplicateReward):
		c.JSON(http.StatusConflict, gin.H{"error": "Reward already recorded for this feedback", "feedback_id": req.FeedbackID})
		return
	case err != nil:
		telemetry.Logger.Error("Error recording reward",
			zap.String("feedback_id", req.FeedbackID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record reward"})
		return
	}

	c.JSON(http.StatusCreated, reward)
}

// GetCustomerRewards lists a customer's unpaid rewards for support staff.
func (h *RewardHandler) GetCustomerRewards(c *gin.Context) {
	rewards, total, err := h.rewards.PendingForCustomer(c.Request.Context(), c.Param("phone"))
	if errors.Is(err, swish.ErrInvalidPhone) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rewards"})
		return
	}
	if rewards == nil {
		rewards = []models.RewardCalculation{}
	}
	c.JSON(http.StatusOK, gin.H{
		"customer_phone":    swish.MaskPhone(c.Param("phone")),
		"rewards":           rewards,
		"pending_total_sek": total.StringFixed(2),
	})
}
