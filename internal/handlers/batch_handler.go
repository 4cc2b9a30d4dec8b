package handlers

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vocilia/payment-system/reward-payouts/internal/models"
	"github.com/vocilia/payment-system/reward-payouts/internal/service"
	"github.com/vocilia/payment-system/reward-payouts/internal/telemetry"
)

// BatchService is the part of *service.BatchScheduler the admin API uses.
type BatchService interface {
	ProcessBatch(ctx context.Context, weekLabel string) (*models.PaymentBatch, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*models.PaymentBatch, error)
	ListBatches(ctx context.Context, status models.BatchStatus, limit, offset int) ([]models.PaymentBatch, error)
	ListTransactions(ctx context.Context, batchID uuid.UUID, status models.TransactionStatus, limit, offset int) ([]models.PaymentTransaction, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, batch *models.PaymentBatch) (*models.ReconciliationReport, []models.BusinessInvoice, error)
}

type ReportReader interface {
	GetByBatch(ctx context.Context, batchID uuid.UUID) (*models.ReconciliationReport, error)
}

type TransactionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	GetFailure(ctx context.Context, transactionID uuid.UUID) (*models.PaymentFailure, error)
}

type BatchHandler struct {
	batches      BatchService
	reconciler   Reconciler
	reports      ReportReader
	transactions TransactionReader
	location     *time.Location
	now          func() time.Time
}

func NewBatchHandler(batches BatchService, reconciler Reconciler, reports ReportReader, transactions TransactionReader, location *time.Location) *BatchHandler {
	return &BatchHandler{
		batches:      batches,
		reconciler:   reconciler,
		reports:      reports,
		transactions: transactions,
		location:     location,
		now:          time.Now,
	}
}

type runBatchRequest struct {
	BatchWeek string `json:"batch_week"`
}

// RunBatch processes the requested week, or the previous week when none is
// given. The call blocks until the batch finishes.
func (h *BatchHandler) RunBatch(c *gin.Context) {
	var req runBatchRequest
	// An empty body, sized or chunked, binds to io.EOF.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.BatchWeek == "" {
		req.BatchWeek = service.PreviousBatchWeek(h.now().In(h.location)).String()
	}

	batch, err := h.batches.ProcessBatch(c.Request.Context(), req.BatchWeek)
	switch {
	case errors.Is(err, service.ErrInvalidBatchWeek):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrBatchLocked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrPayoutsUnsettled):
		telemetry.Logger.Warn("Payment batch left payouts unsettled",
			zap.String("batch_week", req.BatchWeek),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":      "Some payouts have no confirmed outcome; run the batch again to resume",
			"batch_week": req.BatchWeek,
		})
		return
	case err != nil:
		telemetry.Logger.Error("Error processing payment batch",
			zap.String("batch_week", req.BatchWeek),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Failed to process payment batch",
			"batch_week": req.BatchWeek,
		})
		return
	}

	c.JSON(http.StatusOK, batch)
}

func (h *BatchHandler) ListBatches(c *gin.Context) {
	limit, offset := pagination(c)
	batches, err := h.batches.ListBatches(c.Request.Context(), models.BatchStatus(c.Query("status")), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list payment batches"})
		return
	}
	if batches == nil {
		batches = []models.PaymentBatch{}
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches, "limit": limit, "offset": offset})
}

func (h *BatchHandler) GetBatch(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	batch, err := h.batches.GetBatch(c.Request.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment batch not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch payment batch"})
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (h *BatchHandler) ListTransactions(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	limit, offset := pagination(c)
	txs, err := h.batches.ListTransactions(c.Request.Context(), id, models.TransactionStatus(c.Query("status")), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list transactions"})
		return
	}
	if txs == nil {
		txs = []models.PaymentTransaction{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "limit": limit, "offset": offset})
}

// GetTransaction returns a transaction with its failure record, if any.
func (h *BatchHandler) GetTransaction(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	ptx, err := h.transactions.GetByID(c.Request.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transaction"})
		return
	}

	resp := gin.H{"transaction": ptx}
	failure, err := h.transactions.GetFailure(c.Request.Context(), id)
	switch {
	case err == nil:
		resp["failure"] = failure
	case !errors.Is(err, sql.ErrNoRows):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch payment failure"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BatchHandler) GetReport(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	report, err := h.reports.GetByBatch(c.Request.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Reconciliation report not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch reconciliation report"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// Reconcile regenerates the report and invoices of a completed batch.
func (h *BatchHandler) Reconcile(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	batch, err := h.batches.GetBatch(c.Request.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment batch not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch payment batch"})
		return
	}
	if batch.Status != models.BatchCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "Payment batch is not completed", "status": batch.Status})
		return
	}

	report, invoices, err := h.reconciler.Reconcile(c.Request.Context(), batch)
	if err != nil {
		telemetry.Logger.Error("Error reconciling payment batch",
			zap.String("batch_id", id.String()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reconcile payment batch"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report, "invoices": invoices})
}
