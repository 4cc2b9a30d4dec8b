package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vocilia/payment-system/reward-payouts/internal/middleware"
	"github.com/vocilia/payment-system/reward-payouts/internal/models"
)

type InvoiceStore interface {
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.BusinessInvoice, error)
	ListByBusiness(ctx context.Context, businessID uuid.UUID, limit, offset int) ([]models.BusinessInvoice, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status models.InvoiceStatus) (int64, error)
}

type InvoiceHandler struct {
	invoices InvoiceStore
}

func NewInvoiceHandler(invoices InvoiceStore) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

func (h *InvoiceHandler) ListBatchInvoices(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	invoices, err := h.invoices.ListByBatch(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list invoices"})
		return
	}
	if invoices == nil {
		invoices = []models.BusinessInvoice{}
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

// ListBusinessInvoices lists the invoices of the caller's own business.
func (h *InvoiceHandler) ListBusinessInvoices(c *gin.Context) {
	businessID, ok := middleware.BusinessID(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "Business account missing"})
		return
	}
	limit, offset := pagination(c)
	invoices, err := h.invoices.ListByBusiness(c.Request.Context(), businessID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list invoices"})
		return
	}
	if invoices == nil {
		invoices = []models.BusinessInvoice{}
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices, "limit": limit, "offset": offset})
}

type updateInvoiceStatusRequest struct {
	PaymentStatus string `json:"payment_status" binding:"required,oneof=pending paid overdue"`
}

func (h *InvoiceHandler) UpdateInvoiceStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req updateInvoiceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rows, err := h.invoices.UpdatePaymentStatus(c.Request.Context(), id, models.InvoiceStatus(req.PaymentStatus))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update invoice"})
		return
	}
	if rows == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "payment_status": req.PaymentStatus})
}
