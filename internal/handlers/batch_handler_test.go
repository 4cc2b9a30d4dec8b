package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vocilia/payment-system/reward-payouts/internal/models"
	"github.com/vocilia/payment-system/reward-payouts/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type batchDeps struct {
	batches      *MockBatchService
	reconciler   *MockReconciler
	reports      *MockReportReader
	transactions *MockTransactionReader
}

func newBatchRouter(deps batchDeps, now time.Time) *gin.Engine {
	h := NewBatchHandler(deps.batches, deps.reconciler, deps.reports, deps.transactions, time.UTC)
	h.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/admin/batches", h.RunBatch)
	r.GET("/admin/batches", h.ListBatches)
	r.GET("/admin/batches/:id", h.GetBatch)
	r.GET("/admin/batches/:id/transactions", h.ListTransactions)
	r.GET("/admin/batches/:id/report", h.GetReport)
	r.POST("/admin/batches/:id/reconcile", h.Reconcile)
	r.GET("/admin/transactions/:id", h.GetTransaction)
	return r
}

func defaultBatchDeps() batchDeps {
	return batchDeps{
		batches:      &MockBatchService{},
		reconciler:   &MockReconciler{},
		reports:      &MockReportReader{},
		transactions: &MockTransactionReader{},
	}
}

func serve(r *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBatchHandler_RunBatch(t *testing.T) {
	monday := time.Date(2026, 10, 12, 3, 0, 0, 0, time.UTC)

	t.Run("Given a batch week When running Then the processed batch is returned", func(t *testing.T) {
		// Given
		deps := defaultBatchDeps()
		var gotWeek string
		deps.batches.ProcessBatchFunc = func(ctx context.Context, weekLabel string) (*models.PaymentBatch, error) {
			gotWeek = weekLabel
			return &models.PaymentBatch{ID: uuid.New(), BatchWeek: weekLabel, Status: models.BatchCompleted, TotalCustomers: 3}, nil
		}
		r := newBatchRouter(deps, monday)

		// When
		w := serve(r, http.MethodPost, "/admin/batches", []byte(`{"batch_week":"2026-W40"}`))

		// Then
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if gotWeek != "2026-W40" {
			t.Errorf("expected 2026-W40, got %s", gotWeek)
		}
		var batch models.PaymentBatch
		if err := json.Unmarshal(w.Body.Bytes(), &batch); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if batch.TotalCustomers != 3 {
			t.Errorf("expected 3 customers, got %d", batch.TotalCustomers)
		}
	})

	t.Run("Given no body When running Then the previous week is processed", func(t *testing.T) {
		// Given
		deps := defaultBatchDeps()
		var gotWeek string
		deps.batches.ProcessBatchFunc = func(ctx context.Context, weekLabel string) (*models.PaymentBatch, error) {
			gotWeek = weekLabel
			return &models.PaymentBatch{BatchWeek: weekLabel, Status: models.BatchCompleted}, nil
		}
		r := newBatchRouter(deps, monday)

		// When
		w := serve(r, http.MethodPost, "/admin/batches", nil)

		// Then
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if gotWeek != "2026-W41" {
			t.Errorf("expected 2026-W41, got %s", gotWeek)
		}
	})

	t.Run("Given an empty chunked body When running Then the previous week is processed", func(t *testing.T) {
		// Given
		deps := defaultBatchDeps()
		var gotWeek string
		deps.batches.ProcessBatchFunc = func(ctx context.Context, weekLabel string) (*models.PaymentBatch, error) {
			gotWeek = weekLabel
			return &models.PaymentBatch{BatchWeek: weekLabel, Status: models.BatchCompleted}, nil
		}
		req := httptest.NewRequest(http.MethodPost, "/admin/batches", bytes.NewReader(nil))
		req.Header.Set("Content-Type", "application/json")
		req.ContentLength = -1
		req.TransferEncoding = []string{"chunked"}
		w := httptest.NewRecorder()

		// When
		newBatchRouter(deps, monday).ServeHTTP(w, req)

		// Then
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if gotWeek != "2026-W41" {
			t.Errorf("expected 2026-W41, got %s", gotWeek)
		}
	})

	errorCases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "invalid week", err: fmt.Errorf("%w: %q", service.ErrInvalidBatchWeek, "x"), wantStatus: http.StatusBadRequest},
		{name: "locked week", err: fmt.Errorf("%w: 2026-W41", service.ErrBatchLocked), wantStatus: http.StatusConflict},
		{name: "unsettled payouts", err: fmt.Errorf("%w: 1 transactions still pending after run", service.ErrPayoutsUnsettled), wantStatus: http.StatusBadGateway},
		{name: "pipeline failure", err: ErrMockDB, wantStatus: http.StatusInternalServerError},
	}
	for _, tc := range errorCases {
		t.Run("Given "+tc.name+" When running Then the error status is mapped", func(t *testing.T) {
			deps := defaultBatchDeps()
			deps.batches.ProcessBatchFunc = func(ctx context.Context, weekLabel string) (*models.PaymentBatch, error) {
				return nil, tc.err
			}
			w := serve(newBatchRouter(deps, monday), http.MethodPost, "/admin/batches", []byte(`{"batch_week":"2026-W41"}`))
			if w.Code != tc.wantStatus {
				t.Errorf("expected %d, got %d", tc.wantStatus, w.Code)
			}
		})
	}

	t.Run("Given malformed JSON When running Then 400 is returned", func(t *testing.T) {
		w := serve(newBatchRouter(defaultBatchDeps(), monday), http.MethodPost, "/admin/batches", []byte(`{`))
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestBatchHandler_ListBatches(t *testing.T) {
	deps := defaultBatchDeps()
	var gotStatus models.BatchStatus
	var gotLimit, gotOffset int
	deps.batches.ListBatchesFunc = func(ctx context.Context, status models.BatchStatus, limit, offset int) ([]models.PaymentBatch, error) {
		gotStatus, gotLimit, gotOffset = status, limit, offset
		return []models.PaymentBatch{{BatchWeek: "2026-W41"}}, nil
	}

	w := serve(newBatchRouter(deps, time.Now()), http.MethodGet, "/admin/batches?status=failed&limit=1000&offset=-3", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotStatus != models.BatchFailed {
		t.Errorf("expected failed filter, got %q", gotStatus)
	}
	if gotLimit != maxPageSize || gotOffset != 0 {
		t.Errorf("expected clamped pagination, got limit=%d offset=%d", gotLimit, gotOffset)
	}
}

func TestBatchHandler_GetBatch(t *testing.T) {
	t.Run("invalid id", func(t *testing.T) {
		w := serve(newBatchRouter(defaultBatchDeps(), time.Now()), http.MethodGet, "/admin/batches/not-a-uuid", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		w := serve(newBatchRouter(defaultBatchDeps(), time.Now()), http.MethodGet, "/admin/batches/"+uuid.NewString(), nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})

	t.Run("found", func(t *testing.T) {
		deps := defaultBatchDeps()
		id := uuid.New()
		deps.batches.GetBatchFunc = func(ctx context.Context, got uuid.UUID) (*models.PaymentBatch, error) {
			return &models.PaymentBatch{ID: got, BatchWeek: "2026-W41"}, nil
		}
		w := serve(newBatchRouter(deps, time.Now()), http.MethodGet, "/admin/batches/"+id.String(), nil)
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
	})
}

func TestBatchHandler_GetTransaction(t *testing.T) {
	t.Run("Given a failed transaction When fetching Then the failure is included", func(t *testing.T) {
		// Given
		deps := defaultBatchDeps()
		id := uuid.New()
		deps.transactions.GetByIDFunc = func(ctx context.Context, got uuid.UUID) (*models.PaymentTransaction, error) {
			return &models.PaymentTransaction{ID: got, Status: models.TransactionFailed}, nil
		}
		deps.transactions.GetFailureFunc = func(ctx context.Context, got uuid.UUID) (*models.PaymentFailure, error) {
			return &models.PaymentFailure{TransactionID: got, Reason: "declined ACMT07", RetryCount: 2}, nil
		}

		// When
		w := serve(newBatchRouter(deps, time.Now()), http.MethodGet, "/admin/transactions/"+id.String(), nil)

		// Then
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var resp struct {
			Failure *models.PaymentFailure `json:"failure"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Failure == nil || resp.Failure.RetryCount != 2 {
			t.Errorf("expected failure with retry count 2, got %+v", resp.Failure)
		}
	})

	t.Run("Given a paid transaction When fetching Then no failure is returned", func(t *testing.T) {
		deps := defaultBatchDeps()
		deps.transactions.GetByIDFunc = func(ctx context.Context, got uuid.UUID) (*models.PaymentTransaction, error) {
			return &models.PaymentTransaction{ID: got, Status: models.TransactionCompleted}, nil
		}
		w := serve(newBatchRouter(deps, time.Now()), http.MethodGet, "/admin/transactions/"+uuid.NewString(), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if bytes.Contains(w.Body.Bytes(), []byte(`"failure"`)) {
			t.Errorf("unexpected failure in %s", w.Body.String())
		}
	})
}

func TestBatchHandler_Reconcile(t *testing.T) {
	t.Run("Given a failed batch When reconciling Then 409 is returned", func(t *testing.T) {
		deps := defaultBatchDeps()
		deps.batches.GetBatchFunc = func(ctx context.Context, id uuid.UUID) (*models.PaymentBatch, error) {
			return &models.PaymentBatch{ID: id, Status: models.BatchFailed}, nil
		}
		w := serve(newBatchRouter(deps, time.Now()), http.MethodPost, "/admin/batches/"+uuid.NewString()+"/reconcile", nil)
		if w.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", w.Code)
		}
		if deps.reconciler.CallCount != 0 {
			t.Error("expected reconciler not to be called")
		}
	})

	t.Run("Given a completed batch When reconciling Then the report is regenerated", func(t *testing.T) {
		deps := defaultBatchDeps()
		deps.batches.GetBatchFunc = func(ctx context.Context, id uuid.UUID) (*models.PaymentBatch, error) {
			return &models.PaymentBatch{ID: id, Status: models.BatchCompleted}, nil
		}
		w := serve(newBatchRouter(deps, time.Now()), http.MethodPost, "/admin/batches/"+uuid.NewString()+"/reconcile", nil)
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
		if deps.reconciler.CallCount != 1 {
			t.Errorf("expected one reconcile call, got %d", deps.reconciler.CallCount)
		}
	})
}

func TestBatchHandler_GetReport(t *testing.T) {
	deps := defaultBatchDeps()
	w := serve(newBatchRouter(deps, time.Now()), http.MethodGet, "/admin/batches/"+uuid.NewString()+"/report", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	deps.reports.GetByBatchFunc = func(ctx context.Context, batchID uuid.UUID) (*models.ReconciliationReport, error) {
		return nil, ErrMockDB
	}
	w = serve(newBatchRouter(deps, time.Now()), http.MethodGet, "/admin/batches/"+uuid.NewString()+"/report", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}

	deps.reports.GetByBatchFunc = func(ctx context.Context, batchID uuid.UUID) (*models.ReconciliationReport, error) {
		if batchID == uuid.Nil {
			return nil, sql.ErrNoRows
		}
		return &models.ReconciliationReport{BatchID: batchID, ReportPeriod: "2026-W41"}, nil
	}
	w = serve(newBatchRouter(deps, time.Now()), http.MethodGet, "/admin/batches/"+uuid.NewString()+"/report", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
