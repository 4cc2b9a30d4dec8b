package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vocilia/payment-system/reward-payouts/internal/interfaces"
	"github.com/vocilia/payment-system/reward-payouts/internal/models"
)

// Common test errors
var (
	ErrMockStorage = errors.New("mock storage error")
	ErrMockGateway = errors.New("mock gateway unavailable")
)

// memDB is an in-memory stand-in for the Postgres tables. Each repository
// type below views the same data, as the SQL repositories do.
type memDB struct {
	mu       sync.Mutex
	batches  map[uuid.UUID]*models.PaymentBatch
	rewards  []*models.RewardCalculation
	txs      map[uuid.UUID]*models.PaymentTransaction
	failures map[uuid.UUID]*models.PaymentFailure
	reports  map[uuid.UUID]*models.ReconciliationReport
	invoices map[uuid.UUID]*models.BusinessInvoice

	// FailMarkCompleted makes the next N MarkCompleted calls fail.
	FailMarkCompleted int
}

func newMemDB() *memDB {
	return &memDB{
		batches:  make(map[uuid.UUID]*models.PaymentBatch),
		txs:      make(map[uuid.UUID]*models.PaymentTransaction),
		failures: make(map[uuid.UUID]*models.PaymentFailure),
		reports:  make(map[uuid.UUID]*models.ReconciliationReport),
		invoices: make(map[uuid.UUID]*models.BusinessInvoice),
	}
}

func (db *memDB) addReward(phone, amount string, businessID, storeID uuid.UUID, verifiedAt time.Time) *models.RewardCalculation {
	db.mu.Lock()
	defer db.mu.Unlock()
	r := &models.RewardCalculation{
		ID:                 uuid.New(),
		FeedbackID:         uuid.New(),
		StoreID:            storeID,
		BusinessID:         businessID,
		CustomerPhone:      phone,
		RewardAmountSEK:    decimal.RequireFromString(amount),
		VerifiedByBusiness: true,
		VerifiedAt:         verifiedAt,
	}
	db.rewards = append(db.rewards, r)
	return r
}

// --- payment batches ---

type memBatches struct{ *memDB }

func (m memBatches) GetOrCreate(_ context.Context, week string) (*models.PaymentBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.batches {
		if b.BatchWeek == week {
			cp := *b
			return &cp, nil
		}
	}
	b := &models.PaymentBatch{ID: uuid.New(), BatchWeek: week, Status: models.BatchPending, TotalAmountSEK: decimal.Zero, CreatedAt: time.Now()}
	m.batches[b.ID] = b
	cp := *b
	return &cp, nil
}

func (m memBatches) GetByID(_ context.Context, id uuid.UUID) (*models.PaymentBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *b
	return &cp, nil
}

func (m memBatches) GetByWeek(_ context.Context, week string) (*models.PaymentBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.batches {
		if b.BatchWeek == week {
			cp := *b
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memBatches) List(_ context.Context, status models.BatchStatus, limit, offset int) ([]models.PaymentBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentBatch
	for _, b := range m.batches {
		if status == "" || b.Status == status {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchWeek > out[j].BatchWeek })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memBatches) TransitionStatus(_ context.Context, id uuid.UUID, from []models.BatchStatus, to models.BatchStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return 0, nil
	}
	for _, s := range from {
		if b.Status == s {
			b.Status = to
			if to != models.BatchFailed {
				b.ErrorMessage = ""
			}
			return 1, nil
		}
	}
	return 0, nil
}

func (m memBatches) UpdateTotals(_ context.Context, id uuid.UUID, totals models.BatchTotals) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.batches[id]
	b.TotalAmountSEK = totals.TotalAmountSEK
	b.TotalCustomers = totals.TotalCustomers
	b.SuccessfulPayments = totals.SuccessfulPayments
	b.FailedPayments = totals.FailedPayments
	return nil
}

func (m memBatches) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.batches[id]
	if b.Status != models.BatchCompleted {
		b.Status = models.BatchFailed
		b.ErrorMessage = reason
	}
	return nil
}

// --- reward calculations ---

type memRewards struct{ *memDB }

func (m memRewards) Create(_ context.Context, reward *models.RewardCalculation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rewards {
		if r.FeedbackID == reward.FeedbackID {
			return interfaces.ErrConflict
		}
	}
	cp := *reward
	m.rewards = append(m.rewards, &cp)
	return nil
}

func (m memRewards) GetByFeedbackID(_ context.Context, feedbackID uuid.UUID) (*models.RewardCalculation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rewards {
		if r.FeedbackID == feedbackID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memRewards) ListPendingByCustomer(_ context.Context, phone string) ([]models.RewardCalculation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RewardCalculation
	for _, r := range m.rewards {
		if r.CustomerPhone == phone && r.VerifiedByBusiness && r.PaymentTransactionID == nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m memRewards) ClaimPending(_ context.Context, batchID uuid.UUID, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rewards {
		if r.VerifiedByBusiness && r.PaymentTransactionID == nil && r.ClaimedBatchID == nil && r.VerifiedAt.Before(cutoff) {
			id := batchID
			now := time.Now()
			r.ClaimedBatchID = &id
			r.ClaimedAt = &now
			n++
		}
	}
	return n, nil
}

func (m memRewards) AggregatePendingByCustomer(_ context.Context, batchID uuid.UUID) ([]models.CustomerRewardAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byPhone := make(map[string]*models.CustomerRewardAggregate)
	stores := make(map[string]map[uuid.UUID]bool)
	for _, r := range m.rewards {
		if r.ClaimedBatchID == nil || *r.ClaimedBatchID != batchID || !r.VerifiedByBusiness || r.PaymentTransactionID != nil {
			continue
		}
		a, ok := byPhone[r.CustomerPhone]
		if !ok {
			a = &models.CustomerRewardAggregate{CustomerPhone: r.CustomerPhone, TotalRewardSEK: decimal.Zero}
			byPhone[r.CustomerPhone] = a
			stores[r.CustomerPhone] = make(map[uuid.UUID]bool)
		}
		a.TotalRewardSEK = a.TotalRewardSEK.Add(r.RewardAmountSEK)
		a.RewardCount++
		stores[r.CustomerPhone][r.StoreID] = true
	}
	out := make([]models.CustomerRewardAggregate, 0, len(byPhone))
	for phone, a := range byPhone {
		a.StoreCount = len(stores[phone])
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerPhone < out[j].CustomerPhone })
	return out, nil
}

// --- payment transactions ---

type memTransactions struct{ *memDB }

func (m memTransactions) UpsertPending(_ context.Context, batchID uuid.UUID, agg models.CustomerRewardAggregate) (*models.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.txs {
		if t.BatchID == batchID && t.CustomerPhone == agg.CustomerPhone {
			if t.Status == models.TransactionCompleted {
				return nil, interfaces.ErrAlreadyPaid
			}
			t.AmountSEK = agg.TotalRewardSEK
			t.RewardCount = agg.RewardCount
			t.Status = models.TransactionPending
			cp := *t
			return &cp, nil
		}
	}
	t := &models.PaymentTransaction{
		ID:            uuid.New(),
		BatchID:       batchID,
		CustomerPhone: agg.CustomerPhone,
		AmountSEK:     agg.TotalRewardSEK,
		RewardCount:   agg.RewardCount,
		Status:        models.TransactionPending,
		CreatedAt:     time.Now(),
	}
	m.txs[t.ID] = t
	cp := *t
	return &cp, nil
}

func (m memTransactions) MarkCompleted(_ context.Context, ptx *models.PaymentTransaction, ref string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailMarkCompleted > 0 {
		m.FailMarkCompleted--
		return 0, ErrMockStorage
	}
	t := m.txs[ptx.ID]
	if t == nil || t.Status != models.TransactionPending {
		return 0, errors.New("transaction is not pending")
	}
	t.Status = models.TransactionCompleted
	t.SwishReference = ref
	var linked int64
	for _, r := range m.rewards {
		if r.ClaimedBatchID != nil && *r.ClaimedBatchID == t.BatchID && r.CustomerPhone == t.CustomerPhone && r.PaymentTransactionID == nil {
			id := t.ID
			r.PaymentTransactionID = &id
			linked++
		}
	}
	return linked, nil
}

func (m memTransactions) MarkFailed(_ context.Context, ptx *models.PaymentTransaction, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.txs[ptx.ID]
	if t.Status == models.TransactionPending {
		t.Status = models.TransactionFailed
		t.FailureReason = reason
	}
	if f, ok := m.failures[t.ID]; ok {
		f.RetryCount++
		f.Reason = reason
	} else {
		m.failures[t.ID] = &models.PaymentFailure{ID: uuid.New(), TransactionID: t.ID, Reason: reason}
	}
	for _, r := range m.rewards {
		if r.ClaimedBatchID != nil && *r.ClaimedBatchID == t.BatchID && r.CustomerPhone == t.CustomerPhone && r.PaymentTransactionID == nil {
			r.ClaimedBatchID = nil
			r.ClaimedAt = nil
		}
	}
	return nil
}

func (m memTransactions) MarkUnsettled(_ context.Context, ptx *models.PaymentTransaction, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.txs[ptx.ID]; t != nil && t.Status == models.TransactionPending {
		t.FailureReason = reason
	}
	return nil
}

func (m memTransactions) GetByID(_ context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m memTransactions) GetFailure(_ context.Context, id uuid.UUID) (*models.PaymentFailure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.failures[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *f
	return &cp, nil
}

func (m memTransactions) ListByBatch(_ context.Context, batchID uuid.UUID, status models.TransactionStatus, limit, offset int) ([]models.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentTransaction
	for _, t := range m.txs {
		if t.BatchID == batchID && (status == "" || t.Status == status) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerPhone < out[j].CustomerPhone })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memTransactions) SummarizeBatch(_ context.Context, batchID uuid.UUID) (models.BatchTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	totals := models.BatchTotals{TotalAmountSEK: decimal.Zero, SuccessfulAmountSEK: decimal.Zero, FailedAmountSEK: decimal.Zero}
	for _, t := range m.txs {
		if t.BatchID != batchID {
			continue
		}
		totals.TotalCustomers++
		totals.TotalAmountSEK = totals.TotalAmountSEK.Add(t.AmountSEK)
		switch t.Status {
		case models.TransactionCompleted:
			totals.SuccessfulPayments++
			totals.SuccessfulAmountSEK = totals.SuccessfulAmountSEK.Add(t.AmountSEK)
		case models.TransactionFailed:
			totals.FailedPayments++
			totals.FailedAmountSEK = totals.FailedAmountSEK.Add(t.AmountSEK)
		case models.TransactionPending:
			totals.PendingPayments++
		}
	}
	return totals, nil
}

// --- reconciliation reports ---

type memReports struct{ *memDB }

func (m memReports) Upsert(_ context.Context, report *models.ReconciliationReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	cp := *report
	m.reports[report.BatchID] = &cp
	return nil
}

func (m memReports) GetByBatch(_ context.Context, batchID uuid.UUID) (*models.ReconciliationReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[batchID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (m memReports) StoreBreakdown(_ context.Context, batchID uuid.UUID) ([]models.StoreBreakdown, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type key struct{ business, store uuid.UUID }
	rows := make(map[key]*models.StoreBreakdown)
	customers := make(map[key]map[string]bool)
	for _, r := range m.rewards {
		if r.PaymentTransactionID == nil {
			continue
		}
		t := m.txs[*r.PaymentTransactionID]
		if t == nil || t.BatchID != batchID || t.Status != models.TransactionCompleted {
			continue
		}
		k := key{r.BusinessID, r.StoreID}
		row, ok := rows[k]
		if !ok {
			row = &models.StoreBreakdown{BusinessID: r.BusinessID, StoreID: r.StoreID, TotalRewardsSEK: decimal.Zero}
			rows[k] = row
			customers[k] = make(map[string]bool)
		}
		row.RewardCount++
		row.TotalRewardsSEK = row.TotalRewardsSEK.Add(r.RewardAmountSEK)
		customers[k][r.CustomerPhone] = true
	}
	out := make([]models.StoreBreakdown, 0, len(rows))
	for k, row := range rows {
		row.UniqueCustomers = len(customers[k])
		out = append(out, *row)
	}
	return out, nil
}

func (m memReports) Discrepancies(_ context.Context, batchID uuid.UUID) ([]models.Discrepancy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Discrepancy
	for _, t := range m.txs {
		if t.BatchID != batchID || t.Status != models.TransactionCompleted {
			continue
		}
		linked := decimal.Zero
		for _, r := range m.rewards {
			if r.PaymentTransactionID != nil && *r.PaymentTransactionID == t.ID {
				linked = linked.Add(r.RewardAmountSEK)
			}
		}
		if !linked.Equal(t.AmountSEK) {
			out = append(out, models.Discrepancy{
				TransactionID:        t.ID,
				CustomerPhone:        t.CustomerPhone,
				TransactionAmountSEK: t.AmountSEK,
				LinkedRewardsSEK:     linked,
				DifferenceSEK:        t.AmountSEK.Sub(linked),
			})
		}
	}
	return out, nil
}

// --- business invoices ---

type memInvoices struct{ *memDB }

func (m memInvoices) Upsert(_ context.Context, inv *models.BusinessInvoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.invoices {
		if existing.BusinessID == inv.BusinessID && existing.BatchID == inv.BatchID {
			if existing.PaymentStatus == models.InvoicePaid {
				return nil
			}
			inv.ID = existing.ID
			cp := *inv
			m.invoices[inv.ID] = &cp
			return nil
		}
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	cp := *inv
	m.invoices[inv.ID] = &cp
	return nil
}

func (m memInvoices) ListByBatch(_ context.Context, batchID uuid.UUID) ([]models.BusinessInvoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.BusinessInvoice
	for _, inv := range m.invoices {
		if inv.BatchID == batchID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (m memInvoices) ListByBusiness(_ context.Context, businessID uuid.UUID, limit, offset int) ([]models.BusinessInvoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.BusinessInvoice
	for _, inv := range m.invoices {
		if inv.BusinessID == businessID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (m memInvoices) UpdatePaymentStatus(_ context.Context, id uuid.UUID, status models.InvoiceStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return 0, nil
	}
	inv.PaymentStatus = status
	return 1, nil
}

// --- collaborators ---

// MockPaymentClient implements interfaces.PaymentClient for testing
type MockPaymentClient struct {
	mu         sync.Mutex
	PayoutFunc func(ctx context.Context, req models.PayoutRequest) (*models.PayoutResult, error)
	Requests   []models.PayoutRequest
}

func (m *MockPaymentClient) Payout(ctx context.Context, req models.PayoutRequest) (*models.PayoutResult, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.PayoutFunc != nil {
		return m.PayoutFunc(ctx, req)
	}
	return &models.PayoutResult{Status: models.PayoutPaid, PaymentReference: "REF-" + req.PayeePaymentReference}, nil
}

// lostReplyClient settles every payout through inner but reports a
// transport error for the first lose calls, like a timed out NATS reply.
type lostReplyClient struct {
	mu         sync.Mutex
	inner      interfaces.PaymentClient
	lose       int
	references []string
}

func (c *lostReplyClient) Payout(ctx context.Context, req models.PayoutRequest) (*models.PayoutResult, error) {
	result, err := c.inner.Payout(ctx, req)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.references = append(c.references, req.PayeePaymentReference)
	if err == nil && c.lose > 0 {
		c.lose--
		return nil, ErrMockGateway
	}
	return result, err
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]bool)}
}

func (l *memLocker) Lock(_ context.Context, week string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[week] {
		return false, nil
	}
	l.held[week] = true
	return true, nil
}

func (l *memLocker) Unlock(_ context.Context, week string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, week)
	return nil
}

type recordingPublisher struct {
	mu           sync.Mutex
	BatchEvents  []models.BatchEvent
	Transactions []models.TransactionEvent
}

func (p *recordingPublisher) PublishBatchEvent(_ context.Context, e models.BatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.BatchEvents = append(p.BatchEvents, e)
	return nil
}

func (p *recordingPublisher) PublishTransactionEvent(_ context.Context, e models.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Transactions = append(p.Transactions, e)
	return nil
}
