package swish

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vocilia/payment-system/reward-payouts/internal/models"
)

// Swish rejects payouts below one krona.
var minPayoutSEK = decimal.NewFromInt(1)

// MockClient stands in for the Swish payout API. Payouts are idempotent per
// payee payment reference, like the real API.
type MockClient struct {
	mu        sync.Mutex
	maxAmount decimal.Decimal
	declined  map[string]bool
	payouts   map[string]*models.PayoutResult
}

func NewMockClient(maxAmount decimal.Decimal, declinedAliases []string) *MockClient {
	declined := make(map[string]bool, len(declinedAliases))
	for _, alias := range declinedAliases {
		declined[alias] = true
	}
	return &MockClient{
		maxAmount: maxAmount,
		declined:  declined,
		payouts:   make(map[string]*models.PayoutResult),
	}
}

func (c *MockClient) Payout(ctx context.Context, req models.PayoutRequest) (*models.PayoutResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.PayeePaymentReference == "" {
		return nil, fmt.Errorf("payee payment reference is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.payouts[req.PayeePaymentReference]; ok {
		return prev, nil
	}

	result := &models.PayoutResult{Status: models.PayoutPaid}
	switch {
	case c.declined[req.PayeeAlias]:
		result.Status = models.PayoutDeclined
		result.ErrorCode = "ACMT07"
		result.ErrorMessage = "payee not enrolled in Swish"
	case req.AmountSEK.LessThan(minPayoutSEK):
		result.Status = models.PayoutError
		result.ErrorCode = "AM02"
		result.ErrorMessage = "amount below minimum"
	case c.maxAmount.IsPositive() && req.AmountSEK.GreaterThan(c.maxAmount):
		result.Status = models.PayoutError
		result.ErrorCode = "AM02"
		result.ErrorMessage = "amount exceeds payout limit"
	default:
		result.PaymentReference = "MOCK-" + uuid.NewString()
	}

	// Only settled outcomes are remembered, so a declined payee can be retried.
	if result.Status == models.PayoutPaid {
		c.payouts[req.PayeePaymentReference] = result
	}
	return result, nil
}

// PaidCount reports how many distinct references were paid.
func (c *MockClient) PaidCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payouts)
}
