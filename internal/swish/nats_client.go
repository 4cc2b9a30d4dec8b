package swish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vocilia/payment-system/reward-payouts/internal/models"
)

const (
	PayoutSubject        = "swish.payout"
	defaultPayoutTimeout = 10 * time.Second
)

// NATSClient sends payouts to the Swish gateway sidecar over NATS
// request/reply. The sidecar holds the Swish certificates.
type NATSClient struct {
	nc      *nats.Conn
	timeout time.Duration
}

func NewNATSClient(nc *nats.Conn) *NATSClient {
	return &NATSClient{nc: nc, timeout: defaultPayoutTimeout}
}

func (c *NATSClient) Payout(ctx context.Context, req models.PayoutRequest) (*models.PayoutResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal payout request: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msg, err := c.nc.RequestWithContext(ctx, PayoutSubject, payload)
	if err != nil {
		return nil, fmt.Errorf("swish gateway request: %w", err)
	}

	var result models.PayoutResult
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		return nil, fmt.Errorf("decode swish gateway reply: %w", err)
	}
	return &result, nil
}
