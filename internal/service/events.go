package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/vocilia/payment-system/reward-payouts/internal/models"
	"github.com/vocilia/payment-system/reward-payouts/internal/telemetry"
)

const (
	eventBatchStatusChanged       = "payment_batch.status_changed"
	eventTransactionStatusChanged = "payment_transaction.status_changed"
)

// messageWriter is the subset of *kafka.Writer used for publishing.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaEventPublisher struct {
	writer messageWriter
}

func NewKafkaEventPublisher(writer messageWriter) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer}
}

func (p *KafkaEventPublisher) PublishBatchEvent(ctx context.Context, event models.BatchEvent) error {
	return p.publish(ctx, eventBatchStatusChanged, event.BatchID.String(), event)
}

func (p *KafkaEventPublisher) PublishTransactionEvent(ctx context.Context, event models.TransactionEvent) error {
	return p.publish(ctx, eventTransactionStatusChanged, event.BatchID.String(), event)
}

func (p *KafkaEventPublisher) publish(ctx context.Context, eventType, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(eventType)}},
	})
}

// LogEventPublisher is used when no Kafka brokers are configured.
type LogEventPublisher struct{}

func (LogEventPublisher) PublishBatchEvent(_ context.Context, event models.BatchEvent) error {
	telemetry.Logger.Info("Batch event",
		zap.String("batch_id", event.BatchID.String()),
		zap.String("batch_week", event.BatchWeek),
		zap.String("status", string(event.Status)),
	)
	return nil
}

func (LogEventPublisher) PublishTransactionEvent(_ context.Context, event models.TransactionEvent) error {
	telemetry.Logger.Debug("Transaction event",
		zap.String("transaction_id", event.TransactionID.String()),
		zap.String("status", string(event.Status)),
	)
	return nil
}
