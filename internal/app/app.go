// Package app wires configuration, storage, messaging and services shared by
// the API server and the operator CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/vocilia/payment-system/reward-payouts/internal/api"
	"github.com/vocilia/payment-system/reward-payouts/internal/config"
	"github.com/vocilia/payment-system/reward-payouts/internal/handlers"
	"github.com/vocilia/payment-system/reward-payouts/internal/interfaces"
	"github.com/vocilia/payment-system/reward-payouts/internal/repository"
	"github.com/vocilia/payment-system/reward-payouts/internal/service"
	"github.com/vocilia/payment-system/reward-payouts/internal/swish"
	"github.com/vocilia/payment-system/reward-payouts/internal/telemetry"
)

type App struct {
	Config   *config.Config
	Location *time.Location

	DB    *sql.DB
	Redis *redis.Client

	Batches      *repository.PaymentBatchRepository
	Rewards      *repository.RewardCalculationRepository
	Transactions *repository.PaymentTransactionRepository
	Reports      *repository.ReconciliationReportRepository
	Invoices     *repository.BusinessInvoiceRepository

	Scheduler     *service.BatchScheduler
	Reconciler    *service.ReconciliationService
	RewardService *service.RewardService

	closers []func() error
}

// New connects to every backing service and builds the payout pipeline.
// Callers must Close the returned App.
func New(cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	loc, err := time.LoadLocation(cfg.CronTimezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.CronTimezone, err)
	}
	a.Location = loc

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)
	if err := repository.InitDB(db); err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	// Connect to Redis
	a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	a.closers = append(a.closers, a.Redis.Close)

	client, err := a.paymentClient()
	if err != nil {
		a.Close()
		return nil, err
	}

	events := a.eventPublisher()

	a.Batches = repository.NewPaymentBatchRepository(db)
	a.Rewards = repository.NewRewardCalculationRepository(db)
	a.Transactions = repository.NewPaymentTransactionRepository(db)
	a.Reports = repository.NewReconciliationReportRepository(db)
	a.Invoices = repository.NewBusinessInvoiceRepository(db)

	processor := service.NewPaymentProcessor(a.Transactions, client, events)
	a.Reconciler = service.NewReconciliationService(a.Reports, a.Invoices, a.Transactions, cfg.AdminFeeRate, cfg.InvoiceDueDays, loc)
	a.Scheduler = service.NewBatchScheduler(
		a.Batches, a.Rewards, a.Transactions,
		processor, a.Reconciler,
		service.NewRedisBatchLocker(a.Redis),
		events, loc,
	)
	a.RewardService = service.NewRewardService(a.Rewards)

	return a, nil
}

func (a *App) paymentClient() (interfaces.PaymentClient, error) {
	switch a.Config.SwishMode {
	case "nats":
		// Connect to NATS
		nc, err := nats.Connect(a.Config.NatsURL)
		if err != nil {
			return nil, fmt.Errorf("connect to NATS: %w", err)
		}
		a.closers = append(a.closers, func() error { nc.Close(); return nil })
		telemetry.Logger.Info("Using Swish gateway over NATS", zap.String("subject", swish.PayoutSubject))
		return swish.NewNATSClient(nc), nil
	case "mock":
		telemetry.Logger.Warn("Using mock Swish client; no money is moved")
		return swish.NewMockClient(a.Config.SwishMaxPayoutSEK, a.Config.SwishDeclinedPhone), nil
	default:
		return nil, fmt.Errorf("unknown SWISH_MODE %q", a.Config.SwishMode)
	}
}

func (a *App) eventPublisher() interfaces.EventPublisher {
	if a.Config.KafkaBrokers == "" {
		return service.LogEventPublisher{}
	}
	// Connect to Kafka
	writer := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(a.Config.KafkaBrokers, ",")...),
		Topic:    a.Config.KafkaTopic,
		Balancer: &kafka.Hash{},
	}
	a.closers = append(a.closers, writer.Close)
	return service.NewKafkaEventPublisher(writer)
}

// FeedbackConsumer reads verified feedback events into pending rewards. It is
// nil when no Kafka brokers are configured.
func (a *App) FeedbackConsumer() *service.FeedbackConsumer {
	if a.Config.KafkaBrokers == "" {
		return nil
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(a.Config.KafkaBrokers, ","),
		Topic:    a.Config.FeedbackTopic,
		GroupID:  a.Config.ConsumerGroup,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	a.closers = append(a.closers, reader.Close)
	return service.NewFeedbackConsumer(reader, a.RewardService)
}

// Handlers builds the HTTP handlers over the app's services.
func (a *App) Handlers() api.Handlers {
	return api.Handlers{
		Batches:  handlers.NewBatchHandler(a.Scheduler, a.Reconciler, a.Reports, a.Transactions, a.Location),
		Invoices: handlers.NewInvoiceHandler(a.Invoices),
		Rewards:  handlers.NewRewardHandler(a.RewardService),
	}
}

// Ping checks the database and Redis.
func (a *App) Ping(ctx context.Context) error {
	if err := a.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			telemetry.Logger.Warn("Error closing resource", zap.Error(err))
		}
	}
	a.closers = nil
}
