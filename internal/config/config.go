package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DatabaseURL    string
	RedisURL       string
	KafkaBrokers   string
	KafkaTopic     string
	FeedbackTopic  string
	ConsumerGroup  string
	NatsURL        string
	JaegerEndpoint string
	Port           string
	GRPCPort       string

	// SwishMode selects the payout client: "mock" or "nats".
	SwishMode          string
	SwishMaxPayoutSEK  decimal.Decimal
	SwishDeclinedPhone []string

	JWTSecret      string
	AllowedOrigins []string

	CronSchedule   string
	CronTimezone   string
	CronEnabled    bool
	AdminFeeRate   decimal.Decimal
	InvoiceDueDays int
}

func Load() *Config {
	// .env is optional; the process environment wins.
	_ = godotenv.Load()

	return &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       getEnv("REDIS_URL", "localhost:6379"),
		KafkaBrokers:   os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "reward.payouts"),
		FeedbackTopic:  getEnv("FEEDBACK_TOPIC", "feedback.verified"),
		ConsumerGroup:  getEnv("KAFKA_CONSUMER_GROUP", "reward-payouts"),
		NatsURL:        getEnv("NATS_URL", "nats://localhost:4222"),
		JaegerEndpoint: os.Getenv("JAEGER_ENDPOINT"),
		Port:           getEnv("PORT", "8085"),
		GRPCPort:       getEnv("GRPC_PORT", "9085"),

		SwishMode:          getEnv("SWISH_MODE", "mock"),
		SwishMaxPayoutSEK:  getDecimal("SWISH_MAX_PAYOUT_SEK", decimal.NewFromInt(150000)),
		SwishDeclinedPhone: getList("SWISH_DECLINED_PHONES", nil),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		AllowedOrigins: getList("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:3001", "http://localhost:3002"}),

		CronSchedule:   getEnv("PAYMENT_BATCH_CRON", "0 3 * * 1"),
		CronTimezone:   getEnv("PAYMENT_BATCH_TIMEZONE", "Europe/Stockholm"),
		CronEnabled:    getBool("PAYMENT_BATCH_CRON_ENABLED", true),
		AdminFeeRate:   getDecimal("ADMIN_FEE_RATE", decimal.NewFromFloat(0.20)),
		InvoiceDueDays: getInt("INVOICE_DUE_DAYS", 14),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v, err := decimal.NewFromString(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
