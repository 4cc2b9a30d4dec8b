package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vocilia/payment-system/reward-payouts/internal/api"
	"github.com/vocilia/payment-system/reward-payouts/internal/app"
	"github.com/vocilia/payment-system/reward-payouts/internal/config"
	"github.com/vocilia/payment-system/reward-payouts/internal/scheduler"
	"github.com/vocilia/payment-system/reward-payouts/internal/telemetry"
)

const serviceName = "reward-payouts"

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry(serviceName, cfg.JaegerEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Reward Payouts")

	if cfg.JWTSecret == "" {
		telemetry.Logger.Fatal("JWT_SECRET must be set")
	}

	a, err := app.New(cfg)
	if err != nil {
		telemetry.Logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	// Weekly payout schedule
	var weekly *scheduler.WeeklyPayouts
	if cfg.CronEnabled {
		weekly = scheduler.NewWeeklyPayouts(a.Scheduler, a.Location)
		if err := weekly.Start(cfg.CronSchedule); err != nil {
			telemetry.Logger.Fatal("Failed to start payout schedule", zap.Error(err))
		}
	}

	// Verified feedback events become pending rewards
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	if consumer := a.FeedbackConsumer(); consumer != nil {
		go consumer.Run(consumerCtx)
	}

	// gRPC health endpoint for the orchestrator's probes
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		telemetry.Logger.Fatal("Failed to listen for gRPC", zap.Error(err))
	}
	go func() {
		telemetry.Logger.Info("gRPC health server starting", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			telemetry.Logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()
	go watchDependencies(a, healthServer)

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(a.Handlers(), cfg.JWTSecret, cfg.AllowedOrigins),
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Reward Payouts starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	healthServer.Shutdown()
	stopConsumer()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if weekly != nil {
		weekly.Stop(ctx)
	}
	grpcServer.GracefulStop()

	telemetry.Logger.Info("Server exited")
}

// watchDependencies flips the gRPC health status when Postgres or Redis
// becomes unreachable.
func watchDependencies(a *app.App, hs *health.Server) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := a.Ping(ctx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			telemetry.Logger.Warn("Dependency check failed", zap.Error(err))
		}
		hs.SetServingStatus(serviceName, status)
	}
}
