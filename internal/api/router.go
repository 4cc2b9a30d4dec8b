package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vocilia/payment-system/reward-payouts/internal/handlers"
	"github.com/vocilia/payment-system/reward-payouts/internal/middleware"
	"github.com/vocilia/payment-system/reward-payouts/internal/telemetry"
)

type Handlers struct {
	Batches  *handlers.BatchHandler
	Invoices *handlers.InvoiceHandler
	Rewards  *handlers.RewardHandler
}

func NewRouter(h Handlers, jwtSecret string, allowedOrigins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": telemetry.ServiceName})
	})

	auth := middleware.JWTAuthMiddleware(jwtSecret)

	admin := r.Group("/admin", auth, middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("/batches", h.Batches.RunBatch)
	admin.GET("/batches", h.Batches.ListBatches)
	admin.GET("/batches/:id", h.Batches.GetBatch)
	admin.GET("/batches/:id/transactions", h.Batches.ListTransactions)
	admin.GET("/batches/:id/report", h.Batches.GetReport)
	admin.POST("/batches/:id/reconcile", h.Batches.Reconcile)
	admin.GET("/batches/:id/invoices", h.Invoices.ListBatchInvoices)
	admin.GET("/transactions/:id", h.Batches.GetTransaction)
	admin.PATCH("/invoices/:id", h.Invoices.UpdateInvoiceStatus)
	admin.GET("/customers/:phone/rewards", h.Rewards.GetCustomerRewards)

	business := r.Group("/business", auth, middleware.RequireRole(middleware.RoleBusiness))
	business.POST("/rewards", h.Rewards.CreateReward)
	business.GET("/invoices", h.Invoices.ListBusinessInvoices)

	return r
}
