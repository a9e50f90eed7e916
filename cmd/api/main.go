package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aurika-backend/config"
	"aurika-backend/internal/delivery/http/middleware"
	v1 "aurika-backend/internal/delivery/http/v1"
	"aurika-backend/internal/infrastructure/cache"
	"aurika-backend/internal/infrastructure/carrier"
	"aurika-backend/internal/infrastructure/gateway"
	"aurika-backend/internal/repository/postgres"
	"aurika-backend/internal/usecase"
	"aurika-backend/pkg/logger"
	"aurika-backend/pkg/utils"

	"github.com/NYTimes/gziphandler"
)

func main() {
	cfg := config.LoadConfig()
	utils.SetSecret(cfg.JWTSecret)

	// Initialize Logger
	logger.Init(cfg.Env, cfg.LogLevel)
	log := logger.Get()

	// Initialize Database
	pgxPool, err := postgres.NewPgxPool(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	log.Info().Msg("Successfully connected to PostgreSQL via pgx")

	// Initialize Repositories
	orderRepo := postgres.NewOrderRepository(pgxPool)
	returnRepo := postgres.NewReturnRepository(pgxPool)
	txLogRepo := postgres.NewTransactionLogRepository(pgxPool)
	txManager := postgres.NewTransactionManager(pgxPool)

	// Initialize Cache (In-Memory)
	// Default expiration 30m, cleanup every 60m
	memCache := cache.NewMemoryCache(30*time.Minute, 60*time.Minute)

	// External Clients
	carrierClient := carrier.NewClient(
		cfg.CarrierBaseURL,
		cfg.CarrierEmail,
		cfg.CarrierPassword,
		cfg.CarrierTokenTTL,
		cfg.CarrierTimeout,
		memCache,
	)
	gatewayClient := gateway.NewClient(
		cfg.GatewayBaseURL,
		cfg.GatewayKeyID,
		cfg.GatewayKeySecret,
		cfg.GatewayTimeout,
	)

	// Set up Router
	mux := http.NewServeMux()

	// --- Modules Initialization ---

	txLog := usecase.NewTxLogger(txLogRepo)

	orderUC := usecase.NewOrderUsecase(orderRepo, txManager, txLog)
	returnUC := usecase.NewReturnUsecase(returnRepo, orderRepo, txManager, txLog)
	refundUC := usecase.NewRefundUsecase(returnRepo, orderRepo, gatewayClient, txManager, txLog, cfg.RefundSpeed)
	reconcileUC := usecase.NewReconcileUsecase(orderRepo, returnRepo, refundUC, carrierClient, txManager, txLog)
	stuckUC := usecase.NewStuckUsecase(orderRepo, returnRepo, usecase.StuckThresholds{
		UnshippedAfter:      cfg.StuckUnshippedAfter,
		PendingPaidAfter:    cfg.StuckPendingPaidAfter,
		CancelledPaidWindow: cfg.StuckCancelledPaidWindow,
	})

	orderHandler := v1.NewOrderHandler(orderUC, returnUC)
	adminOrderHandler := v1.NewAdminOrderHandler(orderUC, reconcileUC)
	adminReturnHandler := v1.NewAdminReturnHandler(returnUC, refundUC)
	adminReconHandler := v1.NewAdminReconHandler(stuckUC, txLogRepo)
	webhookHandler := v1.NewWebhookHandler(reconcileUC, refundUC, cfg.CarrierWebhookSecret, cfg.GatewayWebhookSecret)

	// Webhooks (Public; each external system authenticates with its own secret)
	mux.HandleFunc("POST /api/v1/webhooks/carrier/shipment", webhookHandler.CarrierShipment)
	mux.HandleFunc("POST /api/v1/webhooks/carrier/return", webhookHandler.CarrierReturn)
	mux.HandleFunc("POST /api/v1/webhooks/gateway/refund", webhookHandler.GatewayRefund)

	// Orders & Returns (Protected)
	mux.Handle("POST /api/v1/orders", middleware.AuthMiddleware(http.HandlerFunc(orderHandler.CreateOrder)))
	mux.Handle("GET /api/v1/orders", middleware.AuthMiddleware(http.HandlerFunc(orderHandler.GetMyOrders)))
	mux.Handle("GET /api/v1/orders/{id}", middleware.AuthMiddleware(http.HandlerFunc(orderHandler.GetMyOrder)))
	mux.Handle("POST /api/v1/orders/{id}/payment", middleware.AuthMiddleware(http.HandlerFunc(orderHandler.CapturePayment)))
	mux.Handle("POST /api/v1/returns", middleware.AuthMiddleware(http.HandlerFunc(orderHandler.RequestReturn)))
	mux.Handle("GET /api/v1/returns/{id}", middleware.AuthMiddleware(http.HandlerFunc(orderHandler.GetMyReturn)))

	// Admin (Protected)
	adminMiddleware := func(h http.HandlerFunc) http.Handler {
		return middleware.AuthMiddleware(middleware.AdminMiddleware(h))
	}

	mux.Handle("GET /api/v1/admin/orders", adminMiddleware(adminOrderHandler.ListOrders))
	mux.Handle("GET /api/v1/admin/orders/{id}", adminMiddleware(adminOrderHandler.GetOrder))
	mux.Handle("PATCH /api/v1/admin/orders/{id}/status", adminMiddleware(adminOrderHandler.UpdateStatus))
	mux.Handle("POST /api/v1/admin/orders/{id}/shipment", adminMiddleware(adminOrderHandler.AttachShipment))
	mux.Handle("GET /api/v1/admin/orders/{id}/history", adminMiddleware(adminOrderHandler.GetOrderHistory))
	mux.Handle("POST /api/v1/admin/orders/{id}/resync", adminMiddleware(adminOrderHandler.Resync))

	mux.Handle("GET /api/v1/admin/returns", adminMiddleware(adminReturnHandler.ListReturns))
	mux.Handle("GET /api/v1/admin/returns/{id}", adminMiddleware(adminReturnHandler.GetReturn))
	mux.Handle("GET /api/v1/admin/returns/{id}/transitions", adminMiddleware(adminReturnHandler.GetTransitions))
	mux.Handle("POST /api/v1/admin/returns/{id}/notes", adminMiddleware(adminReturnHandler.AddNote))
	mux.Handle("POST /api/v1/admin/returns/{id}/shipment", adminMiddleware(adminReturnHandler.AttachShipment))
	mux.Handle("POST /api/v1/admin/returns/{id}/approve-inspection", adminMiddleware(adminReturnHandler.ApproveInspection))
	mux.Handle("POST /api/v1/admin/returns/{id}/retry-refund", adminMiddleware(adminReturnHandler.RetryRefund))
	mux.Handle("GET /api/v1/admin/returns/{id}/refund-eligibility", adminMiddleware(adminReturnHandler.RefundEligibility))

	mux.Handle("GET /api/v1/admin/recon/stuck", adminMiddleware(adminReconHandler.StuckReport))
	mux.Handle("GET /api/v1/admin/recon/transactions", adminMiddleware(adminReconHandler.ListTransactionLogs))

	// Health Check
	healthHandler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok", "db": "connected"}`))
	}
	mux.HandleFunc("GET /api/v1/health", healthHandler)
	mux.HandleFunc("GET /health", healthHandler) // Support root health check for Load Balancers

	addr := fmt.Sprintf(":%s", cfg.Port)

	// Initialize Rate Limiter with lifecycle management
	// 50 req/s, burst 100, cleanup every minute, TTL 3 minutes
	rateLimiter := middleware.NewRateLimiter(
		context.Background(),
		50,            // requests per second
		100,           // burst
		time.Minute,   // cleanup period
		3*time.Minute, // client TTL
	)

	// Apply CORS (with config injection), Request Logger, Rate Limit, and Gzip
	handler := middleware.NewCORSMiddleware(cfg)(mux)
	handler = middleware.RequestLogger(handler)
	handler = rateLimiter.Middleware("/api/v1/webhooks/")(handler)
	handler = gziphandler.GzipHandler(handler)

	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Graceful Shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	log.Info().Msgf("Server starting on %s", addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down...")

	rateLimiter.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	pgxPool.Close()
	log.Info().Msg("Server exited properly")
}
