// ==============================================================================
// DOTPAY PAYMENT SERVICE MAIN - cmd/payment/main.go
// ==============================================================================
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"dotpay/internal/chain"
	"dotpay/internal/directory"
	"dotpay/internal/forex"
	"dotpay/internal/handler"
	"dotpay/internal/metrics"
	"dotpay/internal/middleware"
	"dotpay/internal/notification"
	"dotpay/internal/recipient"
	"dotpay/internal/reconcile"
	"dotpay/internal/repository/postgres"
	"dotpay/internal/scheduler"
	"dotpay/pkg/cache"
	"dotpay/pkg/config"
	"dotpay/pkg/logger"
	"dotpay/pkg/validator"
)

func main() {
	cfg := config.Load()
	log := logger.NewWithOptions("payment-service", logger.Options{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
	})

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting Payment Service", map[string]interface{}{
		"port":     cfg.Server.Port,
		"network":  cfg.Chain.Network,
		"chain_id": cfg.Chain.ChainID,
	})

	// Database connection
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	log.Info("Database connected", nil)

	// Redis connection
	redisCache, err := cache.New(context.Background(), cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer redisCache.Close()

	log.Info("Redis connected", nil)

	// Ledger access: JSON-RPC when a node is configured, otherwise the explorer API.
	ledger, closeLedger := openLedger(cfg, log)
	defer closeLedger()

	token := chain.TokenFromConfig(cfg.Chain)

	// Initialize services
	directoryClient := directory.NewClient(cfg.Directory, log)
	if !cfg.Directory.Configured() {
		log.Warn("Directory service not configured; notifications and lookups are disabled", nil)
	}

	deliveries := postgres.NewDeliveryRepository(db)
	locker := notification.NewRedisLocker(redisCache)
	dispatcher := notification.NewDispatcher(directoryClient, deliveries, locker, cfg.Reconcile.LockTTL, log)
	reconcileService := reconcile.NewService(ledger, dispatcher, token, cfg.Reconcile, log)

	redeliverer := scheduler.NewRedeliverer(deliveries, reconcileService, cfg.Reconcile, log)
	redeliverer.Start()
	defer redeliverer.Stop()

	forexService := forex.NewService(
		forex.NewRedisRateCache(redisCache),
		forex.ProvidersFromConfig(cfg.Forex, log),
		cfg.Forex.LocalCurrency,
		cfg.Chain.TokenSymbol,
		cfg.Forex.CacheTTL,
		log,
	)
	forexService.Start(cfg.Forex.RefreshInterval)
	defer forexService.Stop()

	recipientService := recipient.NewService(directoryClient, log)

	// Initialize handlers
	val := validator.New()
	notificationHandler := handler.NewNotificationHandler(reconcileService, log)
	recipientHandler := handler.NewRecipientHandler(recipientService, val, log)
	forexHandler := handler.NewForexHandler(forexService, token, val, log)
	explorer := chain.NewExplorerClient(cfg.Chain.ExplorerURL, cfg.Chain.ExplorerAPIKey, cfg.Chain.ChainID, log)
	activityHandler := handler.NewActivityHandler(explorer, token, log)
	transferHandler := handler.NewTransferHandler(chain.NewConfirmer(ledger, cfg.Chain.ConfirmInterval), 0, log)
	systemHandler := handler.NewSystemHandler(map[string]handler.Pinger{
		"database": db.PingContext,
		"redis":    redisCache.Ping,
	}, log)

	// Setup router
	r := mux.NewRouter()

	// Middleware
	r.Use(middleware.CORS)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)

	authMW := middleware.NewAuthMiddleware(cfg.JWT.Secret, cfg.JWT.AddressClaim, middleware.NewRedisTokenBlacklist(redisCache), log)
	limiter := middleware.NewRateLimiter(redisCache, cfg.Server.RateLimit, cfg.Server.RateWindow, log)

	// Health check routes (no auth)
	r.HandleFunc("/health", systemHandler.Health).Methods("GET")
	r.HandleFunc("/ready", systemHandler.Ready).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	// Protected routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMW.Authenticate)
	api.Use(limiter.Limit)

	api.HandleFunc("/notifications/payment", notificationHandler.NotifyPayment).Methods("POST", "OPTIONS")
	api.HandleFunc("/recipients/resolve", recipientHandler.Resolve).Methods("GET")
	api.HandleFunc("/amount/quote", forexHandler.Quote).Methods("GET")
	api.HandleFunc("/rates/token", forexHandler.GetRate).Methods("GET")
	api.HandleFunc("/transfers/{hash}/watch", transferHandler.Watch).Methods("GET")
	api.HandleFunc("/activity", activityHandler.List).Methods("GET")

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		log.Info("Payment service started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down payment service...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Payment service forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Payment service stopped gracefully", nil)
}

type ledgerReader interface {
	reconcile.Ledger
	chain.ReceiptReader
}

func openLedger(cfg *config.Config, log logger.Logger) (ledgerReader, func()) {
	if cfg.Chain.RPCURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		client, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID, log)
		if err == nil {
			return client, client.Close
		}
		log.Warn("RPC unavailable, falling back to explorer", map[string]interface{}{"error": err.Error()})
	}
	return chain.NewExplorerClient(cfg.Chain.ExplorerURL, cfg.Chain.ExplorerAPIKey, cfg.Chain.ChainID, log), func() {}
}
