package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/streamvault/backend/docs"
	"github.com/streamvault/backend/internal/database"
	"github.com/streamvault/backend/internal/handlers"
	mW "github.com/streamvault/backend/internal/middleware"
	"github.com/streamvault/backend/internal/services"
)

// @title StreamVault Ledger API
// @version 1.0
// @description Balance and entitlement ledger for the StreamVault media platform
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")
	viper.BindEnv("telegram.moderator_chat_id", "TELEGRAM_MODERATOR_CHAT_ID")
	viper.BindEnv("telegram.webhook_secret", "TELEGRAM_WEBHOOK_SECRET")
	viper.BindEnv("settlement.bicfi", "SETTLEMENT_BICFI")

	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "StreamVault Ledger API"
	docs.SwaggerInfo.Description = "Balance and entitlement ledger for the StreamVault media platform"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	var notifier services.Notifier = services.LogNotifier{}
	if token := viper.GetString("telegram.bot_token"); token != "" {
		notifier = services.NewTelegramNotifier(token, viper.GetString("telegram.moderator_chat_id"))
		log.Println("Telegram notifier enabled")
	}

	entitlementService := services.NewEntitlementService(db, redisClient)
	ledgerService := services.NewLedgerService(db, entitlementService, notifier)
	approvalWorkflow := services.NewApprovalWorkflow(ledgerService, notifier)
	depositCodeService := services.NewDepositCodeService(db, redisClient)
	settlementService := services.NewSettlementService(ledgerService, viper.GetString("settlement.bicfi"))
	authService := services.NewAuthService(db, redisClient, ledgerService)

	walletHandler := handlers.NewWalletHandler(ledgerService, depositCodeService)
	adminHandler := handlers.NewAdminHandler(ledgerService, approvalWorkflow, depositCodeService, settlementService)
	webhookHandler := handlers.NewWebhookHandler(approvalWorkflow)
	accessHandler := handlers.NewAccessHandler(entitlementService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for payment receipt screenshots
	r.Handle("/static/receipts/*", http.StripPrefix("/static/receipts/",
		mW.StaticFileServer("./static/receipts")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Telegram webhook authenticates with its own secret token
		r.Post("/webhook/telegram", webhookHandler.HandleUpdate)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.GetUserAccount)

			r.Get("/wallet/balance", walletHandler.GetBalance)
			r.Get("/wallet/entries", walletHandler.ListEntries)
			r.Post("/wallet/deposits", walletHandler.RequestDeposit)
			r.Post("/wallet/purchases", walletHandler.Purchase)
			r.Post("/wallet/subscriptions", walletHandler.Subscribe)

			r.Get("/content/{contentId}/access", accessHandler.CheckAccess)

			// Moderation surface
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireAdmin)

				r.Get("/admin/deposits/pending", adminHandler.ListPendingDeposits)
				r.Post("/admin/deposits/match", adminHandler.MatchDeposit)
				r.Post("/admin/deposits/{entryId}/approve", adminHandler.ApproveDeposit)
				r.Post("/admin/deposits/{entryId}/reject", adminHandler.RejectDeposit)
				r.Post("/admin/entries/{entryId}/reverse", adminHandler.ReverseEntry)
				r.Post("/admin/accounts/{accountId}/adjust", adminHandler.AdjustAccount)
				r.Get("/admin/accounts/{accountId}/reconcile", adminHandler.ReconcileAccount)
				r.Get("/admin/settlement/export", adminHandler.ExportSettlement)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
