package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/perrona-loyalty/internal/cache"
	"github.com/diagnosis/perrona-loyalty/internal/http/handlers"
	"github.com/diagnosis/perrona-loyalty/internal/repo/postgres"
	"github.com/diagnosis/perrona-loyalty/internal/service"
	"github.com/diagnosis/perrona-loyalty/pkg/config"
	"github.com/diagnosis/perrona-loyalty/pkg/database"
	"github.com/diagnosis/perrona-loyalty/pkg/events"
	"github.com/diagnosis/perrona-loyalty/pkg/logger"
	mw "github.com/diagnosis/perrona-loyalty/pkg/middleware"
)

func main() {
	cfg := config.Load()

	// Connect to database
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Connect to event bus
	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Optional Redis cache for the tier catalog
	var rdb *redis.Client
	if !cfg.Redis.Disabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("Invalid Redis URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	// Initialize repositories
	customerRepo := postgres.NewCustomerRepo(pool)
	cardRepo := postgres.NewCardRepo(pool)
	tierRepo := cache.NewTierCache(postgres.NewTierRepo(pool), rdb, cfg.Redis.TierTTL)

	// Initialize services
	loyaltyService := service.NewLoyaltyService(customerRepo, cardRepo, tierRepo, eventBus, cfg)

	// Initialize handlers
	h := handlers.New(loyaltyService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("loyalty"))
	r.Use(mw.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000", "*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.Health)
	r.Use(mw.Metrics)

	// Routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/customers", h.RegisterCustomer)
		r.Get("/customers/{phone}/card", h.LookupCard)
		r.Post("/cards/{id}/stamps", h.GrantStamp)
		r.Get("/tiers", h.ListTiers)
	})

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down loyalty service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Loyalty service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting loyalty service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Loyalty service error", "error", err)
		os.Exit(1)
	}
}
