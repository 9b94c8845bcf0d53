package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	billinghandler "github.com/smartpharmacy/smartpos-backend/internal/billing/handler"
	billingrepo "github.com/smartpharmacy/smartpos-backend/internal/billing/repository"
	billingservice "github.com/smartpharmacy/smartpos-backend/internal/billing/service"
	cataloghandler "github.com/smartpharmacy/smartpos-backend/internal/catalog/handler"
	catalogrepo "github.com/smartpharmacy/smartpos-backend/internal/catalog/repository"
	catalogservice "github.com/smartpharmacy/smartpos-backend/internal/catalog/service"
	scanclient "github.com/smartpharmacy/smartpos-backend/internal/scan/client"
	scanhandler "github.com/smartpharmacy/smartpos-backend/internal/scan/handler"
	scanservice "github.com/smartpharmacy/smartpos-backend/internal/scan/service"
	"github.com/smartpharmacy/smartpos-backend/pkg/config"
	"github.com/smartpharmacy/smartpos-backend/pkg/database"
	"github.com/smartpharmacy/smartpos-backend/pkg/httputil"
	"github.com/smartpharmacy/smartpos-backend/pkg/logger"
	"github.com/smartpharmacy/smartpos-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("pos-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("pos-service", cfg.Server.Environment)
	log.Info().Msg("starting POS Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ. An empty URL disables event publishing so a
	// single-terminal setup can run without a broker.
	var publisher *messaging.Publisher
	if cfg.RabbitMQ.URL != "" {
		rmq, err := messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err = messaging.NewPublisher(rmq, messaging.ExchangePOS, "pos-service", log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	} else {
		log.Warn().Msg("RabbitMQ URL not set, event publishing disabled")
	}

	// Initialize repositories
	medicineRepo := catalogrepo.NewMedicineRepository(db)
	batchRepo := catalogrepo.NewBatchRepository(db)
	receiptRepo := billingrepo.NewReceiptRepository(db)
	saleRepo := billingrepo.NewSaleRepository(db)
	billingStore := billingrepo.NewStore(db)

	// Initialize services
	catalogSvc := catalogservice.NewService(medicineRepo, batchRepo, publisher, cfg.Catalog, log)
	allocator := billingservice.NewAllocator(billingStore, publisher, log)
	receiptSvc := billingservice.NewReceiptService(receiptRepo, saleRepo, billingStore, allocator, catalogSvc, publisher, log)

	vision := scanclient.NewVisionClient(&cfg.Vision, log)
	scanSvc := scanservice.NewService(vision, vision, catalogSvc, allocator, cfg.Recognition, log)

	// Initialize handlers
	medicineHandler := cataloghandler.NewMedicineHandler(catalogSvc, log)
	billingHandler := billinghandler.NewBillingHandler(receiptSvc, log)
	scanHandler := scanhandler.NewScanHandler(scanSvc, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Terminal-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(httputil.RequestID)
	r.Use(httputil.TerminalID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.Auth(cfg.Auth.Secret))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "pos-service",
			"database": db.Health(r.Context()),
		})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		medicineHandler.Routes(r)
		billingHandler.Routes(r)
		scanHandler.Routes(r)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
