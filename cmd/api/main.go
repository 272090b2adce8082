package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/fkhayef/milestonepay/docs"
	"github.com/fkhayef/milestonepay/internal/config"
	"github.com/fkhayef/milestonepay/internal/database"
	"github.com/fkhayef/milestonepay/internal/fee"
	"github.com/fkhayef/milestonepay/internal/job"
	"github.com/fkhayef/milestonepay/internal/payment"
	"github.com/fkhayef/milestonepay/internal/payout"
	mw "github.com/fkhayef/milestonepay/pkg/middleware"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fees, err := fee.NewCalculator(cfg.FeeRate)
	if err != nil {
		log.Fatalf("Invalid fee configuration: %v", err)
	}

	var (
		db       *sql.DB
		store    payment.Store
		jobs     payment.JobReader
		outbox   payout.Source
		readyErr = func(ctx context.Context) error { return nil }
	)

	switch cfg.Store {
	case config.StorePostgres:
		db, err = database.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		log.Println("Connected to database successfully")

		if cfg.AutoMigrate {
			if err := database.Migrate(context.Background(), db); err != nil {
				log.Fatalf("Failed to migrate database: %v", err)
			}
			log.Println("Database schema is up to date")
		}

		store = payment.NewRepository(db, cfg.TxTimeout, cfg.LockTimeout)
		jobs = job.NewRepository(db)
		outbox = payout.NewRepository(db)
		readyErr = db.PingContext

	case config.StoreMemory:
		memJobs := job.NewMemoryRepository()
		if cfg.SeedJobsFile != "" {
			f, err := os.Open(cfg.SeedJobsFile)
			if err != nil {
				log.Fatalf("Failed to open seed file: %v", err)
			}
			n, err := memJobs.LoadJSON(f)
			f.Close()
			if err != nil {
				log.Fatalf("Failed to load seed jobs: %v", err)
			}
			log.Printf("Loaded %d jobs from %s", n, cfg.SeedJobsFile)
		}
		memOutbox := payout.NewMemoryOutbox()
		store = payment.NewMemoryStore(memOutbox)
		jobs = memJobs
		outbox = memOutbox
		log.Println("Using in-memory store; data is lost on restart")
	}

	// Payment feature
	paymentService := payment.NewService(store, jobs, fees, payment.Options{
		MaxDescriptionLength: cfg.MaxDescLength,
		Currency:             cfg.Currency,
	})
	paymentHandler := payment.NewHandler(paymentService)

	// Payout feature
	payoutHandler := payout.NewHandler(payout.NewService(outbox))
	var sink payout.Sink = payout.LogSink{}
	if cfg.PayoutWebhookURL != "" {
		sink = payout.NewWebhookSink(cfg.PayoutWebhookURL, 10*time.Second)
	}
	dispatcher := payout.NewDispatcher(outbox, sink, cfg.PayoutPollInterval, cfg.PayoutBatchSize)

	auth := mw.HeaderAuth
	if cfg.AuthMode == config.AuthModeJWT {
		auth = mw.JWTAuth([]byte(cfg.JWTSecret))
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(mw.Metrics)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := readyErr(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	docs.SwaggerInfo.BasePath = "/api/v1"
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Mount("/payments", paymentHandler.Routes())
		})

		// The payout integration authenticates with its service key
		r.Group(func(r chi.Router) {
			r.Use(mw.ServiceKeyAuth(cfg.PayoutAPIKey, auth))
			r.Mount("/payouts", payoutHandler.Routes())
		})
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go dispatcher.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}()

	log.Printf("Server starting on port %s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed to start: %v", err)
	}
	log.Println("Server stopped")
}
