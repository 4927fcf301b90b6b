package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"bus-booking/internal/api"
	"bus-booking/internal/auth"
	"bus-booking/internal/config"
	"bus-booking/internal/hold"
	holdredis "bus-booking/internal/hold/redis"
	"bus-booking/internal/kafka"
	"bus-booking/internal/logger"
	"bus-booking/internal/payment"
	"bus-booking/internal/remote"
	"bus-booking/internal/storage"
	"bus-booking/internal/tickets"
	"bus-booking/internal/tickets/qr"
	"bus-booking/internal/trips"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
		log.Fatal("STORAGE", fmt.Sprintf("Failed to create data directory: %v", err))
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.Storage.Path)
	if err != nil {
		log.Fatal("STORAGE", fmt.Sprintf("Failed to open sqlite store: %v", err))
	}
	if err := sqldb.Ping(); err != nil {
		log.Fatal("STORAGE", fmt.Sprintf("Failed to ping sqlite store: %v", err))
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	log.Info("STORAGE", fmt.Sprintf("Local store opened at %s", cfg.Storage.Path))

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Booking Gateway initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	ctx := context.Background()
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	kv := storage.NewKV(bunDB)
	if err := kv.Init(ctx); err != nil {
		log.Fatal("STORAGE", fmt.Sprintf("Failed to create storage table: %v", err))
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()

		requiredTopics := []string{
			"busly.hold.created",
			"busly.hold.confirmed",
			"busly.hold.cancelled",
			"busly.hold.expired",
			"busly.ticket.saved",
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		log.Info("KAFKA", "Kafka producer initialized")
	} else {
		log.Warn("KAFKA", "Kafka disabled, lifecycle events will not be published")
	}

	httpClient := &http.Client{Timeout: cfg.Backend.Timeout}
	backend := remote.NewClient(cfg.Backend.BaseURL, httpClient, log)

	var events hold.EventPublisher
	if producer != nil {
		events = producer
	}

	coordinator := hold.NewCoordinator(
		backend,
		holdredis.NewSessionLock(redisClient, log),
		events,
		hold.NewClock(),
		log,
	)
	defer coordinator.Close()

	tripService := trips.NewService(backend, log)
	bridge := payment.NewBridge(backend, cfg.Payment.Debounce, log)

	var ticketEvents tickets.EventPublisher
	if producer != nil {
		ticketEvents = producer
	}
	ticketStore := tickets.NewStore(kv, qr.NewGenerator(cfg.Storage.ArtifactDir), ticketEvents, log)
	recentCities := storage.NewRecentCities(kv)

	handler := &api.Handler{
		Holds:    coordinator,
		Trips:    tripService,
		Payments: bridge,
		Tickets:  ticketStore,
		Recent:   recentCities,
		HoldTTL:  cfg.Hold.TTLSeconds,
		Logger:   log,
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(api.RequestLogger(log))

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		r.Route("/api", handler.Routes)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Booking Gateway running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Booking Gateway shutdown complete")
	}
}
