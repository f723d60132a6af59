package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/servemate/service-booking/internal/application"
	"github.com/servemate/service-booking/internal/config"
	"github.com/servemate/service-booking/internal/database"
	"github.com/servemate/service-booking/internal/domain/conflict"
	"github.com/servemate/service-booking/internal/domain/quota"
	bookingEvents "github.com/servemate/service-booking/internal/events"
	"github.com/servemate/service-booking/internal/handler"
	"github.com/servemate/service-booking/internal/lease"
	"github.com/servemate/service-booking/internal/logger"
	"github.com/servemate/service-booking/internal/metrics"
	"github.com/servemate/service-booking/internal/repository"
	"github.com/servemate/service-booking/internal/scheduler"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, "service-booking")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting service-booking",
		zap.String("port", cfg.Port),
	)

	// Connect to database
	db, err := database.Connect(cfg.DB, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if cfg.AppEnv == "development" {
		if err := repository.AutoMigrate(db); err != nil {
			log.Fatal("failed to run auto-migration", zap.Error(err))
		}
		log.Info("database migration completed (dev auto-migrate)")
	} else {
		if err := database.RunMigrations(cfg.DB.URL(), cfg.DB.MigrationsPath, log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	// Audit sink: Kafka when brokers are configured, the log otherwise
	var auditSink application.AuditSink = bookingEvents.NewLogAuditSink(log)
	var kafkaProducer *bookingEvents.Producer
	if cfg.Kafka.Enabled() {
		kafkaProducer = bookingEvents.NewProducer(cfg.Kafka.Brokers, log)
		defer func() { _ = kafkaProducer.Close() }()
		auditSink = bookingEvents.NewKafkaAuditSink(kafkaProducer)
	}

	// Initialize application service
	uow := repository.NewGormStore(db)
	wallClock := clock.WallClock
	bookingService := application.NewBookingService(
		uow,
		quota.NewLedger(cfg.Limits.Quota()),
		conflict.NewResolver(conflict.AfterWinner{}),
		auditSink,
		wallClock,
		recorder,
		log,
		application.Options{
			InactionThreshold: cfg.Scheduler.InactionThreshold,
			ProposalTTL:       cfg.Scheduler.ProposalTTL,
			LocalDisplay:      application.LocationDisplay(cfg.Scheduler.DisplayLocation()),
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sweep lease: shared through Redis when configured
	var sweepLease lease.Lease = lease.Always{}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		hostname, _ := os.Hostname()
		sweepLease = lease.NewRedisLease(rdb, cfg.Redis.KeyPrefix, hostname)
	}

	// Background jobs
	timeoutScheduler := scheduler.NewTimeoutScheduler(uow, bookingService, sweepLease, wallClock, recorder, log, scheduler.SweepConfig{
		Interval:          cfg.Scheduler.SweepInterval,
		InactionThreshold: cfg.Scheduler.InactionThreshold,
		ProposalTTL:       cfg.Scheduler.ProposalTTL,
		BatchSize:         cfg.Scheduler.SweepBatchSize,
	})
	go timeoutScheduler.Run(ctx)

	reconciler := scheduler.NewReconciler(uow, wallClock, recorder, log, cfg.Scheduler.ReconcileInterval)
	go reconciler.Run(ctx)

	// Initialize and start payment event consumer in a goroutine
	if cfg.Kafka.Enabled() {
		groupID := cfg.Kafka.GroupPrefix + "booking-service"
		paymentConsumer := bookingEvents.NewPaymentEventConsumer(
			cfg.Kafka.Brokers,
			groupID,
			bookingService,
			log,
		)
		defer func() { _ = paymentConsumer.Close() }()

		go func() {
			log.Info("starting payment event consumer")
			if err := paymentConsumer.Start(ctx); err != nil && err != context.Canceled {
				log.Error("payment event consumer error", zap.Error(err))
			}
		}()
	}

	// Initialize HTTP handlers
	bookingHandler := handler.NewBookingHandler(bookingService)
	serviceHandler := handler.NewServiceHandler(bookingService)
	adminBookingHandler := handler.NewAdminBookingHandler(bookingService, reconciler, timeoutScheduler)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(handler.RecoveryMiddleware(log))
	router.Use(handler.RequestIDMiddleware())
	router.Use(handler.LoggerMiddleware(log))

	// Register health check and metrics routes
	handler.RegisterHealthRoutes(router, registry)

	// Register routes
	bookingHandler.RegisterRoutes(&router.RouterGroup)
	serviceHandler.RegisterRoutes(&router.RouterGroup)
	adminBookingHandler.RegisterRoutes(&router.RouterGroup)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down service-booking...")

	// Stop the consumer and background jobs
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}

	log.Info("service-booking stopped")
}
