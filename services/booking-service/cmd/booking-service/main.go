package main

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/apptbook/libs/config"
	"github.com/md-rashed-zaman/apptbook/libs/db"
	"github.com/md-rashed-zaman/apptbook/libs/grpcx"
	"github.com/md-rashed-zaman/apptbook/libs/httpx"
	"github.com/md-rashed-zaman/apptbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptbook/libs/otel"
	"github.com/md-rashed-zaman/apptbook/libs/outbox"
	"github.com/md-rashed-zaman/apptbook/libs/runtime"
	"github.com/md-rashed-zaman/apptbook/migrations"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/settings"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := runtime.ShutdownContext(runtime.TelemetryFlushTimeout)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	policy, err := settings.Load()
	if err != nil {
		logger.Error("invalid booking settings", "err", err)
		os.Exit(1)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	if config.Bool("MIGRATE_ON_START", true) {
		if err := db.Migrate(migrations.FS, dbURL); err != nil {
			logger.Error("db migration failed", "err", err)
			os.Exit(1)
		}
	}

	pool, err := db.Open(ctx, dbURL, db.PoolConfigFromEnv())
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	repo := storage.NewRepository(pool, outboxRepo)
	policies := availability.NewPolicyResolver(repo, availability.Defaults{
		Granularity: policy.SlotGranularity,
		MinLead:     policy.MinLead,
		CacheTTL:    policy.AvailabilityCacheTTL,
	})
	calc := availability.NewCalculator(repo, policies, time.Now)
	manager := booking.NewManager(repo, calc, logger, policy.MaxDuration, time.Now)
	bookingHandler := handlers.NewBookingHandler(calc, manager, logger)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if len(brokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	bookingHandler.Register(mux)
	handlers.NewCatalogHandler(repo, policies, logger).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpcx.NewServer(logger)
	grpcServer.SetServing("apptbook.booking", true)
	go func() {
		if err := grpcServer.ListenAndServe(ctx, ":"+grpcPort); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	grpcServer.SetServing("apptbook.booking", false)
	shutdownCtx, cancel := runtime.ShutdownContext(runtime.HTTPDrainTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

