package main

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptbook/libs/config"
	"github.com/md-rashed-zaman/apptbook/libs/db"
	"github.com/md-rashed-zaman/apptbook/libs/httpx"
	"github.com/md-rashed-zaman/apptbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptbook/libs/otel"
	"github.com/md-rashed-zaman/apptbook/libs/outbox"
	"github.com/md-rashed-zaman/apptbook/libs/runtime"
	"github.com/md-rashed-zaman/apptbook/services/scheduler-service/internal/handlers"
	"github.com/md-rashed-zaman/apptbook/services/scheduler-service/internal/jobs"
	"github.com/md-rashed-zaman/apptbook/services/scheduler-service/internal/lease"
	"github.com/md-rashed-zaman/apptbook/services/scheduler-service/internal/notify"
	"github.com/md-rashed-zaman/apptbook/services/scheduler-service/internal/reminders"
	"github.com/md-rashed-zaman/apptbook/services/scheduler-service/internal/settings"
	"github.com/md-rashed-zaman/apptbook/services/scheduler-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduler-service")
	port, err := config.Port("PORT", "8087")
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

	schedule, err := settings.Load()
	if err != nil {
		logger.Error("invalid reminder settings", "err", err)
		os.Exit(1)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
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

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if len(brokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	var locker lease.Locker = lease.Noop{}
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		locker = lease.NewRedisLocker(rdb, config.String("REDIS_LEASE_PREFIX", "apptbook:lease"))
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: lease.ReadyCheck(rdb)})
	}

	var sms notify.SMSSender = notify.NewNoopSender()
	if url := config.String("SMS_WEBHOOK_URL", ""); url != "" {
		sms = notify.NewWebhookSender(url, config.String("SMS_WEBHOOK_TOKEN", ""))
	}
	email := notify.NewSMTPSender(
		config.String("SMTP_HOST", "localhost"),
		config.Int("SMTP_PORT", 1025),
		config.String("SMTP_USERNAME", ""),
		config.String("SMTP_PASSWORD", ""),
		config.String("SMTP_FROM", ""),
	)
	gateway := notify.NewRouter(notify.DefaultTemplates(), email, sms)

	repo := storage.NewRepository(pool, outboxRepo)
	workflow, err := reminders.NewWorkflow(repo, gateway, logger, schedule.Reminders, time.Now)
	if err != nil {
		logger.Error("reminder workflow config invalid", "err", err)
		os.Exit(1)
	}
	worker := jobs.NewWorker(workflow, locker, logger, jobs.WorkerConfig{
		Interval:   schedule.Reminders.RunInterval,
		LeaseTTL:   schedule.LeaseTTL,
		RunOnStart: config.Bool("REMINDERS_RUN_ON_START", true),
	})
	go worker.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewReminderHandler(worker, workflow, logger).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithTimeout(5*time.Minute),
	)
	handler = otelhttp.NewHandler(handler, "scheduler")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := runtime.ShutdownContext(runtime.HTTPDrainTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
