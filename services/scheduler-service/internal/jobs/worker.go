package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/apptbook/libs/metrics"
	"github.com/md-rashed-zaman/apptbook/services/scheduler-service/internal/lease"
	"github.com/md-rashed-zaman/apptbook/services/scheduler-service/internal/reminders"
)

const leaseName = "reminders:run"

// Dispatcher is the part of the reminder workflow the worker drives.
type Dispatcher interface {
	RunFull(ctx context.Context) (reminders.Result, error)
}

type WorkerConfig struct {
	Interval time.Duration
	LeaseTTL time.Duration
	// RunOnStart triggers a run immediately instead of waiting one interval.
	RunOnStart bool
}

// Worker runs the full reminder workflow on a fixed interval.
type Worker struct {
	dispatcher Dispatcher
	locker     lease.Locker
	logger     *slog.Logger
	interval   time.Duration
	leaseTTL   time.Duration
	runOnStart bool
}

func NewWorker(dispatcher Dispatcher, locker lease.Locker, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = cfg.Interval
	}
	if locker == nil {
		locker = lease.Noop{}
	}
	return &Worker{
		dispatcher: dispatcher,
		locker:     locker,
		logger:     logger,
		interval:   cfg.Interval,
		leaseTTL:   cfg.LeaseTTL,
		runOnStart: cfg.RunOnStart,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if w.runOnStart {
		w.tick(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, lease.ErrHeld) {
		w.logger.Error("reminder run failed", "err", err)
	}
}

// RunOnce performs one full run if the lease can be taken. It returns
// lease.ErrHeld when another instance is running. A lease backend that is down
// does not block the run.
func (w *Worker) RunOnce(ctx context.Context) (reminders.Result, error) {
	release, err := w.locker.Acquire(ctx, leaseName, w.leaseTTL)
	switch {
	case errors.Is(err, lease.ErrHeld):
		metrics.ReminderRunsTotal.WithLabelValues("lease_held").Inc()
		w.logger.Debug("reminder run skipped, lease held")
		return reminders.Result{}, err
	case err != nil:
		w.logger.Warn("reminder lease unavailable, running without it", "err", err)
		release = nil
	}
	if release != nil {
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				w.logger.Warn("reminder lease release failed", "err", err)
			}
		}()
	}

	started := time.Now()
	res, err := w.dispatcher.RunFull(ctx)
	if err != nil {
		metrics.ReminderRunsTotal.WithLabelValues("error").Inc()
		return res, err
	}
	metrics.ReminderRunsTotal.WithLabelValues("completed").Inc()
	w.logger.Info("reminder run completed",
		"sent", res.Sent,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return res, nil
}
