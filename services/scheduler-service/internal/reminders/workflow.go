// Package reminders dispatches the 24h and 2h appointment reminders. A reminder
// timestamp on the appointment is the only record that a kind was sent, so runs
// are safe to repeat or overlap.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/apptbook/libs/metrics"
	"github.com/md-rashed-zaman/apptbook/services/scheduler-service/internal/notify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Appointment is a scheduled appointment due for a reminder, with what the
// templates need to address the client.
type Appointment struct {
	ID          string
	ShopID      string
	ShopName    string
	Timezone    string
	ServiceName string
	StaffName   string
	ClientName  string
	ClientEmail string
	ClientPhone string
	StartTime   time.Time
}

type AttemptStatus string

const (
	AttemptSent    AttemptStatus = "sent"
	AttemptFailed  AttemptStatus = "failed"
	AttemptSkipped AttemptStatus = "skipped"
)

type Attempt struct {
	AppointmentID string
	Kind          Kind
	Channel       notify.Channel
	Recipient     string
	Status        AttemptStatus
	Reason        string
	At            time.Time
}

type Store interface {
	// FindAppointmentsInWindow returns scheduled appointments starting in [from, to)
	// whose timestamp for kind is unset and that have no skipped attempt for kind.
	FindAppointmentsInWindow(ctx context.Context, kind Kind, from, to time.Time) ([]Appointment, error)
	// MarkReminderSent sets the timestamp for kind only if it is still unset and
	// reports whether this call set it. It is only called after a successful send.
	MarkReminderSent(ctx context.Context, appointmentID string, kind Kind, at time.Time) (bool, error)
	RecordAttempt(ctx context.Context, a Attempt) error
}

type WindowResult struct {
	Kind     Kind `json:"kind"`
	Selected int  `json:"selected"`
	Sent     int  `json:"sent"`
	Failed   int  `json:"failed"`
	Skipped  int  `json:"skipped"`
}

type Result struct {
	Windows []WindowResult `json:"windows"`
	Sent    int            `json:"sent"`
	Failed  int            `json:"failed"`
	Skipped int            `json:"skipped"`
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeSkipped
)

type Workflow struct {
	store   Store
	gateway notify.Gateway
	logger  *slog.Logger
	cfg     Config
	limiter *rate.Limiter
	now     func() time.Time
}

func NewWorkflow(store Store, gateway notify.Gateway, logger *slog.Logger, cfg Config, now func() time.Time) (*Workflow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Workflow{
		store:   store,
		gateway: gateway,
		logger:  logger,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Concurrency),
		now:     now,
	}, nil
}

// RunFull runs every window in sequence. A window whose selection fails does not
// stop the others; the errors are joined.
func (w *Workflow) RunFull(ctx context.Context) (Result, error) {
	var (
		res  Result
		errs []error
	)
	for _, k := range Kinds {
		wr, err := w.RunWindow(ctx, k)
		if err != nil {
			errs = append(errs, err)
		}
		res.Windows = append(res.Windows, wr)
		res.Sent += wr.Sent
		res.Failed += wr.Failed
		res.Skipped += wr.Skipped
	}
	return res, errors.Join(errs...)
}

// RunWindow sends kind reminders for every due appointment. Each appointment is
// handled independently: a failed or timed-out send is recorded and left unmarked
// for the next run.
func (w *Workflow) RunWindow(ctx context.Context, kind Kind) (WindowResult, error) {
	ctx, span := otel.Tracer("scheduler-service/reminders").Start(ctx, "reminders.run_window")
	defer span.End()
	span.SetAttributes(attribute.String("kind", string(kind)))

	res := WindowResult{Kind: kind}
	from, to := w.cfg.Bounds(kind, w.now())
	due, err := w.store.FindAppointmentsInWindow(ctx, kind, from, to)
	if err != nil {
		span.SetStatus(codes.Error, "select failed")
		return res, fmt.Errorf("select %s reminders: %w", kind, err)
	}
	res.Selected = len(due)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, appt := range due {
		g.Go(func() error {
			o := w.dispatch(gctx, kind, appt)
			mu.Lock()
			defer mu.Unlock()
			switch o {
			case outcomeSent:
				res.Sent++
			case outcomeFailed:
				res.Failed++
			case outcomeSkipped:
				res.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("selected", res.Selected),
		attribute.Int("sent", res.Sent),
		attribute.Int("failed", res.Failed),
		attribute.Int("skipped", res.Skipped),
	)
	w.logger.Info("reminder window processed",
		"kind", string(kind),
		"from", from.UTC().Format(time.RFC3339),
		"to", to.UTC().Format(time.RFC3339),
		"selected", res.Selected,
		"sent", res.Sent,
		"failed", res.Failed,
		"skipped", res.Skipped,
	)
	return res, nil
}

func (w *Workflow) dispatch(ctx context.Context, kind Kind, appt Appointment) outcome {
	channel, recipient := pickChannel(appt)
	attempt := Attempt{AppointmentID: appt.ID, Kind: kind, Channel: channel, Recipient: recipient}

	if channel == "" {
		// The timestamp stays unset; the skipped attempt keeps it out of later selections.
		attempt.Reason = "no contact details"
		return w.finish(ctx, attempt, AttemptSkipped)
	}

	if err := w.limiter.Wait(ctx); err != nil {
		attempt.Reason = notify.Reason(err)
		return w.finish(ctx, attempt, AttemptFailed)
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	err := w.gateway.Send(sendCtx, notify.Message{
		Channel:    channel,
		Recipient:  recipient,
		TemplateID: templateFor(kind),
		Payload:    templatePayload(appt),
	})
	cancel()
	if err != nil {
		attempt.Reason = notify.Reason(err)
		w.logger.Warn("reminder send failed", "appointment_id", appt.ID, "kind", string(kind), "channel", string(channel), "err", err)
		return w.finish(ctx, attempt, AttemptFailed)
	}

	set, err := w.store.MarkReminderSent(ctx, appt.ID, kind, w.now())
	if err != nil {
		// Sent but not recorded: the next run may send it again.
		attempt.Reason = "mark failed: " + err.Error()
		w.logger.Error("mark reminder sent failed", "appointment_id", appt.ID, "kind", string(kind), "err", err)
		return w.finish(ctx, attempt, AttemptFailed)
	}
	if !set {
		attempt.Reason = "already marked by a concurrent run"
		w.logger.Warn("reminder already marked", "appointment_id", appt.ID, "kind", string(kind))
	}
	return w.finish(ctx, attempt, AttemptSent)
}

func (w *Workflow) finish(ctx context.Context, a Attempt, status AttemptStatus) outcome {
	a.Status = status
	a.At = w.now()
	// The attempt log outlives a cancelled run.
	if err := w.store.RecordAttempt(context.WithoutCancel(ctx), a); err != nil {
		w.logger.Error("record reminder attempt failed", "appointment_id", a.AppointmentID, "kind", string(a.Kind), "err", err)
	}
	metrics.RemindersTotal.WithLabelValues(string(a.Kind), string(status)).Inc()
	switch status {
	case AttemptSent:
		return outcomeSent
	case AttemptSkipped:
		return outcomeSkipped
	}
	return outcomeFailed
}

// pickChannel prefers email, then SMS.
func pickChannel(appt Appointment) (notify.Channel, string) {
	switch {
	case appt.ClientEmail != "":
		return notify.ChannelEmail, appt.ClientEmail
	case appt.ClientPhone != "":
		return notify.ChannelSMS, appt.ClientPhone
	}
	return "", ""
}

func templateFor(kind Kind) string {
	if kind == KindUrgent {
		return notify.TemplateUrgent
	}
	return notify.TemplateConfirmation
}

func templatePayload(appt Appointment) map[string]string {
	loc, err := time.LoadLocation(appt.Timezone)
	if err != nil || appt.Timezone == "" {
		loc = time.UTC
	}
	return map[string]string{
		"appointment_id": appt.ID,
		"client_name":    appt.ClientName,
		"shop_name":      appt.ShopName,
		"service_name":   appt.ServiceName,
		"staff_name":     appt.StaffName,
		"local_start":    appt.StartTime.In(loc).Format("Mon 2 Jan 15:04 MST"),
	}
}
