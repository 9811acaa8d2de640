// Package booking commits appointments. Availability reads may be stale, so every
// booking is re-validated and then inserted through the store's atomic conditional
// insert. The manager never retries a write on its own.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/apptbook/libs/db"
	"github.com/md-rashed-zaman/apptbook/libs/metrics"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// idempotencyNamespace scopes ids derived from Idempotency-Key headers.
var idempotencyNamespace = uuid.MustParse("5d3f4c1e-8a43-4b0e-9d7a-2f1b6c0a9e11")

type Store interface {
	GetService(ctx context.Context, shopID, serviceID string) (model.Service, error)
	GetAppointment(ctx context.Context, shopID, appointmentID string) (model.Appointment, error)
	InsertAppointmentIfFree(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	UpdateStatus(ctx context.Context, shopID, appointmentID string, next model.Status, reason string) (model.Appointment, error)
	ListAppointments(ctx context.Context, shopID string, limit int) ([]model.Appointment, error)
}

type BookRequest struct {
	ShopID          string
	StaffID         string // empty means any available staff member
	ServiceID       string
	Start           time.Time
	DurationMinutes int // zero means the service's duration
	Client          model.Client
	IdempotencyKey  string
}

type Manager struct {
	store       Store
	calc        *availability.Calculator
	logger      *slog.Logger
	maxDuration time.Duration
	now         func() time.Time
}

func NewManager(store Store, calc *availability.Calculator, logger *slog.Logger, maxDuration time.Duration, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	if maxDuration <= 0 {
		maxDuration = 8 * time.Hour
	}
	return &Manager{store: store, calc: calc, logger: logger, maxDuration: maxDuration, now: now}
}

// Book validates req and atomically creates a scheduled appointment.
// It returns *ValidationError, *ConflictError, *TransientError or an unexpected error.
func (m *Manager) Book(ctx context.Context, req BookRequest) (model.Appointment, error) {
	ctx, span := otel.Tracer("booking-service/booking").Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(attribute.String("shop_id", req.ShopID), attribute.Bool("any_staff", req.StaffID == ""))

	appt, replayed, err := m.book(ctx, req)
	outcome := outcomeOf(err)
	if replayed {
		outcome = "replayed"
	}
	metrics.BookingsTotal.WithLabelValues(outcome).Inc()
	if err != nil {
		span.SetStatus(codes.Error, outcome)
		m.logger.Info("booking rejected", "shop_id", req.ShopID, "staff_id", req.StaffID, "outcome", outcome, "err", err)
		return model.Appointment{}, err
	}
	span.SetAttributes(attribute.String("appointment_id", appt.ID), attribute.String("staff_id", appt.StaffID))
	m.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"shop_id", appt.ShopID,
		"staff_id", appt.StaffID,
		"start_time", appt.StartTime.Format(time.RFC3339),
		"replayed", replayed,
	)
	return appt, nil
}

func (m *Manager) book(ctx context.Context, req BookRequest) (model.Appointment, bool, error) {
	req.ShopID = strings.TrimSpace(req.ShopID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.Client.Name = strings.TrimSpace(req.Client.Name)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	switch {
	case req.ShopID == "":
		return model.Appointment{}, false, invalid("shop_id", "is required")
	case req.ServiceID == "":
		return model.Appointment{}, false, invalid("service_id", "is required")
	case req.Client.Name == "":
		return model.Appointment{}, false, invalid("client_name", "is required")
	case req.Start.IsZero():
		return model.Appointment{}, false, invalid("start", "is required")
	case req.DurationMinutes < 0:
		return model.Appointment{}, false, invalid("duration_minutes", "must be positive")
	}

	id := uuid.NewString()
	if req.IdempotencyKey != "" {
		id = uuid.NewSHA1(idempotencyNamespace, []byte(req.ShopID+":"+req.IdempotencyKey)).String()
		existing, err := m.store.GetAppointment(ctx, req.ShopID, id)
		if err == nil {
			return existing, true, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return model.Appointment{}, false, m.storeError("lookup idempotent booking", err)
		}
	}

	svc, err := m.store.GetService(ctx, req.ShopID, req.ServiceID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Appointment{}, false, invalid("service_id", "unknown service for shop")
	}
	if err != nil {
		return model.Appointment{}, false, m.storeError("get service", err)
	}
	if !svc.Active {
		return model.Appointment{}, false, invalid("service_id", "service is not active")
	}

	minutes := req.DurationMinutes
	if minutes == 0 {
		minutes = svc.DurationMinutes
	}
	duration := time.Duration(minutes) * time.Minute
	if duration <= 0 {
		return model.Appointment{}, false, invalid("duration_minutes", "must be positive")
	}
	if duration > m.maxDuration {
		return model.Appointment{}, false, invalid("duration_minutes", fmt.Sprintf("must not exceed %s", m.maxDuration))
	}

	policy, err := m.calc.Policies().Resolve(ctx, req.ShopID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Appointment{}, false, invalid("shop_id", "unknown shop")
	}
	if err != nil {
		return model.Appointment{}, false, m.storeError("resolve shop policy", err)
	}

	iv := interval.New(req.Start.UTC(), duration)
	if iv.Start.Before(m.now().Add(policy.MinLead)) {
		return model.Appointment{}, false, invalid("start", fmt.Sprintf("must be at least %s from now", policy.MinLead))
	}

	staffID, err := m.pickStaff(ctx, policy, req.StaffID, iv)
	if err != nil {
		return model.Appointment{}, false, err
	}

	created, err := m.store.InsertAppointmentIfFree(ctx, model.Appointment{
		ID:              id,
		ShopID:          req.ShopID,
		StaffID:         staffID,
		ServiceID:       svc.ID,
		Client:          req.Client,
		StartTime:       iv.Start,
		EndTime:         iv.End,
		DurationMinutes: minutes,
		Status:          model.StatusScheduled,
	})
	switch {
	case err == nil:
		return created, false, nil
	case errors.Is(err, storage.ErrAlreadyExists), errors.Is(err, storage.ErrConflict) && req.IdempotencyKey != "":
		// A concurrent request with the same key may have won the insert.
		if existing, getErr := m.store.GetAppointment(ctx, req.ShopID, id); getErr == nil {
			return existing, true, nil
		}
		if errors.Is(err, storage.ErrAlreadyExists) {
			return model.Appointment{}, false, invalid("idempotency_key", "already used")
		}
		return model.Appointment{}, false, &ConflictError{StaffID: staffID, Start: iv.Start, End: iv.End}
	case errors.Is(err, storage.ErrConflict):
		return model.Appointment{}, false, &ConflictError{StaffID: staffID, Start: iv.Start, End: iv.End}
	default:
		return model.Appointment{}, false, m.storeError("insert appointment", err)
	}
}

// pickStaff returns the requested staff member, or the first active staff member by
// id whose hours cover iv and who is free for all of it.
func (m *Manager) pickStaff(ctx context.Context, policy availability.Policy, staffID string, iv interval.Interval) (string, error) {
	candidates, err := m.calc.Candidates(ctx, policy.ShopID, staffID)
	if errors.Is(err, availability.ErrStaffNotFound) {
		return "", invalid("staff_id", "unknown or inactive staff member")
	}
	if err != nil {
		return "", m.storeError("list staff", err)
	}

	anyInHours := false
	for _, staff := range candidates {
		inHours, free, err := m.calc.Fits(ctx, policy, staff.ID, iv)
		if err != nil {
			return "", m.storeError("check availability", err)
		}
		anyInHours = anyInHours || inHours
		if inHours && free {
			return staff.ID, nil
		}
	}
	if !anyInHours {
		return "", invalid("start", "outside business hours")
	}
	return "", &ConflictError{StaffID: staffID, Start: iv.Start, End: iv.End}
}

// Transition moves a scheduled appointment to completed, cancelled or no_show.
// Cancelling releases the interval for new bookings.
func (m *Manager) Transition(ctx context.Context, shopID, appointmentID string, next model.Status, reason string) (model.Appointment, error) {
	if strings.TrimSpace(shopID) == "" || strings.TrimSpace(appointmentID) == "" {
		return model.Appointment{}, invalid("appointment_id", "shop_id and appointment_id are required")
	}
	if !model.StatusScheduled.CanTransition(next) {
		return model.Appointment{}, invalid("status", fmt.Sprintf("cannot transition to %q", next))
	}

	appt, err := m.store.UpdateStatus(ctx, shopID, appointmentID, next, strings.TrimSpace(reason))
	switch {
	case err == nil:
		m.logger.Info("appointment status changed", "appointment_id", appt.ID, "shop_id", appt.ShopID, "status", string(appt.Status))
		return appt, nil
	case errors.Is(err, storage.ErrNotFound):
		return model.Appointment{}, err
	case errors.Is(err, storage.ErrStatusFinal):
		return model.Appointment{}, invalid("status", "appointment is no longer scheduled")
	default:
		return model.Appointment{}, m.storeError("update status", err)
	}
}

func (m *Manager) List(ctx context.Context, shopID string, limit int) ([]model.Appointment, error) {
	if strings.TrimSpace(shopID) == "" {
		return nil, invalid("shop_id", "is required")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	appts, err := m.store.ListAppointments(ctx, shopID, limit)
	if err != nil {
		return nil, m.storeError("list appointments", err)
	}
	return appts, nil
}

func (m *Manager) storeError(op string, err error) error {
	if db.IsTransient(err) {
		return &TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func outcomeOf(err error) string {
	var (
		verr *ValidationError
		cerr *ConflictError
		terr *TransientError
	)
	switch {
	case err == nil:
		return "created"
	case errors.As(err, &verr):
		return "invalid"
	case errors.As(err, &cerr):
		return "conflict"
	case errors.As(err, &terr):
		return "transient"
	}
	return "error"
}
