package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/apptbook/libs/httpx"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/storage"
)

type SlotFinder interface {
	Slots(ctx context.Context, q availability.Query) ([]model.TimeSlot, error)
}

type Booker interface {
	Book(ctx context.Context, req booking.BookRequest) (model.Appointment, error)
	Transition(ctx context.Context, shopID, appointmentID string, next model.Status, reason string) (model.Appointment, error)
	List(ctx context.Context, shopID string, limit int) ([]model.Appointment, error)
}

type BookingHandler struct {
	slots    SlotFinder
	bookings Booker
	logger   *slog.Logger
	validate *validator.Validate
}

func NewBookingHandler(slots SlotFinder, bookings Booker, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		slots:    slots,
		bookings: bookings,
		logger:   logger,
		validate: newValidator(),
	}
}

// newValidator reports field errors under their json names.
func newValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return validate
}

func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/availability", h.Availability)
	mux.HandleFunc("/api/v1/bookings", h.Create)
	mux.HandleFunc("/api/v1/appointments", h.List)
	mux.HandleFunc("/api/v1/appointments/status", h.UpdateStatus)
}

type availabilityQuery struct {
	ShopID          string `json:"shop_id" validate:"required"`
	StaffID         string `json:"staff_id"`
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,min=1,max=1440"`
}

type slotItem struct {
	StartTime string `json:"start"`
	EndTime   string `json:"end"`
	StaffID   string `json:"staff_id"`
}

type createBookingRequest struct {
	ShopID          string `json:"shop_id" validate:"required"`
	StaffID         string `json:"staff_id"`
	ServiceID       string `json:"service_id" validate:"required"`
	StartTime       string `json:"start_time" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"min=0,max=1440"`
	ClientName      string `json:"client_name" validate:"required,max=200"`
	ClientEmail     string `json:"client_email" validate:"omitempty,email"`
	ClientPhone     string `json:"client_phone" validate:"omitempty,e164"`
}

type appointmentItem struct {
	AppointmentID      string `json:"appointment_id"`
	ShopID             string `json:"shop_id"`
	StaffID            string `json:"staff_id"`
	ServiceID          string `json:"service_id"`
	StartTime          string `json:"start_time"`
	EndTime            string `json:"end_time"`
	DurationMinutes    int    `json:"duration_minutes"`
	Status             string `json:"status"`
	StatusReason       string `json:"status_reason,omitempty"`
	ConfirmationSentAt string `json:"confirmation_sent_at,omitempty"`
	ReminderSentAt     string `json:"reminder_sent_at,omitempty"`
	CreatedAt          string `json:"created_at,omitempty"`
}

type updateStatusRequest struct {
	ShopID        string `json:"shop_id" validate:"required"`
	AppointmentID string `json:"appointment_id" validate:"required"`
	Status        string `json:"status" validate:"required,oneof=completed cancelled no_show"`
	Reason        string `json:"reason" validate:"max=500"`
}

func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	query := availabilityQuery{
		ShopID:  strings.TrimSpace(q.Get("shop_id")),
		StaffID: strings.TrimSpace(q.Get("staff_id")),
		Date:    strings.TrimSpace(q.Get("date")),
	}
	if raw := strings.TrimSpace(q.Get("duration_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid duration_minutes")
			return
		}
		query.DurationMinutes = n
	}
	if err := h.validate.Struct(query); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", formatValidation(err))
		return
	}
	date, err := interval.ParseDate(query.Date)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid date")
		return
	}

	slots, err := h.slots.Slots(r.Context(), availability.Query{
		ShopID:   query.ShopID,
		StaffID:  query.StaffID,
		Date:     date,
		Duration: time.Duration(query.DurationMinutes) * time.Minute,
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpx.WriteError(w, http.StatusNotFound, "not_found", "shop not found")
		case errors.Is(err, availability.ErrStaffNotFound):
			httpx.WriteError(w, http.StatusNotFound, "not_found", "staff not found")
		default:
			h.writeFailure(w, r, "availability failed", err)
		}
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
			StaffID:   s.StaffID,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	req.ClientEmail = strings.TrimSpace(req.ClientEmail)
	req.ClientPhone = strings.TrimSpace(req.ClientPhone)
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", formatValidation(err))
		return
	}
	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid start_time")
		return
	}

	appt, err := h.bookings.Book(r.Context(), booking.BookRequest{
		ShopID:          req.ShopID,
		StaffID:         req.StaffID,
		ServiceID:       req.ServiceID,
		Start:           startTime,
		DurationMinutes: req.DurationMinutes,
		Client: model.Client{
			Name:  req.ClientName,
			Email: req.ClientEmail,
			Phone: req.ClientPhone,
		},
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toItem(appt))
}

func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", formatValidation(err))
		return
	}

	appt, err := h.bookings.Transition(r.Context(), req.ShopID, req.AppointmentID, model.Status(req.Status), req.Reason)
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toItem(appt))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	if shopID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "shop_id required")
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	appts, err := h.bookings.List(r.Context(), shopID, limit)
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toItem(appt))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) writeBookingError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *booking.ValidationError
		cerr *booking.ConflictError
		terr *booking.TransientError
	)
	switch {
	case errors.As(err, &verr):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "validation_failed", verr.Error())
	case errors.As(err, &cerr):
		httpx.WriteError(w, http.StatusConflict, "slot_unavailable", "time slot is no longer available; refresh availability")
	case errors.As(err, &terr):
		w.Header().Set("Retry-After", "1")
		httpx.WriteError(w, http.StatusServiceUnavailable, "store_unavailable", "temporarily unavailable, retry later")
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "appointment not found")
	default:
		h.writeFailure(w, r, "booking request failed", err)
	}
}

func (h *BookingHandler) writeFailure(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
	httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
}

func toItem(appt model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID:   appt.ID,
		ShopID:          appt.ShopID,
		StaffID:         appt.StaffID,
		ServiceID:       appt.ServiceID,
		StartTime:       appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:         appt.EndTime.UTC().Format(time.RFC3339),
		DurationMinutes: appt.DurationMinutes,
		Status:          string(appt.Status),
		StatusReason:    appt.StatusReason,
	}
	if appt.ConfirmationSentAt != nil {
		item.ConfirmationSentAt = appt.ConfirmationSentAt.UTC().Format(time.RFC3339)
	}
	if appt.ReminderSentAt != nil {
		item.ReminderSentAt = appt.ReminderSentAt.UTC().Format(time.RFC3339)
	}
	if !appt.CreatedAt.IsZero() {
		item.CreatedAt = appt.CreatedAt.UTC().Format(time.RFC3339)
	}
	return item
}

func formatValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Field()+" failed "+fe.Tag())
	}
	return strings.Join(msgs, ", ")
}
