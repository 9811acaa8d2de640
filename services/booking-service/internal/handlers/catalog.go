package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/apptbook/libs/httpx"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/storage"
)

type Catalog interface {
	CreateShop(ctx context.Context, shop model.Shop) (model.Shop, error)
	UpdateShop(ctx context.Context, shop model.Shop) error
	CreateService(ctx context.Context, svc model.Service) (model.Service, error)
	ListServices(ctx context.Context, shopID string) ([]model.Service, error)
	CreateStaff(ctx context.Context, staff model.Staff) (model.Staff, error)
	ListStaff(ctx context.Context, shopID string) ([]model.Staff, error)
	SetStaffActive(ctx context.Context, shopID, staffID string, active bool) error
	ReplaceBusinessHours(ctx context.Context, shopID string, hours model.BusinessHours) error
	ListBusinessHours(ctx context.Context, shopID, staffID string) ([]model.BusinessHours, error)
	CreateTimeOff(ctx context.Context, shopID string, off model.TimeOff) (model.TimeOff, error)
	DeleteTimeOff(ctx context.Context, shopID, timeOffID string) error
}

// PolicyCache drops cached shop settings after the shop row changes.
type PolicyCache interface {
	Invalidate(shopID string)
}

// CatalogHandler manages the data availability is computed from.
type CatalogHandler struct {
	catalog  Catalog
	policies PolicyCache
	logger   *slog.Logger
	validate *validator.Validate
}

func NewCatalogHandler(catalog Catalog, policies PolicyCache, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog:  catalog,
		policies: policies,
		logger:   logger,
		validate: newValidator(),
	}
}

func (h *CatalogHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/shops", h.Shops)
	mux.HandleFunc("/api/v1/services", h.Services)
	mux.HandleFunc("/api/v1/staff", h.Staff)
	mux.HandleFunc("/api/v1/staff/active", h.StaffActive)
	mux.HandleFunc("/api/v1/business-hours", h.BusinessHours)
	mux.HandleFunc("/api/v1/time-off", h.TimeOff)
}

type shopRequest struct {
	ShopID                 string `json:"shop_id"`
	Name                   string `json:"name" validate:"required,max=200"`
	Timezone               string `json:"timezone" validate:"required,timezone"`
	SlotGranularityMinutes *int   `json:"slot_granularity_minutes" validate:"omitempty,min=1,max=1440"`
	MinLeadMinutes         *int   `json:"min_lead_minutes" validate:"omitempty,min=0,max=525600"`
}

type serviceRequest struct {
	ShopID          string `json:"shop_id" validate:"required"`
	Name            string `json:"name" validate:"required,max=200"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,min=1,max=1440"`
}

type staffRequest struct {
	ShopID string `json:"shop_id" validate:"required"`
	Name   string `json:"name" validate:"required,max=200"`
}

type staffActiveRequest struct {
	ShopID  string `json:"shop_id" validate:"required"`
	StaffID string `json:"staff_id" validate:"required"`
	Active  *bool  `json:"active" validate:"required"`
}

type openIntervalItem struct {
	StartMinute int `json:"start_minute" validate:"min=0,max=1439"`
	EndMinute   int `json:"end_minute" validate:"min=1,max=1440,gtfield=StartMinute"`
}

type businessHoursRequest struct {
	ShopID    string             `json:"shop_id" validate:"required"`
	StaffID   string             `json:"staff_id"`
	Weekday   *int               `json:"weekday" validate:"required,min=0,max=6"`
	Intervals []openIntervalItem `json:"intervals" validate:"dive"`
}

type businessHoursItem struct {
	StaffID   string             `json:"staff_id,omitempty"`
	Weekday   int                `json:"weekday"`
	Intervals []openIntervalItem `json:"intervals"`
}

type timeOffRequest struct {
	ShopID    string `json:"shop_id" validate:"required"`
	StaffID   string `json:"staff_id" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Reason    string `json:"reason" validate:"max=500"`
}

type serviceItem struct {
	ID              string `json:"service_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Active          bool   `json:"active"`
}

type staffItem struct {
	ID     string `json:"staff_id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type timeOffItem struct {
	ID        string `json:"id"`
	StaffID   string `json:"staff_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason,omitempty"`
}

func (h *CatalogHandler) Shops(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req shopRequest
	if !h.decode(w, r, &req) {
		return
	}
	shop := model.Shop{
		ID:              strings.TrimSpace(req.ShopID),
		Name:            strings.TrimSpace(req.Name),
		Timezone:        req.Timezone,
		SlotGranularity: minutes(req.SlotGranularityMinutes),
		MinLead:         minutes(req.MinLeadMinutes),
	}

	if r.Method == http.MethodPost {
		created, err := h.catalog.CreateShop(r.Context(), shop)
		if err != nil {
			h.writeError(w, r, "create shop failed", err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]string{"shop_id": created.ID})
		return
	}

	if shop.ID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "shop_id required")
		return
	}
	if err := h.catalog.UpdateShop(r.Context(), shop); err != nil {
		h.writeError(w, r, "update shop failed", err)
		return
	}
	h.policies.Invalidate(shop.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) Services(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		shopID, ok := requiredQuery(w, r, "shop_id")
		if !ok {
			return
		}
		services, err := h.catalog.ListServices(r.Context(), shopID)
		if err != nil {
			h.writeError(w, r, "list services failed", err)
			return
		}
		items := make([]serviceItem, 0, len(services))
		for _, s := range services {
			items = append(items, serviceItem{ID: s.ID, Name: s.Name, DurationMinutes: s.DurationMinutes, Active: s.Active})
		}
		httpx.WriteJSON(w, http.StatusOK, items)
	case http.MethodPost:
		var req serviceRequest
		if !h.decode(w, r, &req) {
			return
		}
		svc, err := h.catalog.CreateService(r.Context(), model.Service{
			ShopID:          req.ShopID,
			Name:            strings.TrimSpace(req.Name),
			DurationMinutes: req.DurationMinutes,
		})
		if err != nil {
			h.writeError(w, r, "create service failed", err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]string{"service_id": svc.ID})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CatalogHandler) Staff(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		shopID, ok := requiredQuery(w, r, "shop_id")
		if !ok {
			return
		}
		staff, err := h.catalog.ListStaff(r.Context(), shopID)
		if err != nil {
			h.writeError(w, r, "list staff failed", err)
			return
		}
		items := make([]staffItem, 0, len(staff))
		for _, s := range staff {
			items = append(items, staffItem{ID: s.ID, Name: s.Name, Active: s.Active})
		}
		httpx.WriteJSON(w, http.StatusOK, items)
	case http.MethodPost:
		var req staffRequest
		if !h.decode(w, r, &req) {
			return
		}
		staff, err := h.catalog.CreateStaff(r.Context(), model.Staff{ShopID: req.ShopID, Name: strings.TrimSpace(req.Name)})
		if err != nil {
			h.writeError(w, r, "create staff failed", err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]string{"staff_id": staff.ID})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CatalogHandler) StaffActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req staffActiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.catalog.SetStaffActive(r.Context(), req.ShopID, req.StaffID, *req.Active); err != nil {
		h.writeError(w, r, "update staff failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) BusinessHours(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		shopID, ok := requiredQuery(w, r, "shop_id")
		if !ok {
			return
		}
		staffID := strings.TrimSpace(r.URL.Query().Get("staff_id"))
		days, err := h.catalog.ListBusinessHours(r.Context(), shopID, staffID)
		if err != nil {
			h.writeError(w, r, "list business hours failed", err)
			return
		}
		items := make([]businessHoursItem, 0, len(days))
		for _, d := range days {
			item := businessHoursItem{StaffID: d.StaffID, Weekday: int(d.Weekday)}
			for _, iv := range d.Intervals {
				item.Intervals = append(item.Intervals, openIntervalItem{StartMinute: iv.StartMinute, EndMinute: iv.EndMinute})
			}
			items = append(items, item)
		}
		httpx.WriteJSON(w, http.StatusOK, items)
	case http.MethodPut:
		var req businessHoursRequest
		if !h.decode(w, r, &req) {
			return
		}
		hours := model.BusinessHours{StaffID: strings.TrimSpace(req.StaffID), Weekday: time.Weekday(*req.Weekday)}
		for _, iv := range req.Intervals {
			hours.Intervals = append(hours.Intervals, model.OpenInterval{StartMinute: iv.StartMinute, EndMinute: iv.EndMinute})
		}
		if err := checkDisjoint(hours.Intervals); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if err := h.catalog.ReplaceBusinessHours(r.Context(), req.ShopID, hours); err != nil {
			h.writeError(w, r, "replace business hours failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CatalogHandler) TimeOff(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req timeOffRequest
		if !h.decode(w, r, &req) {
			return
		}
		start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid start_time")
			return
		}
		end, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndTime))
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid end_time")
			return
		}
		if !end.After(start) {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "end_time must be after start_time")
			return
		}
		off, err := h.catalog.CreateTimeOff(r.Context(), req.ShopID, model.TimeOff{
			StaffID: req.StaffID,
			Start:   start,
			End:     end,
			Reason:  strings.TrimSpace(req.Reason),
		})
		if err != nil {
			h.writeError(w, r, "create time off failed", err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, timeOffItem{
			ID:        off.ID,
			StaffID:   off.StaffID,
			StartTime: off.Start.UTC().Format(time.RFC3339),
			EndTime:   off.End.UTC().Format(time.RFC3339),
			Reason:    off.Reason,
		})
	case http.MethodDelete:
		shopID, ok := requiredQuery(w, r, "shop_id")
		if !ok {
			return
		}
		id, ok := requiredQuery(w, r, "id")
		if !ok {
			return
		}
		if err := h.catalog.DeleteTimeOff(r.Context(), shopID, id); err != nil {
			h.writeError(w, r, "delete time off failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CatalogHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", formatValidation(err))
		return false
	}
	return true
}

func (h *CatalogHandler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "shop, staff or record not found")
	case errors.Is(err, storage.ErrAlreadyExists):
		httpx.WriteError(w, http.StatusConflict, "already_exists", "record already exists")
	default:
		h.logger.Error(msg, "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func requiredQuery(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", key+" required")
		return "", false
	}
	return v, true
}

// checkDisjoint rejects overlapping opening intervals within one day.
func checkDisjoint(ivs []model.OpenInterval) error {
	sorted := append([]model.OpenInterval(nil), ivs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartMinute < sorted[j].StartMinute })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].StartMinute < sorted[i-1].EndMinute {
			return errors.New("intervals overlap")
		}
	}
	return nil
}

func minutes(m *int) *time.Duration {
	if m == nil {
		return nil
	}
	d := time.Duration(*m) * time.Minute
	return &d
}
