package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/apptbook/libs/httpx"
	"github.com/md-rashed-zaman/apptbook/services/scheduler-service/internal/lease"
	"github.com/md-rashed-zaman/apptbook/services/scheduler-service/internal/reminders"
)

// FullRunner runs every window under the scheduler lease.
type FullRunner interface {
	RunOnce(ctx context.Context) (reminders.Result, error)
}

type WindowRunner interface {
	RunWindow(ctx context.Context, kind reminders.Kind) (reminders.WindowResult, error)
}

type ReminderHandler struct {
	full   FullRunner
	window WindowRunner
	logger *slog.Logger
}

func NewReminderHandler(full FullRunner, window WindowRunner, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{full: full, window: window, logger: logger}
}

func (h *ReminderHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/reminders/run", h.Run)
}

// Run triggers a reminder run now. With ?kind=24h or ?kind=2h only that window
// is processed; otherwise a full run is attempted.
func (h *ReminderHandler) Run(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("kind"))
	if raw != "" {
		kind, err := reminders.ParseKind(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_kind", err.Error())
			return
		}
		res, err := h.window.RunWindow(r.Context(), kind)
		if err != nil {
			h.logger.Error("manual reminder window failed", "kind", raw, "err", err)
			httpx.WriteError(w, http.StatusServiceUnavailable, "store_unavailable", "reminder selection failed")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, res)
		return
	}

	res, err := h.full.RunOnce(r.Context())
	switch {
	case errors.Is(err, lease.ErrHeld):
		httpx.WriteError(w, http.StatusConflict, "run_in_progress", "another reminder run is in progress")
		return
	case err != nil:
		h.logger.Error("manual reminder run failed", "err", err)
		// Windows that did run still report their counts.
		httpx.WriteJSON(w, http.StatusMultiStatus, struct {
			reminders.Result
			Error string `json:"error"`
		}{res, err.Error()})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}
