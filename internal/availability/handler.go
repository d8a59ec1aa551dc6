package availability

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/runcall/platform/internal/google"
	"github.com/runcall/platform/pkg/logging"
)

// Handler serves the public slot listing endpoint.
type Handler struct {
	svc        *Service
	windowDays int
	logger     *logging.Logger
	now        func() time.Time
}

// NewHandler creates the slots handler. windowDays caps how far ahead a
// query may look.
func NewHandler(svc *Service, windowDays int, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if windowDays <= 0 {
		windowDays = 14
	}
	return &Handler{svc: svc, windowDays: windowDays, logger: logger, now: time.Now}
}

// WithClock overrides the handler clock (for tests).
func (h *Handler) WithClock(now func() time.Time) *Handler {
	if now != nil {
		h.now = now
	}
	return h
}

// SlotsResponse is the payload for GET /experts/{expertID}/slots.
type SlotsResponse struct {
	ExpertID string    `json:"expert_id"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Slots    []Slot    `json:"slots"`
}

// GetSlots handles GET /experts/{expertID}/slots?from=...&to=...
// Both bounds are optional; they default to [now, now+window] and are
// clamped to the configured window.
func (h *Handler) GetSlots(w http.ResponseWriter, r *http.Request) {
	expertID, err := uuid.Parse(chi.URLParam(r, "expertID"))
	if err != nil {
		http.Error(w, "invalid expert id", http.StatusBadRequest)
		return
	}

	now := h.now()
	from := now
	to := now.AddDate(0, 0, h.windowDays)

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "from must be RFC 3339", http.StatusBadRequest)
			return
		}
		if parsed.After(from) {
			from = parsed
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "to must be RFC 3339", http.StatusBadRequest)
			return
		}
		if parsed.Before(to) {
			to = parsed
		}
	}
	if !from.Before(to) {
		http.Error(w, "empty query window", http.StatusBadRequest)
		return
	}

	slots, err := h.svc.Slots(r.Context(), expertID, from, to)
	if err != nil {
		switch {
		case errors.Is(err, google.ErrAccountNotFound):
			http.Error(w, "expert has no connected calendar", http.StatusNotFound)
		case errors.Is(err, google.ErrReconnectRequired):
			h.logger.Warn("slot query needs calendar reconnect", "expert_id", expertID)
			http.Error(w, "calendar connection needs to be renewed", http.StatusConflict)
		default:
			h.logger.Error("slot query failed", "error", err, "expert_id", expertID)
			http.Error(w, "server error", http.StatusInternalServerError)
		}
		return
	}

	if slots == nil {
		slots = []Slot{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SlotsResponse{
		ExpertID: expertID.String(),
		From:     from,
		To:       to,
		Slots:    slots,
	})
}
