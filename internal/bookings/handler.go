package bookings

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/runcall/platform/internal/experts"
	"github.com/runcall/platform/pkg/logging"
)

// Handler handles HTTP requests for the booking lifecycle.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandler creates a new bookings handler.
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// CreateHoldRequest is the body for POST /bookings.
type CreateHoldRequest struct {
	ExpertID    string `json:"expert_id"`
	SlotStart   string `json:"slot_start"`
	SlotEnd     string `json:"slot_end"`
	Timezone    string `json:"timezone"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	ClientNote  string `json:"client_note"`
}

// BookingResponse is the public shape of a booking.
type BookingResponse struct {
	ID            string     `json:"id"`
	ExpertID      string     `json:"expert_id"`
	SlotStart     time.Time  `json:"slot_start"`
	SlotEnd       time.Time  `json:"slot_end"`
	Timezone      string     `json:"timezone,omitempty"`
	Status        string     `json:"status"`
	HoldExpiresAt time.Time  `json:"hold_expires_at"`
	MeetLink      string     `json:"meet_link,omitempty"`
	AmountCents   int64      `json:"amount_cents,omitempty"`
	Currency      string     `json:"currency,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
}

func toResponse(b *Booking) BookingResponse {
	return BookingResponse{
		ID:            b.ID.String(),
		ExpertID:      b.ExpertID.String(),
		SlotStart:     b.SlotStart,
		SlotEnd:       b.SlotEnd,
		Timezone:      b.Timezone,
		Status:        string(b.Status),
		HoldExpiresAt: b.HoldExpiresAt,
		MeetLink:      b.MeetLink,
		AmountCents:   b.AmountCents,
		Currency:      b.Currency,
		ConfirmedAt:   b.ConfirmedAt,
	}
}

// CreateHold handles POST /bookings.
func (h *Handler) CreateHold(w http.ResponseWriter, r *http.Request) {
	var req CreateHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	expertID, err := uuid.Parse(req.ExpertID)
	if err != nil {
		http.Error(w, "invalid expert_id", http.StatusBadRequest)
		return
	}
	slotStart, err := time.Parse(time.RFC3339, req.SlotStart)
	if err != nil {
		http.Error(w, "slot_start must be RFC 3339", http.StatusBadRequest)
		return
	}
	slotEnd, err := time.Parse(time.RFC3339, req.SlotEnd)
	if err != nil {
		http.Error(w, "slot_end must be RFC 3339", http.StatusBadRequest)
		return
	}

	b, err := h.svc.CreateHold(r.Context(), CreateHoldInput{
		ExpertID:    expertID,
		SlotStart:   slotStart,
		SlotEnd:     slotEnd,
		Timezone:    req.Timezone,
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		ClientNote:  req.ClientNote,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(b))
}

// CheckoutRequest is the body for POST /bookings/{bookingID}/checkout.
type CheckoutRequest struct {
	Tier int `json:"tier"`
}

// CheckoutResponse returns the Stripe session to redirect the client to.
type CheckoutResponse struct {
	SessionID   string `json:"session_id"`
	URL         string `json:"url"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// CreateCheckout handles POST /bookings/{bookingID}/checkout.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := h.bookingID(w, r)
	if !ok {
		return
	}

	var req CheckoutRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	result, err := h.svc.CreateCheckout(r.Context(), bookingID, req.Tier)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CheckoutResponse{
		SessionID:   result.SessionID,
		URL:         result.URL,
		AmountCents: result.AmountCents,
		Currency:    result.Currency,
	})
}

// GetBooking handles GET /bookings/{bookingID}.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := h.bookingID(w, r)
	if !ok {
		return
	}

	b, err := h.svc.GetBooking(r.Context(), bookingID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(b))
}

// CancelBooking handles POST /bookings/{bookingID}/cancel.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := h.bookingID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Cancel(r.Context(), bookingID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ConfirmRequest is the body for the admin manual-confirm endpoint.
type ConfirmRequest struct {
	PaymentRef string `json:"payment_ref"`
}

// AdminConfirm handles POST /admin/bookings/{bookingID}/confirm. It
// runs the same confirmation procedure the webhook does, for operators
// reconciling a payment by hand.
func (h *Handler) AdminConfirm(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := h.bookingID(w, r)
	if !ok {
		return
	}

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PaymentRef == "" {
		http.Error(w, "payment_ref is required", http.StatusBadRequest)
		return
	}

	result, err := h.svc.Confirm(r.Context(), bookingID, req.PaymentRef, "")
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusOK
	if !result.Noop {
		h.logger.Info("booking confirmed manually", "booking_id", bookingID)
	}
	writeJSON(w, status, toResponse(result.Booking))
}

// ExpireResponse reports the sweep result.
type ExpireResponse struct {
	Expired int64 `json:"expired"`
}

// AdminExpire handles POST /admin/bookings/expire.
func (h *Handler) AdminExpire(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.ExpireStale(r.Context())
	if err != nil {
		h.logger.Error("expire sweep failed", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ExpireResponse{Expired: n})
}

func (h *Handler) bookingID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		http.Error(w, "invalid booking id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps domain errors onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		http.Error(w, vErr.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound), errors.Is(err, experts.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrHoldExpired):
		http.Error(w, "hold expired", http.StatusConflict)
	case errors.Is(err, ErrInvalidStatus):
		http.Error(w, "booking status does not allow this operation", http.StatusConflict)
	case IsRetriable(err):
		h.logger.Error("transient booking failure", "error", err)
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.Error("booking request failed", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
