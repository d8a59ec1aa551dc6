package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/runcall/platform/internal/observability/metrics"
	"github.com/runcall/platform/pkg/logging"
)

// processedTracker provides exactly-once bookkeeping for webhook events.
type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// BookingConfirmer drives the booking confirmation procedure for a paid
// checkout session. Implementations signal a retriable failure by
// returning an error whose chain exposes Retriable() bool.
type BookingConfirmer interface {
	Confirm(ctx context.Context, bookingID uuid.UUID, paymentIntentID, sessionID string) error
}

// ConfirmerFunc adapts a function to BookingConfirmer.
type ConfirmerFunc func(ctx context.Context, bookingID uuid.UUID, paymentIntentID, sessionID string) error

func (f ConfirmerFunc) Confirm(ctx context.Context, bookingID uuid.UUID, paymentIntentID, sessionID string) error {
	return f(ctx, bookingID, paymentIntentID, sessionID)
}

// StripeWebhookHandler handles Stripe webhook events for checkout
// session completion.
type StripeWebhookHandler struct {
	webhookSecret string
	processed     processedTracker
	confirmer     BookingConfirmer
	metrics       *metrics.BookingMetrics
	logger        *logging.Logger
	now           func() time.Time
}

// NewStripeWebhookHandler creates a new handler for Stripe webhooks.
func NewStripeWebhookHandler(
	webhookSecret string,
	processed processedTracker,
	confirmer BookingConfirmer,
	m *metrics.BookingMetrics,
	logger *logging.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeWebhookHandler{
		webhookSecret: webhookSecret,
		processed:     processed,
		confirmer:     confirmer,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// WithClock overrides the handler's clock (for signature tolerance tests).
func (h *StripeWebhookHandler) WithClock(now func() time.Time) *StripeWebhookHandler {
	if now != nil {
		h.now = now
	}
	return h
}

// Handle processes incoming Stripe webhook events. A non-2xx response
// asks Stripe to redeliver; permanent failures are acknowledged so the
// same broken event does not retry forever.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	started := h.now()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if !verifyStripeSignature(h.webhookSecret, payload, sigHeader, h.now()) {
		h.metrics.ObserveWebhook("unknown", "bad_signature")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var evt stripeWebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode stripe event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if evt.ID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}

	// Only checkout.session.completed drives confirmation.
	if evt.Type != "checkout.session.completed" {
		h.metrics.ObserveWebhook(evt.Type, "ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	if done, err := h.processed.AlreadyProcessed(r.Context(), "stripe", evt.ID); err != nil {
		h.logger.Error("processed lookup failed", "error", err, "event_id", evt.ID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	} else if done {
		h.metrics.ObserveWebhook(evt.Type, "duplicate")
		w.WriteHeader(http.StatusOK)
		return
	}

	session := evt.Data.Object
	bookingIDStr := session.Metadata["booking_id"]
	if bookingIDStr == "" {
		h.logger.Warn("stripe webhook missing booking_id metadata", "event_id", evt.ID, "session_id", session.ID)
		h.metrics.ObserveWebhook(evt.Type, "missing_metadata")
		// Acknowledge: redelivery cannot supply the missing metadata.
		w.WriteHeader(http.StatusOK)
		return
	}
	bookingID, err := uuid.Parse(bookingIDStr)
	if err != nil {
		h.logger.Warn("stripe webhook invalid booking_id metadata", "event_id", evt.ID, "booking_id", bookingIDStr)
		h.metrics.ObserveWebhook(evt.Type, "missing_metadata")
		w.WriteHeader(http.StatusOK)
		return
	}

	paymentRef := session.PaymentIntent
	if paymentRef == "" {
		paymentRef = session.ID
	}

	err = h.confirmer.Confirm(r.Context(), bookingID, paymentRef, session.ID)
	switch {
	case err == nil:
		if _, err := h.processed.MarkProcessed(r.Context(), "stripe", evt.ID); err != nil {
			h.logger.Error("failed to record processed event", "error", err, "event_id", evt.ID)
		}
		h.metrics.ObserveWebhook(evt.Type, "ok")
		h.metrics.ObserveWebhookLatency(evt.Type, h.now().Sub(started).Seconds())
		w.WriteHeader(http.StatusOK)
	case isRetriable(err):
		h.logger.Warn("booking confirmation failed, requesting redelivery",
			"error", err, "event_id", evt.ID, "booking_id", bookingID)
		h.metrics.ObserveWebhook(evt.Type, "retriable_error")
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
	default:
		// Permanent: the payment is real but the booking cannot be
		// confirmed (unknown, expired, canceled). Ack so Stripe stops
		// retrying; the ledger keeps the event for manual follow-up.
		h.logger.Error("booking confirmation permanently rejected",
			"error", err, "event_id", evt.ID, "booking_id", bookingID)
		h.metrics.ObserveWebhook(evt.Type, "rejected")
		w.WriteHeader(http.StatusOK)
	}
}

func isRetriable(err error) bool {
	var r interface{ Retriable() bool }
	return errors.As(err, &r) && r.Retriable()
}

// stripeWebhookEvent represents a Stripe webhook event envelope.
type stripeWebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object stripeSessionObject `json:"object"`
	} `json:"data"`
}

// stripeSessionObject is the checkout.session object from the webhook.
type stripeSessionObject struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
	Status        string            `json:"status"`
}

// verifyStripeSignature verifies a Stripe webhook signature.
// Stripe signs with HMAC-SHA256 and sends the signature in the
// Stripe-Signature header as: t=<timestamp>,v1=<signature>[,v0=<sig>]
func verifyStripeSignature(secret string, payload []byte, header string, now time.Time) bool {
	if secret == "" {
		return true // bypass for development
	}
	if header == "" {
		return false
	}

	var timestamp string
	var signatures []string

	parts := strings.Split(header, ",")
	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	// Check timestamp tolerance (5 minutes)
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if abs64(now.Unix()-ts) > 300 {
		return false
	}

	// Compute expected signature: HMAC-SHA256(secret, "timestamp.payload")
	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
