package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runcall/platform/pkg/logging"
)

type stubProcessedTracker struct {
	seen   map[string]bool
	marked []string
	err    error
}

func newStubProcessed() *stubProcessedTracker {
	return &stubProcessedTracker{seen: make(map[string]bool)}
}

func (s *stubProcessedTracker) AlreadyProcessed(_ context.Context, provider, eventID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.seen[provider+":"+eventID], nil
}

func (s *stubProcessedTracker) MarkProcessed(_ context.Context, provider, eventID string) (bool, error) {
	key := provider + ":" + eventID
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	s.marked = append(s.marked, eventID)
	return true, nil
}

type retriableErr struct{ msg string }

func (e *retriableErr) Error() string   { return e.msg }
func (e *retriableErr) Retriable() bool { return true }

type stubConfirmer struct {
	calls []uuid.UUID
	refs  []string
	err   error
}

func (s *stubConfirmer) Confirm(_ context.Context, bookingID uuid.UUID, paymentIntentID, _ string) error {
	s.calls = append(s.calls, bookingID)
	s.refs = append(s.refs, paymentIntentID)
	return s.err
}

func buildStripePayload(t *testing.T, eventID, eventType, sessionID, paymentIntentID string, metadata map[string]string) []byte {
	t.Helper()
	evt := map[string]any{
		"id":      eventID,
		"type":    eventType,
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":             sessionID,
				"payment_intent": paymentIntentID,
				"amount_total":   4900,
				"currency":       "usd",
				"metadata":       metadata,
				"status":         "complete",
			},
		},
	}
	data, err := json.Marshal(evt)
	require.NoError(t, err)
	return data
}

func stripeSign(payload []byte, secret string) string {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	sig := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%s,v1=%s", ts, sig)
}

func deliver(handler *StripeWebhookHandler, body []byte, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "https://example.com/webhooks/stripe", bytes.NewReader(body))
	if secret != "" {
		req.Header.Set("Stripe-Signature", stripeSign(body, secret))
	}
	rr := httptest.NewRecorder()
	handler.Handle(rr, req)
	return rr
}

func TestStripeWebhookConfirmsBooking(t *testing.T) {
	bookingID := uuid.New()
	processed := newStubProcessed()
	confirmer := &stubConfirmer{}
	handler := NewStripeWebhookHandler("whsec_test", processed, confirmer, nil, logging.Default())

	body := buildStripePayload(t, "evt_1", "checkout.session.completed", "cs_1", "pi_1",
		map[string]string{"booking_id": bookingID.String()})

	rr := deliver(handler, body, "whsec_test")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, confirmer.calls, 1)
	assert.Equal(t, bookingID, confirmer.calls[0])
	assert.Equal(t, "pi_1", confirmer.refs[0])
	assert.Equal(t, []string{"evt_1"}, processed.marked)
}

func TestStripeWebhookBadSignatureRejected(t *testing.T) {
	processed := newStubProcessed()
	confirmer := &stubConfirmer{}
	handler := NewStripeWebhookHandler("whsec_test", processed, confirmer, nil, logging.Default())

	body := buildStripePayload(t, "evt_1", "checkout.session.completed", "cs_1", "pi_1",
		map[string]string{"booking_id": uuid.NewString()})

	req := httptest.NewRequest(http.MethodPost, "https://example.com/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", "t=123,v1=deadbeef")
	rr := httptest.NewRecorder()
	handler.Handle(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, confirmer.calls)
}

func TestStripeWebhookStaleTimestampRejected(t *testing.T) {
	processed := newStubProcessed()
	confirmer := &stubConfirmer{}
	handler := NewStripeWebhookHandler("whsec_test", processed, confirmer, nil, logging.Default())

	body := buildStripePayload(t, "evt_1", "checkout.session.completed", "cs_1", "pi_1",
		map[string]string{"booking_id": uuid.NewString()})

	// Sign with a timestamp ten minutes in the past.
	ts := fmt.Sprintf("%d", time.Now().Add(-10*time.Minute).Unix())
	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write([]byte(ts + "." + string(body)))
	sig := fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	req := httptest.NewRequest(http.MethodPost, "https://example.com/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", sig)
	rr := httptest.NewRecorder()
	handler.Handle(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestStripeWebhookIgnoresOtherEventTypes(t *testing.T) {
	processed := newStubProcessed()
	confirmer := &stubConfirmer{}
	handler := NewStripeWebhookHandler("whsec_test", processed, confirmer, nil, logging.Default())

	body := buildStripePayload(t, "evt_1", "invoice.paid", "cs_1", "pi_1", nil)
	rr := deliver(handler, body, "whsec_test")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, confirmer.calls)
	assert.Empty(t, processed.marked)
}

func TestStripeWebhookDuplicateEventSkipped(t *testing.T) {
	bookingID := uuid.New()
	processed := newStubProcessed()
	confirmer := &stubConfirmer{}
	handler := NewStripeWebhookHandler("whsec_test", processed, confirmer, nil, logging.Default())

	body := buildStripePayload(t, "evt_1", "checkout.session.completed", "cs_1", "pi_1",
		map[string]string{"booking_id": bookingID.String()})

	require.Equal(t, http.StatusOK, deliver(handler, body, "whsec_test").Code)
	require.Equal(t, http.StatusOK, deliver(handler, body, "whsec_test").Code)

	// The ledger short-circuits the second delivery.
	assert.Len(t, confirmer.calls, 1)
}

func TestStripeWebhookRetriableFailureAsksForRedelivery(t *testing.T) {
	bookingID := uuid.New()
	processed := newStubProcessed()
	confirmer := &stubConfirmer{err: &retriableErr{msg: "calendar down"}}
	handler := NewStripeWebhookHandler("whsec_test", processed, confirmer, nil, logging.Default())

	body := buildStripePayload(t, "evt_1", "checkout.session.completed", "cs_1", "pi_1",
		map[string]string{"booking_id": bookingID.String()})

	rr := deliver(handler, body, "whsec_test")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	// Not marked: the redelivery must get processed.
	assert.Empty(t, processed.marked)

	confirmer.err = nil
	rr = deliver(handler, body, "whsec_test")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, confirmer.calls, 2)
	assert.Equal(t, []string{"evt_1"}, processed.marked)
}

func TestStripeWebhookPermanentFailureAcked(t *testing.T) {
	bookingID := uuid.New()
	processed := newStubProcessed()
	confirmer := &stubConfirmer{err: errors.New("booking not found")}
	handler := NewStripeWebhookHandler("whsec_test", processed, confirmer, nil, logging.Default())

	body := buildStripePayload(t, "evt_1", "checkout.session.completed", "cs_1", "pi_1",
		map[string]string{"booking_id": bookingID.String()})

	rr := deliver(handler, body, "whsec_test")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestStripeWebhookMissingMetadataAcked(t *testing.T) {
	processed := newStubProcessed()
	confirmer := &stubConfirmer{}
	handler := NewStripeWebhookHandler("whsec_test", processed, confirmer, nil, logging.Default())

	body := buildStripePayload(t, "evt_1", "checkout.session.completed", "cs_1", "pi_1", nil)
	rr := deliver(handler, body, "whsec_test")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, confirmer.calls)
}

func TestStripeWebhookFallsBackToSessionIDAsRef(t *testing.T) {
	bookingID := uuid.New()
	processed := newStubProcessed()
	confirmer := &stubConfirmer{}
	handler := NewStripeWebhookHandler("whsec_test", processed, confirmer, nil, logging.Default())

	body := buildStripePayload(t, "evt_1", "checkout.session.completed", "cs_77", "",
		map[string]string{"booking_id": bookingID.String()})

	rr := deliver(handler, body, "whsec_test")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, confirmer.refs, 1)
	assert.Equal(t, "cs_77", confirmer.refs[0])
}
