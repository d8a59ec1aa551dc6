package bookings

import (
	"time"

	"github.com/google/uuid"
)

// Status is the booking lifecycle state.
type Status string

const (
	// StatusHold is the initial, time-limited reservation of a slot.
	StatusHold Status = "hold"
	// StatusPendingPayment means a checkout session exists for the hold.
	StatusPendingPayment Status = "pending_payment"
	// StatusConfirmed is terminal: paid, calendar event created.
	StatusConfirmed Status = "confirmed"
	// StatusExpired is terminal: the hold lapsed unused.
	StatusExpired Status = "expired"
	// StatusCanceled is terminal: explicitly canceled before confirmation.
	StatusCanceled Status = "canceled"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusExpired, StatusCanceled:
		return true
	}
	return false
}

// HoldTTL is how long a hold stays payable.
const HoldTTL = 15 * time.Minute

// PendingPaymentGrace is how long a pending_payment booking outlives its
// hold expiry before the sweep may expire it. Stripe enforces a 30 minute
// floor on checkout session expiry, so a session created moments before
// hold_expires_at can still complete up to ~31 minutes later; sweeping
// earlier would strand a paid booking in a terminal state.
const PendingPaymentGrace = time.Hour

// Booking is one client reservation of an expert's slot.
type Booking struct {
	ID          uuid.UUID
	ExpertID    uuid.UUID
	SlotStart   time.Time
	SlotEnd     time.Time
	Timezone    string
	ClientName  string
	ClientEmail string
	ClientNote  string
	Status      Status

	HoldExpiresAt time.Time

	StripeSessionID       string
	StripePaymentIntentID string
	CalendarEventID       string
	MeetLink              string
	AmountCents           int64
	Currency              string

	ConfirmedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HoldExpired reports whether the hold is past its expiry at now. A hold
// whose expiry equals now exactly is already expired.
func (b *Booking) HoldExpired(now time.Time) bool {
	return !now.Before(b.HoldExpiresAt)
}

// FullyConfirmed reports whether the booking carries every durable
// confirmation artifact. Used as the idempotency check: a redelivered
// confirmation for such a booking is a no-op.
func (b *Booking) FullyConfirmed() bool {
	return b.Status == StatusConfirmed && b.MeetLink != "" && b.StripePaymentIntentID != ""
}
