package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/runcall/platform/internal/availability"
	"github.com/runcall/platform/internal/calendar"
	"github.com/runcall/platform/internal/experts"
	"github.com/runcall/platform/internal/google"
	"github.com/runcall/platform/internal/notify"
	"github.com/runcall/platform/internal/observability/metrics"
	"github.com/runcall/platform/internal/payments"
	"github.com/runcall/platform/pkg/logging"
)

var bookingTracer = otel.Tracer("runcall.internal.bookings")

// Tier prices in cents. Experts without a custom price pick one of these.
var tierPrices = map[int]int64{
	1: 2900,
	2: 4900,
	3: 7900,
}

type bookingStore interface {
	CreateHold(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	MarkPendingPayment(ctx context.Context, id uuid.UUID, sessionID string, amountCents int64, currency string) error
	Confirm(ctx context.Context, id uuid.UUID, paymentIntentID, sessionID, calendarEventID, meetLink string, confirmedAt time.Time) (bool, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

type expertSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*experts.Expert, error)
}

type accountSource interface {
	Get(ctx context.Context, expertID uuid.UUID) (*google.Account, error)
}

type tokenSource interface {
	EnsureAccessToken(ctx context.Context, acct *google.Account) (string, error)
}

type eventCreator interface {
	CreateEvent(ctx context.Context, accessToken, calendarID string, req calendar.EventRequest) (*calendar.CreatedEvent, error)
}

type checkoutCreator interface {
	CreateSession(ctx context.Context, params payments.CheckoutParams) (*payments.CheckoutSession, error)
}

type confirmLocker interface {
	Acquire(ctx context.Context, bookingID uuid.UUID) (release func(), err error)
}

type confirmationNotifier interface {
	SendBookingConfirmed(ctx context.Context, c notify.BookingConfirmation) error
}

// ServiceConfig wires the lifecycle controller's collaborators.
type ServiceConfig struct {
	Repo     bookingStore
	Experts  expertSource
	Accounts accountSource
	Tokens   tokenSource
	Calendar eventCreator
	Checkout checkoutCreator
	Locker   confirmLocker
	Notifier confirmationNotifier
	Metrics  *metrics.BookingMetrics
	Logger   *logging.Logger
	HoldTTL  time.Duration
}

// Service owns the booking state machine: hold, checkout, confirmation,
// expiry.
type Service struct {
	repo     bookingStore
	experts  expertSource
	accounts accountSource
	tokens   tokenSource
	cal      eventCreator
	checkout checkoutCreator
	locker   confirmLocker
	notifier confirmationNotifier
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	holdTTL  time.Duration
	now      func() time.Time
}

// NewService creates the lifecycle controller.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	holdTTL := cfg.HoldTTL
	if holdTTL <= 0 {
		holdTTL = HoldTTL
	}
	return &Service{
		repo:     cfg.Repo,
		experts:  cfg.Experts,
		accounts: cfg.Accounts,
		tokens:   cfg.Tokens,
		cal:      cfg.Calendar,
		checkout: cfg.Checkout,
		locker:   cfg.Locker,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		logger:   logger,
		holdTTL:  holdTTL,
		now:      time.Now,
	}
}

// WithClock overrides the service clock (for tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// CreateHoldInput is a validated request for a new hold.
type CreateHoldInput struct {
	ExpertID    uuid.UUID
	SlotStart   time.Time
	SlotEnd     time.Time
	Timezone    string
	ClientName  string
	ClientEmail string
	ClientNote  string
}

// CreateHold reserves a slot for the hold window. The slot must be a
// full future 30-minute interval; the client supplies a display
// timezone and contact details.
func (s *Service) CreateHold(ctx context.Context, in CreateHoldInput) (*Booking, error) {
	ctx, span := bookingTracer.Start(ctx, "bookings.create_hold")
	defer span.End()
	span.SetAttributes(attribute.String("runcall.expert_id", in.ExpertID.String()))

	now := s.now()

	if in.SlotEnd.Sub(in.SlotStart) != availability.SlotDuration {
		return nil, invalidField("slot", fmt.Sprintf("must be exactly %s long", availability.SlotDuration))
	}
	if !in.SlotStart.After(now) {
		return nil, invalidField("slot_start", "must be in the future")
	}
	if in.Timezone != "" {
		if _, err := time.LoadLocation(in.Timezone); err != nil {
			return nil, invalidField("timezone", "unknown IANA zone")
		}
	}
	if strings.TrimSpace(in.ClientName) == "" {
		return nil, invalidField("client_name", "required")
	}
	email := strings.TrimSpace(in.ClientEmail)
	if email == "" || !strings.Contains(email, "@") {
		return nil, invalidField("client_email", "must be a valid email address")
	}

	if _, err := s.experts.GetByID(ctx, in.ExpertID); err != nil {
		return nil, err
	}

	b := &Booking{
		ID:            uuid.New(),
		ExpertID:      in.ExpertID,
		SlotStart:     in.SlotStart.UTC(),
		SlotEnd:       in.SlotEnd.UTC(),
		Timezone:      in.Timezone,
		ClientName:    strings.TrimSpace(in.ClientName),
		ClientEmail:   email,
		ClientNote:    strings.TrimSpace(in.ClientNote),
		Status:        StatusHold,
		HoldExpiresAt: now.Add(s.holdTTL).UTC(),
	}
	if err := s.repo.CreateHold(ctx, b); err != nil {
		return nil, err
	}

	s.metrics.ObserveHoldCreated()
	s.logger.Info("booking hold created",
		"booking_id", b.ID, "expert_id", b.ExpertID,
		"slot_start", b.SlotStart, "hold_expires_at", b.HoldExpiresAt)
	return b, nil
}

// CheckoutResult is what a client needs to pay for a hold.
type CheckoutResult struct {
	SessionID   string
	URL         string
	AmountCents int64
	Currency    string
}

// CreateCheckout creates a Stripe Checkout Session for a live hold and
// moves the booking to pending_payment. A hold whose expiry has been
// reached cannot start checkout.
func (s *Service) CreateCheckout(ctx context.Context, bookingID uuid.UUID, tier int) (*CheckoutResult, error) {
	ctx, span := bookingTracer.Start(ctx, "bookings.create_checkout")
	defer span.End()
	span.SetAttributes(attribute.String("runcall.booking_id", bookingID.String()))

	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusHold {
		return nil, fmt.Errorf("bookings: checkout for %s booking: %w", b.Status, ErrInvalidStatus)
	}
	if b.HoldExpired(s.now()) {
		return nil, ErrHoldExpired
	}

	expert, err := s.experts.GetByID(ctx, b.ExpertID)
	if err != nil {
		return nil, err
	}

	amountCents, currency, err := priceFor(expert, tier)
	if err != nil {
		return nil, err
	}

	session, err := s.checkout.CreateSession(ctx, payments.CheckoutParams{
		BookingID:          b.ID,
		Description:        fmt.Sprintf("30-minute session with %s", expert.Name),
		AmountCents:        amountCents,
		Currency:           currency,
		CustomerEmail:      b.ClientEmail,
		DestinationAccount: expert.StripeAccountID,
		ExpiresAt:          b.HoldExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("bookings: create checkout session: %w", err)
	}

	if err := s.repo.MarkPendingPayment(ctx, b.ID, session.ID, amountCents, currency); err != nil {
		return nil, err
	}

	s.logger.Info("checkout session created",
		"booking_id", b.ID, "session_id", session.ID, "amount_cents", amountCents)
	return &CheckoutResult{
		SessionID:   session.ID,
		URL:         session.URL,
		AmountCents: amountCents,
		Currency:    currency,
	}, nil
}

func priceFor(expert *experts.Expert, tier int) (int64, string, error) {
	if expert.PriceCents > 0 {
		currency := expert.Currency
		if currency == "" {
			currency = "usd"
		}
		return expert.PriceCents, currency, nil
	}
	if tier == 0 {
		tier = 1
	}
	price, ok := tierPrices[tier]
	if !ok {
		return 0, "", invalidField("tier", "must be 1, 2 or 3")
	}
	return price, "usd", nil
}

// ConfirmResult reports the outcome of one confirmation attempt.
type ConfirmResult struct {
	Booking *Booking
	// Noop is true when the booking was already confirmed and this
	// attempt changed nothing.
	Noop bool
}

// Confirm drives a paid booking to confirmed: create the Meet-backed
// calendar event, record the payment reference and meet link in one
// conditional write, and notify both parties. Safe to call repeatedly
// with the same payment reference; redeliveries of an already confirmed
// booking return the stored artifacts without touching Google again.
func (s *Service) Confirm(ctx context.Context, bookingID uuid.UUID, paymentIntentID, sessionID string) (*ConfirmResult, error) {
	ctx, span := bookingTracer.Start(ctx, "bookings.confirm")
	defer span.End()
	span.SetAttributes(attribute.String("runcall.booking_id", bookingID.String()))

	release, err := s.locker.Acquire(ctx, bookingID)
	if err != nil {
		s.metrics.ObserveConfirmation("retriable_error")
		return nil, reconciliation("acquire lock", err)
	}
	defer release()

	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.ObserveConfirmation("rejected")
			return nil, err
		}
		s.metrics.ObserveConfirmation("retriable_error")
		return nil, reconciliation("load booking", err)
	}

	if b.FullyConfirmed() {
		s.metrics.ObserveConfirmation("noop")
		s.logger.Info("confirmation replayed for confirmed booking",
			"booking_id", b.ID, "event_id", b.CalendarEventID)
		return &ConfirmResult{Booking: b, Noop: true}, nil
	}

	switch b.Status {
	case StatusHold, StatusPendingPayment, StatusConfirmed:
		// confirmed lands here only when a prior attempt persisted
		// partially; rerunning repairs the missing artifacts.
	default:
		s.metrics.ObserveConfirmation("rejected")
		return nil, fmt.Errorf("bookings: confirm %s booking: %w", b.Status, ErrInvalidStatus)
	}

	expert, err := s.experts.GetByID(ctx, b.ExpertID)
	if err != nil {
		s.metrics.ObserveConfirmation("retriable_error")
		return nil, reconciliation("expert lookup", err)
	}

	acct, err := s.accounts.Get(ctx, b.ExpertID)
	if err != nil {
		s.metrics.ObserveConfirmation("retriable_error")
		return nil, reconciliation("google account lookup", err)
	}
	token, err := s.tokens.EnsureAccessToken(ctx, acct)
	if err != nil {
		s.metrics.ObserveConfirmation("retriable_error")
		return nil, reconciliation("token refresh", err)
	}

	created, err := s.cal.CreateEvent(ctx, token, acct.TargetCalendar(), s.buildEventRequest(b, expert))
	if err != nil {
		s.metrics.ObserveConfirmation("retriable_error")
		return nil, reconciliation("create calendar event", err)
	}
	meetLink := created.MeetLink()
	if meetLink == "" {
		s.metrics.ObserveConfirmation("retriable_error")
		return nil, reconciliation("meet link", fmt.Errorf("created event %s has no meet link", created.ID))
	}

	confirmedAt := s.now().UTC()
	won, err := s.repo.Confirm(ctx, b.ID, paymentIntentID, sessionID, created.ID, meetLink, confirmedAt)
	if err != nil {
		s.metrics.ObserveConfirmation("retriable_error")
		return nil, reconciliation("persist confirmation", err)
	}
	if !won {
		// A concurrent attempt got there first; its artifacts stand.
		current, err := s.repo.GetByID(ctx, b.ID)
		if err != nil {
			s.metrics.ObserveConfirmation("retriable_error")
			return nil, reconciliation("reload after lost race", err)
		}
		s.metrics.ObserveConfirmation("noop")
		s.logger.Info("confirmation lost race, keeping existing artifacts",
			"booking_id", b.ID, "event_id", current.CalendarEventID)
		return &ConfirmResult{Booking: current, Noop: true}, nil
	}

	b.Status = StatusConfirmed
	b.StripePaymentIntentID = paymentIntentID
	if sessionID != "" {
		b.StripeSessionID = sessionID
	}
	b.CalendarEventID = created.ID
	b.MeetLink = meetLink
	b.ConfirmedAt = &confirmedAt

	s.metrics.ObserveConfirmation("confirmed")
	s.logger.Info("booking confirmed",
		"booking_id", b.ID, "event_id", b.CalendarEventID, "payment_ref", paymentIntentID)

	s.notifyConfirmed(ctx, b, expert)

	return &ConfirmResult{Booking: b, Noop: false}, nil
}

// buildEventRequest shapes the calendar insert. The summary must never
// contain the availability keyword; the private marker is what keeps the
// created event out of future slot computations.
func (s *Service) buildEventRequest(b *Booking, expert *experts.Expert) calendar.EventRequest {
	return calendar.EventRequest{
		Summary: fmt.Sprintf("Booked: %s", b.ClientName),
		Description: fmt.Sprintf("30-minute session booked via RunCall.\n\nClient: %s <%s>\nNotes: %s\nBooking: %s",
			b.ClientName, b.ClientEmail, b.ClientNote, b.ID),
		Start:        calendar.EventTime{DateTime: b.SlotStart.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:          calendar.EventTime{DateTime: b.SlotEnd.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		Transparency: "opaque",
		Attendees: []calendar.Attendee{
			{Email: expert.Email},
			{Email: b.ClientEmail},
		},
		ExtendedProperties: calendar.ExtendedProperties{
			Private: map[string]string{calendar.PrivateMarkerKey: calendar.PrivateMarkerBooking},
		},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.ConferenceCreateRequest{
				RequestID:             "runcall-" + b.ID.String(),
				ConferenceSolutionKey: calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}
}

func (s *Service) notifyConfirmed(ctx context.Context, b *Booking, expert *experts.Expert) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.SendBookingConfirmed(ctx, notify.BookingConfirmation{
		BookingID:      b.ID.String(),
		ExpertName:     expert.Name,
		ExpertEmail:    expert.Email,
		ExpertTimezone: expert.Location(),
		ClientName:     b.ClientName,
		ClientEmail:    b.ClientEmail,
		ClientTimezone: b.Timezone,
		SlotStart:      b.SlotStart,
		SlotEnd:        b.SlotEnd,
		MeetLink:       b.MeetLink,
		AmountCents:    b.AmountCents,
		Currency:       b.Currency,
	})
	if err != nil {
		// Notifications never fail a confirmed booking.
		s.logger.Warn("confirmation notification failed", "error", err, "booking_id", b.ID)
	}
}

// GetBooking loads one booking for the read endpoint.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.repo.GetByID(ctx, id)
}

// ExpireStale sweeps lapsed holds to expired.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireStale(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired stale bookings", "count", n)
	}
	return n, nil
}

// Cancel voids a not-yet-confirmed booking.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Cancel(ctx, id); err != nil {
		return err
	}
	s.logger.Info("booking canceled", "booking_id", id)
	return nil
}
