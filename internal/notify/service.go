package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/runcall/platform/pkg/logging"
)

// BookingConfirmation carries everything needed to tell both parties
// that a paid session is on the calendar.
type BookingConfirmation struct {
	BookingID      string
	ExpertName     string
	ExpertEmail    string
	ExpertTimezone string
	ClientName     string
	ClientEmail    string
	ClientTimezone string
	SlotStart      time.Time
	SlotEnd        time.Time
	MeetLink       string
	AmountCents    int64
	Currency       string
}

// Service sends booking lifecycle notifications.
type Service struct {
	email  EmailSender
	logger *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, logger: logger}
}

// SendBookingConfirmed emails the client and the expert. Each message
// renders the slot in the recipient's own timezone. Failures are
// collected so one bad address does not drop the other mail.
func (s *Service) SendBookingConfirmed(ctx context.Context, c BookingConfirmation) error {
	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping confirmation")
		return nil
	}

	var errs []error

	clientMsg := EmailMessage{
		To:      c.ClientEmail,
		ToName:  c.ClientName,
		Subject: fmt.Sprintf("Your session with %s is confirmed", c.ExpertName),
		Body:    s.clientBody(c),
	}
	if err := s.email.Send(ctx, clientMsg); err != nil {
		s.logger.Error("notify: client confirmation failed", "error", err, "booking_id", c.BookingID)
		errs = append(errs, err)
	}

	expertMsg := EmailMessage{
		To:      c.ExpertEmail,
		ToName:  c.ExpertName,
		Subject: fmt.Sprintf("New booking: %s", c.ClientName),
		Body:    s.expertBody(c),
	}
	if err := s.email.Send(ctx, expertMsg); err != nil {
		s.logger.Error("notify: expert confirmation failed", "error", err, "booking_id", c.BookingID)
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d confirmation email(s) failed", len(errs))
	}
	return nil
}

func (s *Service) clientBody(c BookingConfirmation) string {
	when := formatInZone(c.SlotStart, c.SlotEnd, c.ClientTimezone)
	return fmt.Sprintf(`Hi %s,

Your 30-minute session with %s is confirmed.

When: %s
Join: %s
Amount paid: %s

See you there!

— RunCall`, c.ClientName, c.ExpertName, when, c.MeetLink, formatAmount(c.AmountCents, c.Currency))
}

func (s *Service) expertBody(c BookingConfirmation) string {
	when := formatInZone(c.SlotStart, c.SlotEnd, c.ExpertTimezone)
	return fmt.Sprintf(`Hi %s,

%s (%s) has booked and paid for a 30-minute session.

When: %s
Join: %s

The event is already on your calendar.

— RunCall`, c.ExpertName, c.ClientName, c.ClientEmail, when, c.MeetLink)
}

// formatInZone renders the slot in the given IANA zone, falling back to
// UTC when the zone is missing or unknown.
func formatInZone(start, end time.Time, zone string) string {
	loc := time.UTC
	if zone != "" {
		if l, err := time.LoadLocation(zone); err == nil {
			loc = l
		}
	}
	s := start.In(loc)
	e := end.In(loc)
	return fmt.Sprintf("%s – %s (%s)",
		s.Format("Monday, January 2, 2006 at 3:04 PM"),
		e.Format("3:04 PM"),
		s.Format("MST"))
}

func formatAmount(cents int64, currency string) string {
	if currency == "" {
		currency = "usd"
	}
	return fmt.Sprintf("%.2f %s", float64(cents)/100, currency)
}
