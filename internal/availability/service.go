package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/runcall/platform/internal/calendar"
	"github.com/runcall/platform/internal/google"
	"github.com/runcall/platform/internal/observability/metrics"
	"github.com/runcall/platform/pkg/logging"
)

type accountSource interface {
	Get(ctx context.Context, expertID uuid.UUID) (*google.Account, error)
}

type tokenSource interface {
	EnsureAccessToken(ctx context.Context, acct *google.Account) (string, error)
}

type calendarAPI interface {
	ListCalendars(ctx context.Context, accessToken string) ([]calendar.CalendarRef, error)
	ListEvents(ctx context.Context, accessToken, calendarID string, from, to time.Time) ([]calendar.Event, error)
}

// Service computes bookable slots for an expert from their Google calendars.
type Service struct {
	accounts accountSource
	tokens   tokenSource
	cal      calendarAPI
	opts     Options
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// NewService creates the availability service.
func NewService(accounts accountSource, tokens tokenSource, cal calendarAPI, opts Options, m *metrics.BookingMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		cal:      cal,
		opts:     opts,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the wall clock (for testing).
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Slots returns the expert's bookable slots in [from, to), sorted and
// deduplicated. A calendar whose events cannot be fetched is skipped so one
// broken shared calendar degrades the result instead of failing the query;
// failure to list the calendar index itself is fatal.
func (s *Service) Slots(ctx context.Context, expertID uuid.UUID, from, to time.Time) ([]Slot, error) {
	acct, err := s.accounts.Get(ctx, expertID)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.EnsureAccessToken(ctx, acct)
	if err != nil {
		return nil, err
	}

	refs, err := s.cal.ListCalendars(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("availability: list calendars: %w", err)
	}

	var events []calendar.Event
	scanned := 0
	for _, ref := range refs {
		items, err := s.cal.ListEvents(ctx, accessToken, ref.ID, from, to)
		if err != nil {
			s.logger.Warn("skipping calendar after event fetch failure",
				"expert_id", expertID, "calendar_id", ref.ID, "error", err)
			continue
		}
		scanned++
		events = append(events, items...)
	}

	avail, busy := Partition(events)
	slots := Slice(avail, busy, SlotDuration, s.now(), s.opts)
	s.metrics.ObserveSlotQuery(scanned, len(slots))

	s.logger.Debug("slot query computed",
		"expert_id", expertID,
		"calendars_scanned", scanned,
		"availability_intervals", len(avail),
		"busy_intervals", len(busy),
		"slots", len(slots),
	)
	return slots, nil
}
