package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository persists bookings in Postgres.
type Repository struct {
	db rowQuerier
}

// NewRepository panics on a nil pool; it is a wiring error.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("bookings: nil pgx pool")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithQuerier exists for tests that inject pgxmock.
func NewRepositoryWithQuerier(q rowQuerier) *Repository {
	return &Repository{db: q}
}

const bookingColumns = `id, expert_id, slot_start, slot_end, timezone,
	client_name, client_email, client_note, status, hold_expires_at,
	stripe_session_id, stripe_payment_intent_id, calendar_event_id, meet_link,
	amount_cents, currency, confirmed_at, created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(
		&b.ID, &b.ExpertID, &b.SlotStart, &b.SlotEnd, &b.Timezone,
		&b.ClientName, &b.ClientEmail, &b.ClientNote, &b.Status, &b.HoldExpiresAt,
		&b.StripeSessionID, &b.StripePaymentIntentID, &b.CalendarEventID, &b.MeetLink,
		&b.AmountCents, &b.Currency, &b.ConfirmedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateHold inserts a new hold row and fills in the generated timestamps.
func (r *Repository) CreateHold(ctx context.Context, b *Booking) error {
	query := `
		INSERT INTO bookings (
			id, expert_id, slot_start, slot_end, timezone,
			client_name, client_email, client_note, status, hold_expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		b.ID, b.ExpertID, b.SlotStart, b.SlotEnd, b.Timezone,
		b.ClientName, b.ClientEmail, b.ClientNote, b.Status, b.HoldExpiresAt,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("bookings: create hold: %w", err)
	}
	return nil
}

// GetByID loads one booking.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	b, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bookings: get booking: %w", err)
	}
	return b, nil
}

// MarkPendingPayment records the checkout session against a live hold.
// The status guard in SQL makes concurrent checkout attempts lose cleanly.
func (r *Repository) MarkPendingPayment(ctx context.Context, id uuid.UUID, sessionID string, amountCents int64, currency string) error {
	query := `
		UPDATE bookings
		SET status = $2, stripe_session_id = $3, amount_cents = $4,
		    currency = $5, updated_at = NOW()
		WHERE id = $1 AND status = $6`

	tag, err := r.db.Exec(ctx, query, id, StatusPendingPayment, sessionID, amountCents, currency, StatusHold)
	if err != nil {
		return fmt.Errorf("bookings: mark pending payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// Confirm performs the single conditional transition to confirmed. The
// returned bool reports whether this call won the transition; false means
// another writer confirmed first and the caller should reload.
func (r *Repository) Confirm(ctx context.Context, id uuid.UUID, paymentIntentID, sessionID, calendarEventID, meetLink string, confirmedAt time.Time) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $2, stripe_payment_intent_id = $3,
		    stripe_session_id = CASE WHEN $4 = '' THEN stripe_session_id ELSE $4 END,
		    calendar_event_id = $5, meet_link = $6, confirmed_at = $7, updated_at = NOW()
		WHERE id = $1 AND status <> $2`

	tag, err := r.db.Exec(ctx, query, id, StatusConfirmed, paymentIntentID, sessionID, calendarEventID, meetLink, confirmedAt)
	if err != nil {
		return false, fmt.Errorf("bookings: confirm booking: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireStale sweeps lapsed bookings to expired and reports how many rows
// moved. Holds expire at hold_expires_at; pending_payment rows only after
// PendingPaymentGrace on top, because their checkout session may still
// complete past the hold expiry.
func (r *Repository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE bookings
		SET status = $1, updated_at = NOW()
		WHERE (status = $2 AND hold_expires_at <= $4)
		   OR (status = $3 AND hold_expires_at <= $5)`

	tag, err := r.db.Exec(ctx, query, StatusExpired, StatusHold, StatusPendingPayment, now, now.Add(-PendingPaymentGrace))
	if err != nil {
		return 0, fmt.Errorf("bookings: expire stale: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Cancel moves a not-yet-confirmed booking to canceled.
func (r *Repository) Cancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE bookings
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)`

	tag, err := r.db.Exec(ctx, query, id, StatusCanceled, StatusHold, StatusPendingPayment)
	if err != nil {
		return fmt.Errorf("bookings: cancel booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}
