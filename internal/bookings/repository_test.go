package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryCreateHold(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	b := &Booking{
		ID:            uuid.New(),
		ExpertID:      uuid.New(),
		SlotStart:     time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		SlotEnd:       time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC),
		Timezone:      "America/Chicago",
		ClientName:    "Sam Okafor",
		ClientEmail:   "sam@example.com",
		Status:        StatusHold,
		HoldExpiresAt: time.Date(2026, 4, 1, 8, 15, 0, 0, time.UTC),
	}

	now := time.Now()
	mock.ExpectQuery("INSERT INTO bookings").
		WithArgs(b.ID, b.ExpertID, b.SlotStart, b.SlotEnd, b.Timezone,
			b.ClientName, b.ClientEmail, b.ClientNote, b.Status, b.HoldExpiresAt).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	repo := NewRepositoryWithQuerier(mock)
	require.NoError(t, repo.CreateHold(context.Background(), b))
	assert.Equal(t, now, b.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT id, expert_id").WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	repo := NewRepositoryWithQuerier(mock)
	_, err = repo.GetByID(context.Background(), id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryMarkPendingPayment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE bookings").
		WithArgs(id, StatusPendingPayment, "cs_123", int64(4900), "usd", StatusHold).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewRepositoryWithQuerier(mock)
	require.NoError(t, repo.MarkPendingPayment(context.Background(), id, "cs_123", 4900, "usd"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryMarkPendingPaymentWrongStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE bookings").
		WithArgs(id, StatusPendingPayment, "cs_123", int64(4900), "usd", StatusHold).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewRepositoryWithQuerier(mock)
	err = repo.MarkPendingPayment(context.Background(), id, "cs_123", 4900, "usd")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestRepositoryConfirmWinnerAndLoser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	confirmedAt := time.Date(2026, 4, 1, 9, 5, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE bookings").
		WithArgs(id, StatusConfirmed, "pi_1", "cs_1", "evt_1", "https://meet.google.com/abc", confirmedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE bookings").
		WithArgs(id, StatusConfirmed, "pi_1", "cs_1", "evt_2", "https://meet.google.com/xyz", confirmedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewRepositoryWithQuerier(mock)

	won, err := repo.Confirm(context.Background(), id, "pi_1", "cs_1", "evt_1", "https://meet.google.com/abc", confirmedAt)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.Confirm(context.Background(), id, "pi_1", "cs_1", "evt_2", "https://meet.google.com/xyz", confirmedAt)
	require.NoError(t, err)
	assert.False(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryExpireStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE bookings").
		WithArgs(StatusExpired, StatusHold, StatusPendingPayment, now, now.Add(-PendingPaymentGrace)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	repo := NewRepositoryWithQuerier(mock)
	n, err := repo.ExpireStale(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRepositoryCancelConfirmedBooking(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE bookings").
		WithArgs(id, StatusCanceled, StatusHold, StatusPendingPayment).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewRepositoryWithQuerier(mock)
	require.ErrorIs(t, repo.Cancel(context.Background(), id), ErrInvalidStatus)
}
