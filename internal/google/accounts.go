package google

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

// ErrAccountNotFound is returned when an expert never completed the Google
// consent flow.
var ErrAccountNotFound = errors.New("google: account not found")

// Account is the stored Google credential record for one expert.
type Account struct {
	ExpertID     uuid.UUID
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	CalendarID   string
	GoogleEmail  string
	UpdatedAt    time.Time
}

// TargetCalendar returns the calendar booking events are written to.
func (a Account) TargetCalendar() string {
	if a.CalendarID != "" {
		return a.CalendarID
	}
	return "primary"
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Accounts persists Google credential records.
type Accounts struct {
	pool rowQuerier
}

// NewAccounts creates the store backed by pgx.
func NewAccounts(pool *pgxpool.Pool) *Accounts {
	if pool == nil {
		panic("google: pgx pool required")
	}
	return &Accounts{pool: pool}
}

// NewAccountsWithQuerier allows injecting a mock querier for tests.
func NewAccountsWithQuerier(q rowQuerier) *Accounts {
	if q == nil {
		panic("google: querier required")
	}
	return &Accounts{pool: q}
}

// Get loads the credential record for an expert.
func (s *Accounts) Get(ctx context.Context, expertID uuid.UUID) (*Account, error) {
	query := `
		SELECT expert_id, access_token, refresh_token, token_expiry, calendar_id, google_email, updated_at
		FROM google_accounts
		WHERE expert_id = $1
	`
	var acct Account
	err := s.pool.QueryRow(ctx, query, expertID).Scan(
		&acct.ExpertID,
		&acct.AccessToken,
		&acct.RefreshToken,
		&acct.TokenExpiry,
		&acct.CalendarID,
		&acct.GoogleEmail,
		&acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("google: load account: %w", err)
	}
	return &acct, nil
}

// Upsert stores the record created or renewed by the consent flow. Google
// omits the refresh token on repeat grants; an empty incoming value keeps
// the stored one.
func (s *Accounts) Upsert(ctx context.Context, acct Account) error {
	query := `
		INSERT INTO google_accounts (expert_id, access_token, refresh_token, token_expiry, calendar_id, google_email, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (expert_id) DO UPDATE SET
			access_token  = EXCLUDED.access_token,
			refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), google_accounts.refresh_token),
			token_expiry  = EXCLUDED.token_expiry,
			calendar_id   = COALESCE(NULLIF(EXCLUDED.calendar_id, ''), google_accounts.calendar_id),
			google_email  = COALESCE(NULLIF(EXCLUDED.google_email, ''), google_accounts.google_email),
			updated_at    = now()
	`
	_, err := s.pool.Exec(ctx, query,
		acct.ExpertID, acct.AccessToken, acct.RefreshToken, acct.TokenExpiry, acct.CalendarID, acct.GoogleEmail)
	if err != nil {
		return fmt.Errorf("google: upsert account: %w", err)
	}
	return nil
}

// UpdateToken persists a refreshed access token. The stored refresh token is
// only replaced when the exchange issued a new one.
func (s *Accounts) UpdateToken(ctx context.Context, expertID uuid.UUID, accessToken string, expiry time.Time, refreshToken string) error {
	query := `
		UPDATE google_accounts
		SET access_token  = $2,
		    token_expiry  = $3,
		    refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
		    updated_at    = now()
		WHERE expert_id = $1
	`
	ct, err := s.pool.Exec(ctx, query, expertID, accessToken, expiry, refreshToken)
	if err != nil {
		return fmt.Errorf("google: update token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
