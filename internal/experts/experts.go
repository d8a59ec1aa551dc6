// Package experts exposes read-only access to expert profiles. Profile CRUD
// lives outside this service; the booking core only needs identity, pricing
// and timezone.
package experts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned for unknown expert ids.
var ErrNotFound = errors.New("experts: not found")

// Expert is the profile subset the booking flows read.
type Expert struct {
	ID              uuid.UUID
	Name            string
	Email           string
	Timezone        string
	PriceCents      int64
	Currency        string
	StripeAccountID string
}

// Location returns the expert's timezone, defaulting to UTC when the stored
// name is empty or unknown.
func (e Expert) Location() string {
	if e.Timezone == "" {
		return "UTC"
	}
	return e.Timezone
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads expert profiles.
type Store struct {
	pool rowQuerier
}

// NewStore creates the store backed by pgx.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("experts: pgx pool required")
	}
	return &Store{pool: pool}
}

// NewStoreWithQuerier allows injecting a mock querier for tests.
func NewStoreWithQuerier(q rowQuerier) *Store {
	if q == nil {
		panic("experts: querier required")
	}
	return &Store{pool: q}
}

// GetByID loads one expert profile.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Expert, error) {
	query := `
		SELECT id, name, email, timezone, price_cents, currency, COALESCE(stripe_account_id, '')
		FROM experts
		WHERE id = $1
	`
	var e Expert
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.Name, &e.Email, &e.Timezone, &e.PriceCents, &e.Currency, &e.StripeAccountID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("experts: load: %w", err)
	}
	return &e, nil
}
