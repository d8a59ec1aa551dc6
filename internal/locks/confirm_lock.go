// Package locks provides the mutual-exclusion scope around booking
// confirmation. The confirm procedure's check-then-act sequence is not one
// atomic transaction, so two concurrent deliveries for the same booking must
// serialize here before either touches the calendar.
package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/runcall/platform/pkg/logging"
)

// ErrLockHeld means another confirmation for the same booking is in flight.
// Retriable: the webhook layer maps it to a 5xx so the event is redelivered.
var ErrLockHeld = errors.New("locks: confirm lock held")

// releaseScript deletes the key only if this locker still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ConfirmLocker serializes confirmation attempts per booking id using a
// redis SET NX lease.
type ConfirmLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewConfirmLocker creates the locker. TTL bounds how long a crashed
// confirmation can block retries.
func NewConfirmLocker(client *redis.Client, ttl time.Duration, logger *logging.Logger) *ConfirmLocker {
	if client == nil {
		panic("locks: redis client required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConfirmLocker{client: client, ttl: ttl, logger: logger}
}

// Acquire takes the per-booking lock. The returned release function is safe
// to call after the lease expired: it only deletes a lease this call owns.
func (l *ConfirmLocker) Acquire(ctx context.Context, bookingID uuid.UUID) (release func(), err error) {
	key := "confirm:" + bookingID.String()
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("locks: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return func() {
		// Release with a background context so an aborted request still
		// frees the lock.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.logger.Warn("confirm lock release failed", "key", key, "error", err)
		}
	}, nil
}
