package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	bookingserrors "spotbook/internal/bookings/errors"
)

const maxLockBackoff = 250 * time.Millisecond

type LockConfig struct {
	TTL           time.Duration
	WaitTimeout   time.Duration
	RetryInterval time.Duration
}

// tryLockFunc makes one attempt. It returns false with a nil error when the lock is
// held by someone else.
type tryLockFunc func(ctx context.Context) (bool, error)

// waitForLock retries try with jittered exponential backoff until it succeeds, fails,
// or the wait budget is spent.
func waitForLock(ctx context.Context, cfg LockConfig, spotID string, try tryLockFunc) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.WaitTimeout)
	defer cancel()

	delay := cfg.RetryInterval
	for {
		ok, err := try(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: spot %s", bookingserrors.ErrLockNotAcquired, spotID)
			}
			return err
		}
		if ok {
			return nil
		}

		sleep := delay/2 + rand.N(delay/2+1)
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: spot %s", bookingserrors.ErrLockNotAcquired, spotID)
		case <-timer.C:
		}

		delay = min(delay*2, maxLockBackoff)
	}
}
