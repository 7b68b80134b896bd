package repository

import (
	"context"
	"fmt"
	"time"

	bookingserrors "spotbook/internal/bookings/errors"
	"spotbook/pkg/model"

	"github.com/google/uuid"
)

// TxFunc runs inside ExecuteTransaction. Repository calls made with the ctx it
// receives join the transaction.
type TxFunc func(ctx context.Context) error

type BookingRepository interface {
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	ListBySpot(ctx context.Context, spotID string) ([]*model.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Booking, error)
	Create(ctx context.Context, booking *model.Booking) error
	UpdateDates(ctx context.Context, id string, start, end, updatedAt time.Time) (*model.Booking, error)
	Delete(ctx context.Context, id string) error
	DeleteBySpot(ctx context.Context, spotID string) (int64, error)
	ExecuteTransaction(ctx context.Context, fn TxFunc) error
}

// SpotLocker serializes booking writes per spot. Acquire blocks until the lock is
// held, the wait budget runs out, or ctx is done. The returned token must be passed
// to Release.
type SpotLocker interface {
	Acquire(ctx context.Context, spotID string) (string, error)
	Release(ctx context.Context, spotID, token string) error
}

type SpotDirectory interface {
	GetOwner(ctx context.Context, spotID string) (string, error)
}

// FreshOwner looks spotID up without trusting a cached owner.
func FreshOwner(ctx context.Context, spots SpotDirectory, spotID string) (string, error) {
	if cached, ok := spots.(interface {
		Refresh(ctx context.Context, spotID string) (string, error)
	}); ok {
		return cached.Refresh(ctx, spotID)
	}
	return spots.GetOwner(ctx, spotID)
}

// withTimeout bounds ctx by timeout unless it already has a tighter deadline.
// Transactional contexts are returned as is.
func withTimeout(ctx context.Context, timeout time.Duration, inTx bool) (context.Context, context.CancelFunc) {
	if inTx {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

// newBookingID mints the id every store keys bookings by, so ids survive a
// change of StoreDriver.
func newBookingID() string {
	return uuid.NewString()
}

// checkBookingID rejects ids no store could have issued before a round trip.
func checkBookingID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}
	return nil
}
