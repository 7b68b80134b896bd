package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	bookingserrors "spotbook/internal/bookings/errors"
	"spotbook/pkg/model"

	"github.com/google/uuid"
)

// MemoryBookingRepository keeps bookings in process. ExecuteTransaction gives no
// rollback; each call is atomic on its own and writes are serialized by a SpotLocker.
type MemoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*model.Booking
}

func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{bookings: make(map[string]*model.Booking)}
}

func (r *MemoryBookingRepository) FindByID(_ context.Context, id string) (*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	return clone(b), nil
}

func (r *MemoryBookingRepository) ListBySpot(_ context.Context, spotID string) ([]*model.Booking, error) {
	return r.filter(func(b *model.Booking) bool { return b.SpotID == spotID }), nil
}

func (r *MemoryBookingRepository) ListByUser(_ context.Context, userID string) ([]*model.Booking, error) {
	return r.filter(func(b *model.Booking) bool { return b.UserID == userID }), nil
}

func (r *MemoryBookingRepository) filter(keep func(*model.Booking) bool) []*model.Booking {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*model.Booking{}
	for _, b := range r.bookings {
		if keep(b) {
			out = append(out, clone(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartDate.Before(out[j].StartDate)
	})
	return out
}

func (r *MemoryBookingRepository) Create(_ context.Context, booking *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if booking.ID == "" {
		booking.ID = newBookingID()
	}
	if _, exists := r.bookings[booking.ID]; exists {
		return fmt.Errorf("booking %s already exists", booking.ID)
	}
	r.bookings[booking.ID] = clone(booking)
	return nil
}

func (r *MemoryBookingRepository) UpdateDates(_ context.Context, id string, start, end, updatedAt time.Time) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	b.StartDate = start
	b.EndDate = end
	b.UpdatedAt = updatedAt
	return clone(b), nil
}

func (r *MemoryBookingRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[id]; !ok {
		return bookingserrors.ErrNotFound
	}
	delete(r.bookings, id)
	return nil
}

func (r *MemoryBookingRepository) DeleteBySpot(_ context.Context, spotID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, b := range r.bookings {
		if b.SpotID == spotID {
			delete(r.bookings, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryBookingRepository) ExecuteTransaction(ctx context.Context, fn TxFunc) error {
	return fn(ctx)
}

func clone(b *model.Booking) *model.Booking {
	c := *b
	return &c
}

// MemorySpotLocker holds one single-slot channel per spot.
type MemorySpotLocker struct {
	mu      sync.Mutex
	slots   map[string]chan struct{}
	holders map[string]string
	wait    time.Duration
}

func NewMemorySpotLocker(waitTimeout time.Duration) *MemorySpotLocker {
	return &MemorySpotLocker{
		slots:   make(map[string]chan struct{}),
		holders: make(map[string]string),
		wait:    waitTimeout,
	}
}

func (l *MemorySpotLocker) slot(spotID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[spotID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[spotID] = ch
	}
	return ch
}

func (l *MemorySpotLocker) Acquire(ctx context.Context, spotID string) (string, error) {
	ch := l.slot(spotID)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
	case <-timer.C:
		return "", fmt.Errorf("%w: spot %s", bookingserrors.ErrLockNotAcquired, spotID)
	case <-ctx.Done():
		return "", fmt.Errorf("%w: spot %s", bookingserrors.ErrLockNotAcquired, spotID)
	}

	token := uuid.NewString()
	l.mu.Lock()
	l.holders[spotID] = token
	l.mu.Unlock()
	return token, nil
}

func (l *MemorySpotLocker) Release(_ context.Context, spotID, token string) error {
	l.mu.Lock()
	if l.holders[spotID] != token {
		l.mu.Unlock()
		return nil
	}
	delete(l.holders, spotID)
	ch := l.slots[spotID]
	l.mu.Unlock()

	<-ch
	return nil
}

type MemorySpotDirectory struct {
	mu     sync.RWMutex
	owners map[string]string
}

func NewMemorySpotDirectory() *MemorySpotDirectory {
	return &MemorySpotDirectory{owners: make(map[string]string)}
}

func (d *MemorySpotDirectory) Put(spot model.Spot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owners[spot.ID] = spot.OwnerID
}

func (d *MemorySpotDirectory) Remove(spotID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.owners, spotID)
}

func (d *MemorySpotDirectory) GetOwner(_ context.Context, spotID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	owner, ok := d.owners[spotID]
	if !ok {
		return "", bookingserrors.ErrSpotNotFound
	}
	return owner, nil
}
