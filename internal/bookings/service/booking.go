package service

import (
	"context"
	"errors"
	"sort"
	"time"

	bookingserrors "spotbook/internal/bookings/errors"
	"spotbook/internal/bookings/events"
	"spotbook/internal/bookings/interval"
	"spotbook/internal/bookings/repository"
	"spotbook/internal/bookings/validator"
	"spotbook/pkg/config"
	apperrors "spotbook/pkg/errors"
	"spotbook/pkg/logger"
	"spotbook/pkg/model"
)

const (
	lockReleaseTimeout = 2 * time.Second

	// lockLeaseMargin is kept back from the lock TTL for commit and clock skew
	// between this process and the lock store.
	lockLeaseMargin = 2 * time.Second
)

type BookingService interface {
	Create(ctx context.Context, spotID, userID string, start, end time.Time) (*model.Booking, error)
	Edit(ctx context.Context, bookingID, requesterID string, start, end time.Time) (*model.Booking, error)
	Cancel(ctx context.Context, bookingID, requesterID string) error
	// ListForSpot returns full bookings to the spot owner and redacted views to anyone else.
	ListForSpot(ctx context.Context, spotID, requesterID string) ([]*model.Booking, []model.BookingView, error)
	ListForUser(ctx context.Context, userID string) ([]*model.Booking, error)
}

type Option func(*bookingService)

// WithClock replaces time.Now. "Today" is the clock's date in the configured location.
func WithClock(now func() time.Time) Option {
	return func(s *bookingService) {
		s.now = now
	}
}

type bookingService struct {
	repo      repository.BookingRepository
	locker    repository.SpotLocker
	spots     repository.SpotDirectory
	publisher events.EventPublisher
	log       *logger.Logger
	location  *time.Location
	lockTTL   time.Duration
	now       func() time.Time
}

func NewBookingService(
	repo repository.BookingRepository,
	locker repository.SpotLocker,
	spots repository.SpotDirectory,
	publisher events.EventPublisher,
	cfg *config.Config,
	opts ...Option,
) BookingService {
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	if publisher == nil {
		publisher = events.NewNoopEventPublisher()
	}

	s := &bookingService{
		repo:      repo,
		locker:    locker,
		spots:     spots,
		publisher: publisher,
		log:       cfg.Log,
		location:  location,
		lockTTL:   cfg.LockTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *bookingService) Create(ctx context.Context, spotID, userID string, start, end time.Time) (*model.Booking, error) {
	if spotID == "" || userID == "" {
		return nil, apperrors.InvalidInput("Spot ID and user ID are required")
	}

	iv, err := s.bookableRange(start, end)
	if err != nil {
		return nil, err
	}

	owner, err := s.spotOwner(ctx, spotID)
	if err != nil {
		return nil, err
	}
	if owner == userID {
		s.log.Warn("Owner tried to book own spot", "spot_id", spotID, "user_id", userID)
		return nil, apperrors.SelfBookingForbidden(spotID)
	}

	now := s.now().UTC()
	booking := &model.Booking{
		SpotID:    spotID,
		UserID:    userID,
		StartDate: iv.Start,
		EndDate:   iv.End,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.withSpotLock(ctx, spotID, func(txCtx context.Context) error {
		if _, err := s.freshSpotOwner(txCtx, spotID); err != nil {
			return err
		}
		existing, err := s.repo.ListBySpot(txCtx, spotID)
		if err != nil {
			return apperrors.Internal("Failed to load existing bookings", err)
		}
		if err := s.checkConflicts(spotID, iv, existing, ""); err != nil {
			return err
		}
		return s.repo.Create(txCtx, booking)
	})
	if err != nil {
		err = s.explainRaceLoss(ctx, spotID, iv, "", err)
		s.logFailure("Failed to create booking", err, "spot_id", spotID, "user_id", userID)
		return nil, s.storeError(err, "Failed to create booking")
	}

	s.log.Info("Booking created successfully",
		"id", booking.ID,
		"spot_id", spotID,
		"user_id", userID,
		"start_date", iv.Start.Format(model.DateLayout),
		"end_date", iv.End.Format(model.DateLayout),
	)

	if err := s.publisher.PublishCreated(ctx, booking); err != nil {
		s.log.Error("Failed to publish booking event", "id", booking.ID, "error", err)
	}
	return booking, nil
}

func (s *bookingService) Edit(ctx context.Context, bookingID, requesterID string, start, end time.Time) (*model.Booking, error) {
	if bookingID == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	existing, err := s.findBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if existing.UserID != requesterID {
		s.log.Warn("Edit of another user's booking rejected", "id", bookingID, "requester_id", requesterID)
		return nil, apperrors.Forbidden("Booking must belong to the current user")
	}

	iv, err := s.bookableRange(start, end)
	if err != nil {
		return nil, err
	}

	if err := s.requirePending(existing, "Bookings that have started can't be modified"); err != nil {
		return nil, err
	}

	var updated *model.Booking
	err = s.withSpotLock(ctx, existing.SpotID, func(txCtx context.Context) error {
		current, err := s.findBooking(txCtx, bookingID)
		if err != nil {
			return err
		}
		if err := s.requirePending(current, "Bookings that have started can't be modified"); err != nil {
			return err
		}

		others, err := s.repo.ListBySpot(txCtx, current.SpotID)
		if err != nil {
			return apperrors.Internal("Failed to load existing bookings", err)
		}
		if err := s.checkConflicts(current.SpotID, iv, others, current.ID); err != nil {
			return err
		}

		updated, err = s.repo.UpdateDates(txCtx, bookingID, iv.Start, iv.End, s.now().UTC())
		return err
	})
	if err != nil {
		err = s.explainRaceLoss(ctx, existing.SpotID, iv, bookingID, err)
		s.logFailure("Failed to edit booking", err, "id", bookingID)
		return nil, s.storeError(err, "Failed to update booking")
	}

	s.log.Info("Booking updated successfully",
		"id", bookingID,
		"spot_id", updated.SpotID,
		"start_date", iv.Start.Format(model.DateLayout),
		"end_date", iv.End.Format(model.DateLayout),
	)

	if err := s.publisher.PublishUpdated(ctx, updated); err != nil {
		s.log.Error("Failed to publish booking event", "id", bookingID, "error", err)
	}
	return updated, nil
}

func (s *bookingService) Cancel(ctx context.Context, bookingID, requesterID string) error {
	if bookingID == "" {
		return apperrors.InvalidInput("Booking ID cannot be empty")
	}

	existing, err := s.findBooking(ctx, bookingID)
	if err != nil {
		return err
	}

	owner, err := s.spotOwner(ctx, existing.SpotID)
	if err != nil {
		return err
	}
	if requesterID != existing.UserID && requesterID != owner {
		s.log.Warn("Cancel by unrelated user rejected", "id", bookingID, "requester_id", requesterID)
		return apperrors.Forbidden("Booking must belong to the current user or the spot owner")
	}

	if err := s.requirePending(existing, "Bookings that have started can't be deleted"); err != nil {
		return err
	}

	err = s.withSpotLock(ctx, existing.SpotID, func(txCtx context.Context) error {
		if _, err := s.findBooking(txCtx, bookingID); err != nil {
			return err
		}
		if err := s.repo.Delete(txCtx, bookingID); err != nil {
			return s.storeError(err, "Failed to delete booking")
		}
		return nil
	})
	if err != nil {
		s.logFailure("Failed to cancel booking", err, "id", bookingID)
		return s.storeError(err, "Failed to delete booking")
	}

	s.log.Info("Booking cancelled successfully",
		"id", bookingID,
		"spot_id", existing.SpotID,
		"requester_id", requesterID,
	)

	if err := s.publisher.PublishCancelled(ctx, existing, requesterID); err != nil {
		s.log.Error("Failed to publish booking event", "id", bookingID, "error", err)
	}
	return nil
}

func (s *bookingService) ListForSpot(ctx context.Context, spotID, requesterID string) ([]*model.Booking, []model.BookingView, error) {
	owner, err := s.spotOwner(ctx, spotID)
	if err != nil {
		return nil, nil, err
	}

	bookings, err := s.repo.ListBySpot(ctx, spotID)
	if err != nil {
		s.log.Error("Failed to list spot bookings", "spot_id", spotID, "error", err)
		return nil, nil, apperrors.Internal("Failed to retrieve bookings", err)
	}
	sortByStart(bookings)

	if owner == requesterID {
		return bookings, nil, nil
	}

	views := make([]model.BookingView, 0, len(bookings))
	for _, b := range bookings {
		views = append(views, b.View())
	}
	return nil, views, nil
}

func (s *bookingService) ListForUser(ctx context.Context, userID string) ([]*model.Booking, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("User ID cannot be empty")
	}

	bookings, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		s.log.Error("Failed to list user bookings", "user_id", userID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve bookings", err)
	}
	sortByStart(bookings)

	s.log.Debug("User bookings listed", "user_id", userID, "count", len(bookings))
	return bookings, nil
}

// --- Helpers ---

func (s *bookingService) today() time.Time {
	return interval.Date(s.now().In(s.location))
}

// bookableRange normalizes [start, end) and rejects empty, inverted and past ranges.
func (s *bookingService) bookableRange(start, end time.Time) (interval.Interval, error) {
	iv, err := interval.New(start, end)
	if err != nil {
		return interval.Interval{}, apperrors.InvalidRange("endDate cannot be on or before startDate")
	}
	if iv.Start.Before(s.today()) {
		return interval.Interval{}, apperrors.InvalidRange("startDate cannot be in the past")
	}
	return iv, nil
}

func (s *bookingService) requirePending(b *model.Booking, message string) error {
	if b.State(s.today()) != model.BookingPending {
		return apperrors.AlreadyStarted(message)
	}
	return nil
}

func (s *bookingService) checkConflicts(spotID string, iv interval.Interval, existing []*model.Booking, excludeID string) error {
	conflicts := validator.FindConflictsForSpot(spotID, iv, existing, excludeID)
	if len(conflicts) == 0 {
		return nil
	}

	first := conflicts[0]
	s.log.Info("Booking dates conflict",
		"spot_id", spotID,
		"requested", iv.String(),
		"conflicting_id", first.BookingID,
		"conflicts", len(conflicts),
	)
	return apperrors.BookingConflict(first.BookingID, first.StartDate, first.EndDate)
}

func (s *bookingService) findBooking(ctx context.Context, id string) (*model.Booking, error) {
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) || errors.Is(err, bookingserrors.ErrInvalidID) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}
	return booking, nil
}

func (s *bookingService) spotOwner(ctx context.Context, spotID string) (string, error) {
	owner, err := s.spots.GetOwner(ctx, spotID)
	if err != nil {
		return "", s.spotError(err, spotID)
	}
	return owner, nil
}

// freshSpotOwner bypasses the owner cache. Writes call it under the spot lock so a
// spot deleted since the first lookup takes no new bookings.
func (s *bookingService) freshSpotOwner(ctx context.Context, spotID string) (string, error) {
	owner, err := repository.FreshOwner(ctx, s.spots, spotID)
	if err != nil {
		return "", s.spotError(err, spotID)
	}
	return owner, nil
}

func (s *bookingService) spotError(err error, spotID string) error {
	if errors.Is(err, bookingserrors.ErrSpotNotFound) {
		return apperrors.NotFoundWithID("Spot", spotID)
	}
	s.log.Error("Failed to look up spot", "spot_id", spotID, "error", err)
	return apperrors.Internal("Failed to retrieve spot", err)
}

// withSpotLock runs fn in a transaction while holding the spot's lock. The
// transaction must finish before the lease can expire, so its context is bounded
// by the lock TTL. The lock is released on a context detached from ctx so a
// cancelled request still frees it.
func (s *bookingService) withSpotLock(ctx context.Context, spotID string, fn repository.TxFunc) error {
	token, err := s.locker.Acquire(ctx, spotID)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
		defer cancel()
		if err := s.locker.Release(releaseCtx, spotID, token); err != nil {
			s.log.Warn("Failed to release spot lock", "spot_id", spotID, "error", err)
		}
	}()

	txCtx := ctx
	if s.lockTTL > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, leaseBudget(s.lockTTL))
		defer cancel()
	}
	return s.repo.ExecuteTransaction(txCtx, fn)
}

func leaseBudget(ttl time.Duration) time.Duration {
	if ttl > 2*lockLeaseMargin {
		return ttl - lockLeaseMargin
	}
	return ttl / 2
}

// explainRaceLoss replaces a store-level overlap rejection with the Conflict the
// validator would have reported, naming the booking that won the race.
func (s *bookingService) explainRaceLoss(ctx context.Context, spotID string, iv interval.Interval, excludeID string, err error) error {
	if !errors.Is(err, bookingserrors.ErrTimeConflict) {
		return err
	}
	existing, listErr := s.repo.ListBySpot(ctx, spotID)
	if listErr != nil {
		s.log.Warn("Failed to load the conflicting booking", "spot_id", spotID, "error", listErr)
		return err
	}
	if conflict := s.checkConflicts(spotID, iv, existing, excludeID); conflict != nil {
		return conflict
	}
	return err
}

// storeError maps repository and lock sentinels onto AppErrors. AppErrors pass through.
func (s *bookingService) storeError(err error, message string) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, bookingserrors.ErrTimeConflict):
		return apperrors.Conflict("Sorry, this spot is already booked for the specified dates")
	case errors.Is(err, bookingserrors.ErrNotFound):
		return apperrors.NotFound("Booking")
	case errors.Is(err, bookingserrors.ErrSpotNotFound):
		return apperrors.NotFound("Spot")
	case errors.Is(err, bookingserrors.ErrLockNotAcquired):
		return apperrors.Timeout("The spot is busy, please retry")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Timeout("The request took too long, please retry")
	default:
		return apperrors.Internal(message, err)
	}
}

func (s *bookingService) logFailure(msg string, err error, args ...any) {
	args = append(args, "error", err)
	if apperrors.HasCode(err, apperrors.CodeInternal) || !apperrors.IsAppError(err) {
		s.log.Error(msg, args...)
		return
	}
	s.log.Debug(msg, args...)
}

func sortByStart(bookings []*model.Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		return bookings[i].StartDate.Before(bookings[j].StartDate)
	})
}
