package consumer

import (
	"context"
	"time"

	"spotbook/internal/bookings/events"
	"spotbook/internal/bookings/repository"
	"spotbook/pkg/kafka"
	"spotbook/pkg/logger"
)

// SpotCache drops a cached spot owner.
type SpotCache interface {
	Invalidate(spotID string)
}

const lockReleaseTimeout = 2 * time.Second

// SpotEventHandler cascades spot deletions onto the spot's bookings. The cascade
// holds the spot lock, so a booking write already past its spot check commits
// first and is deleted with the rest.
type SpotEventHandler struct {
	repo   repository.BookingRepository
	locker repository.SpotLocker
	cache  SpotCache
	log    *logger.Logger
}

func NewSpotEventHandler(repo repository.BookingRepository, locker repository.SpotLocker, cache SpotCache, log *logger.Logger) *SpotEventHandler {
	return &SpotEventHandler{
		repo:   repo,
		locker: locker,
		cache:  cache,
		log:    log,
	}
}

// Handle is a kafka.MessageHandler. Store failures are retried; malformed events are not.
func (h *SpotEventHandler) Handle(ctx context.Context, msg kafka.Message) error {
	if msg.GetEventType() != events.TypeSpotDeleted {
		h.log.Debug("Ignoring spot event", "event_type", msg.GetEventType(), "event_id", msg.GetEventID())
		return nil
	}

	var event events.SpotDeletedEvent
	if err := msg.DecodeValue(&event); err != nil {
		return err
	}
	if event.SpotID == "" {
		return kafka.NewPermanentError("spot.deleted event without spotId", nil)
	}

	if h.cache != nil {
		h.cache.Invalidate(event.SpotID)
	}

	deleted, err := h.deleteBookings(ctx, event.SpotID)
	if err != nil {
		return kafka.NewTransientError("failed to delete bookings of spot "+event.SpotID, err)
	}

	h.log.Info("Deleted bookings of removed spot",
		"spot_id", event.SpotID,
		"deleted", deleted,
		"event_id", msg.GetEventID(),
		"correlation_id", msg.GetCorrelationID(),
	)
	return nil
}

func (h *SpotEventHandler) deleteBookings(ctx context.Context, spotID string) (int64, error) {
	token, err := h.locker.Acquire(ctx, spotID)
	if err != nil {
		return 0, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
		defer cancel()
		if err := h.locker.Release(releaseCtx, spotID, token); err != nil {
			h.log.Warn("Failed to release spot lock", "spot_id", spotID, "error", err)
		}
	}()

	return h.repo.DeleteBySpot(ctx, spotID)
}
