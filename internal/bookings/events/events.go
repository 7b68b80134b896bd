package events

import (
	"context"
	"fmt"
	"time"

	"spotbook/pkg/kafka"
	"spotbook/pkg/logger"
	"spotbook/pkg/middleware"
	"spotbook/pkg/model"
)

const (
	TypeBookingCreated   = "booking.created"
	TypeBookingUpdated   = "booking.updated"
	TypeBookingCancelled = "booking.cancelled"
	TypeSpotDeleted      = "spot.deleted"

	schemaVersion = "1"
)

// BookingEvent is the payload of every booking lifecycle message.
type BookingEvent struct {
	BookingID  string    `json:"bookingId"`
	SpotID     string    `json:"spotId"`
	UserID     string    `json:"userId"`
	StartDate  string    `json:"startDate"`
	EndDate    string    `json:"endDate"`
	ActorID    string    `json:"actorId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// SpotDeletedEvent is published by the listings side when a spot goes away.
type SpotDeletedEvent struct {
	SpotID string `json:"spotId"`
}

type EventPublisher interface {
	PublishCreated(ctx context.Context, booking *model.Booking) error
	PublishUpdated(ctx context.Context, booking *model.Booking) error
	PublishCancelled(ctx context.Context, booking *model.Booking, actorID string) error
}

// Publisher is the part of *kafka.Producer the event publisher needs.
type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type kafkaEventPublisher struct {
	producer Publisher
	source   string
	now      func() time.Time
	log      *logger.Logger
}

// NewKafkaEventPublisher keys every message by spot id so a spot's events stay ordered.
func NewKafkaEventPublisher(producer Publisher, source string, log *logger.Logger) EventPublisher {
	return &kafkaEventPublisher{
		producer: producer,
		source:   source,
		now:      time.Now,
		log:      log,
	}
}

func (p *kafkaEventPublisher) PublishCreated(ctx context.Context, booking *model.Booking) error {
	return p.publish(ctx, TypeBookingCreated, booking, booking.UserID)
}

func (p *kafkaEventPublisher) PublishUpdated(ctx context.Context, booking *model.Booking) error {
	return p.publish(ctx, TypeBookingUpdated, booking, booking.UserID)
}

func (p *kafkaEventPublisher) PublishCancelled(ctx context.Context, booking *model.Booking, actorID string) error {
	return p.publish(ctx, TypeBookingCancelled, booking, actorID)
}

func (p *kafkaEventPublisher) publish(ctx context.Context, eventType string, booking *model.Booking, actorID string) error {
	occurredAt := p.now().UTC()

	msg, err := kafka.NewMessage().
		WithKey(booking.SpotID).
		WithEventType(eventType).
		WithSchemaVersion(schemaVersion).
		WithSource(p.source).
		WithCorrelationID(middleware.GetRequestID(ctx)).
		WithTimestamp(occurredAt).
		WithValue(newBookingEvent(booking, actorID, occurredAt)).
		Build()
	if err != nil {
		return fmt.Errorf("build %s event: %w", eventType, err)
	}

	if err := p.producer.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.log.Debug("Booking event published",
		"event_type", eventType,
		"id", booking.ID,
		"spot_id", booking.SpotID,
	)
	return nil
}

func newBookingEvent(b *model.Booking, actorID string, occurredAt time.Time) BookingEvent {
	return BookingEvent{
		BookingID:  b.ID,
		SpotID:     b.SpotID,
		UserID:     b.UserID,
		StartDate:  b.StartDate.Format(model.DateLayout),
		EndDate:    b.EndDate.Format(model.DateLayout),
		ActorID:    actorID,
		OccurredAt: occurredAt,
	}
}

type noopEventPublisher struct{}

// NewNoopEventPublisher is used when no brokers are configured.
func NewNoopEventPublisher() EventPublisher {
	return noopEventPublisher{}
}

func (noopEventPublisher) PublishCreated(context.Context, *model.Booking) error { return nil }

func (noopEventPublisher) PublishUpdated(context.Context, *model.Booking) error { return nil }

func (noopEventPublisher) PublishCancelled(context.Context, *model.Booking, string) error {
	return nil
}
