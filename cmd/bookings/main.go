package main

import (
	"spotbook/internal/bookings/events"
	"spotbook/internal/bookings/handler"
	"spotbook/internal/bookings/repository"
	"spotbook/internal/bookings/service"
	"spotbook/internal/bookings/validator"
	"spotbook/pkg/app"
	"spotbook/pkg/config"
	"spotbook/pkg/kafka"
	kafkamiddleware "spotbook/pkg/kafka/middleware"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Connect()

	cfg.Log.Info("Starting Bookings service")
	stores := repository.NewStores(cfg)
	publisher, producer := initPublisher(cfg)

	bookingService := service.NewBookingService(
		stores.Bookings,
		stores.Locker,
		stores.Spots,
		publisher,
		cfg,
	)

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg,
		handler.NewBookingHandler(bookingService, validator.NewBookingValidator(cfg.Log), cfg.Log),
		handler.NewHealthHandler(cfg.Log, repository.HealthChecks(cfg)...),
	)
	if producer != nil {
		serverApp.OnShutdown(producer)
	}
	serverApp.OnShutdown(stores.Spots)
	serverApp.Run()
}

func initPublisher(cfg *config.Config) (events.EventPublisher, *kafka.Producer) {
	if !cfg.Kafka.Enabled() {
		return events.NewNoopEventPublisher(), nil
	}

	producer, err := kafka.NewProducer(cfg.Kafka, cfg.Log, cfg.Kafka.BookingTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	producer.Use(kafkamiddleware.LoggingProducerMiddleware(cfg.Log))

	return events.NewKafkaEventPublisher(producer, ServiceName, cfg.Log), producer
}
