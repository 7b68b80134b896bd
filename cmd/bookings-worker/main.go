package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"spotbook/internal/bookings/consumer"
	"spotbook/internal/bookings/repository"
	"spotbook/pkg/config"
	"spotbook/pkg/kafka"
	kafkamiddleware "spotbook/pkg/kafka/middleware"
)

const ServiceName = "bookings-worker"

func main() {
	cfg := config.Load(ServiceName)
	if !cfg.Kafka.Enabled() {
		cfg.Log.Fatal("KAFKA_BROKERS is required for the bookings worker")
	}
	if cfg.StoreDriver == config.DriverMemory {
		cfg.Log.Fatal("The bookings worker needs a shared store, memory is not supported")
	}
	cfg.Connect()
	defer cfg.GracefulShutdown()

	stores := repository.NewStores(cfg)
	defer stores.Spots.Stop()

	handler := consumer.NewSpotEventHandler(stores.Bookings, stores.Locker, stores.Spots, cfg.Log)
	spotConsumer, err := kafka.NewConsumer(cfg.Kafka, cfg.Log, cfg.Kafka.SpotTopic, handler.Handle)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}
	spotConsumer.Use(kafkamiddleware.LoggingConsumerMiddleware(cfg.Log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Log.Info("Starting bookings worker", "topic", cfg.Kafka.SpotTopic, "group", cfg.Kafka.ConsumerGroup)
	if err := spotConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Log.Error("Consumer stopped with error", "error", err)
	}

	if err := spotConsumer.Close(); err != nil {
		cfg.Log.Error("Failed to close consumer", "error", err)
	}
	cfg.Log.Info("Bookings worker stopped")
}
