package kafka_config

import "time"

const (
	DefaultBookingTopic  = "booking.events"
	DefaultSpotTopic     = "spot.events"
	DefaultConsumerGroup = "bookings-worker"
	DefaultDLQSuffix     = ".dlq"

	// Booking events are small and must not be lost, so every in-sync replica acks.
	DefaultProducerMaxAttempts  = 3
	DefaultProducerBatchTimeout = 10 * time.Millisecond
	DefaultProducerRequireAcks  = -1
	DefaultProducerCompression  = "snappy"

	DefaultConsumerStartOffset    = -2 // oldest, a new group must not skip spot deletions
	DefaultConsumerMaxBytes       = 1 << 20
	DefaultConsumerMaxWait        = 500 * time.Millisecond
	DefaultConsumerCommitInterval = time.Second
	DefaultConsumerSessionTimeout = 10 * time.Second
	DefaultConsumerMaxRetries     = 5
	DefaultConsumerRetryBackoff   = time.Second
)
