package kafka_config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"spotbook/pkg/logger"
)

type ProducerConfig struct {
	MaxAttempts  int
	BatchTimeout time.Duration
	RequireAcks  int    // -1 all, 0 none, 1 leader
	Compression  string // none, gzip, snappy, lz4, zstd
}

type ConsumerConfig struct {
	StartOffset    int64 // -1 newest, -2 oldest
	MaxBytes       int
	MaxWait        time.Duration
	CommitInterval time.Duration
	SessionTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
}

// Config carries every Kafka setting of the bookings services. No brokers
// means event streaming is switched off.
type Config struct {
	Brokers []string

	BookingTopic  string
	SpotTopic     string
	ConsumerGroup string
	DLQSuffix     string

	Producer ProducerConfig
	Consumer ConsumerConfig
}

// Load reads the Kafka settings from the environment and validates them.
func Load() (*Config, error) {
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func FromEnv() *Config {
	return &Config{
		Brokers: splitList(os.Getenv(EnvKafkaBrokers)),

		BookingTopic:  getEnvStr(EnvKafkaBookingTopic, DefaultBookingTopic),
		SpotTopic:     getEnvStr(EnvKafkaSpotTopic, DefaultSpotTopic),
		ConsumerGroup: getEnvStr(EnvKafkaConsumerGroup, DefaultConsumerGroup),
		DLQSuffix:     getEnvStr(EnvKafkaDLQSuffix, DefaultDLQSuffix),

		Producer: ProducerConfig{
			MaxAttempts:  getEnvInt(EnvKafkaProducerMaxAttempts, DefaultProducerMaxAttempts),
			BatchTimeout: getEnvDuration(EnvKafkaProducerBatchTimeout, DefaultProducerBatchTimeout),
			RequireAcks:  getEnvInt(EnvKafkaProducerRequireAcks, DefaultProducerRequireAcks),
			Compression:  strings.ToLower(getEnvStr(EnvKafkaProducerCompression, DefaultProducerCompression)),
		},
		Consumer: ConsumerConfig{
			StartOffset:    int64(getEnvInt(EnvKafkaConsumerStartOffset, DefaultConsumerStartOffset)),
			MaxBytes:       getEnvInt(EnvKafkaConsumerMaxBytes, DefaultConsumerMaxBytes),
			MaxWait:        getEnvDuration(EnvKafkaConsumerMaxWait, DefaultConsumerMaxWait),
			CommitInterval: getEnvDuration(EnvKafkaConsumerCommitInterval, DefaultConsumerCommitInterval),
			SessionTimeout: getEnvDuration(EnvKafkaConsumerSessionTimeout, DefaultConsumerSessionTimeout),
			MaxRetries:     getEnvInt(EnvKafkaConsumerMaxRetries, DefaultConsumerMaxRetries),
			RetryBackoff:   getEnvDuration(EnvKafkaConsumerRetryBackoff, DefaultConsumerRetryBackoff),
		},
	}
}

func (cfg *Config) Enabled() bool {
	return cfg != nil && len(cfg.Brokers) > 0
}

// DLQTopic names the dead letter topic paired with topic.
func (cfg *Config) DLQTopic(topic string) string {
	if cfg.DLQSuffix == "" {
		return ""
	}
	return topic + cfg.DLQSuffix
}

// Validate only checks the settings when streaming is enabled.
func (cfg *Config) Validate() error {
	if !cfg.Enabled() {
		return nil
	}

	var errors []string

	if cfg.BookingTopic == "" {
		errors = append(errors, "BookingTopic cannot be empty")
	}
	if cfg.SpotTopic == "" {
		errors = append(errors, "SpotTopic cannot be empty")
	}
	if cfg.ConsumerGroup == "" {
		errors = append(errors, "ConsumerGroup cannot be empty")
	}

	p := cfg.Producer
	if p.MaxAttempts <= 0 {
		errors = append(errors, fmt.Sprintf("Producer.MaxAttempts must be positive, got: %d", p.MaxAttempts))
	}
	if p.BatchTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("Producer.BatchTimeout must be positive, got: %s", p.BatchTimeout))
	}
	switch p.RequireAcks {
	case -1, 0, 1:
	default:
		errors = append(errors, fmt.Sprintf("Producer.RequireAcks must be -1, 0, or 1, got: %d", p.RequireAcks))
	}
	switch p.Compression {
	case "none", "gzip", "snappy", "lz4", "zstd":
	default:
		errors = append(errors, fmt.Sprintf("Producer.Compression must be one of [none, gzip, snappy, lz4, zstd], got: %s", p.Compression))
	}

	c := cfg.Consumer
	if c.StartOffset != -1 && c.StartOffset != -2 {
		errors = append(errors, fmt.Sprintf("Consumer.StartOffset must be -1 (newest) or -2 (oldest), got: %d", c.StartOffset))
	}
	if c.MaxBytes <= 0 {
		errors = append(errors, fmt.Sprintf("Consumer.MaxBytes must be positive, got: %d", c.MaxBytes))
	}
	if c.MaxWait <= 0 || c.CommitInterval <= 0 || c.SessionTimeout <= 0 {
		errors = append(errors, "Consumer.MaxWait, CommitInterval and SessionTimeout must be positive")
	}
	if c.MaxRetries < 0 {
		errors = append(errors, fmt.Sprintf("Consumer.MaxRetries cannot be negative, got: %d", c.MaxRetries))
	}
	if c.RetryBackoff < 0 {
		errors = append(errors, fmt.Sprintf("Consumer.RetryBackoff cannot be negative, got: %s", c.RetryBackoff))
	}

	if len(errors) > 0 {
		return fmt.Errorf("kafka configuration validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

func (cfg *Config) LogConfiguration(log *logger.Logger) {
	if !cfg.Enabled() {
		log.Info("Kafka disabled, no brokers configured")
		return
	}
	log.Info("Kafka configuration loaded successfully",
		"brokers", cfg.Brokers,
		"booking_topic", cfg.BookingTopic,
		"spot_topic", cfg.SpotTopic,
		"consumer_group", cfg.ConsumerGroup,
		"dlq_suffix", cfg.DLQSuffix,
		"producer_require_acks", cfg.Producer.RequireAcks,
		"producer_compression", cfg.Producer.Compression,
		"consumer_start_offset", cfg.Consumer.StartOffset,
		"consumer_max_retries", cfg.Consumer.MaxRetries,
	)
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func getEnvStr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
