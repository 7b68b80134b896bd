package config

import "time"

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

const (
	DefaultStoreDriver = DriverMongo
	DefaultLockDriver  = DriverMongo

	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "spotbook"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPostgresDSN = "postgres://postgres@localhost:5432/spotbook?sslmode=disable"

	DefaultRedisAddr = "localhost:6379"
	DefaultRedisDB   = 0

	DefaultLockTTL           = 45 * time.Second // must outlive DefaultRequestTimeout
	DefaultLockWaitTimeout   = 5 * time.Second
	DefaultLockRetryInterval = 25 * time.Millisecond

	DefaultSpotCacheSize = 10000
	DefaultSpotCacheTTL  = 1 * time.Minute

	DefaultBookingTimezone = "UTC"

	DefaultPort = "8080"

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 64 * 1024 // 64KB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)
