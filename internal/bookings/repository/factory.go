package repository

import (
	"context"

	"spotbook/pkg/config"
	"spotbook/pkg/contracts"
)

// Stores is the persistence wired for the configured drivers.
type Stores struct {
	Bookings BookingRepository
	Locker   SpotLocker
	Spots    *CachedSpotDirectory
	// MemorySpots is set only for the memory driver, where spots are registered in process.
	MemorySpots *MemorySpotDirectory
}

// NewStores expects cfg.Connect to have opened the backends the drivers need.
func NewStores(cfg *config.Config) Stores {
	var stores Stores
	var spots SpotDirectory

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		stores.Bookings = NewPostgresBookingRepository(cfg)
		spots = NewPostgresSpotDirectory(cfg)
	case config.DriverMemory:
		stores.Bookings = NewMemoryBookingRepository()
		stores.MemorySpots = NewMemorySpotDirectory()
		spots = stores.MemorySpots
	default:
		stores.Bookings = NewMongoBookingRepository(cfg)
		spots = NewMongoSpotDirectory(cfg)
	}

	switch cfg.LockDriver {
	case config.DriverRedis:
		stores.Locker = NewRedisSpotLocker(cfg)
	case config.DriverMemory:
		stores.Locker = NewMemorySpotLocker(cfg.LockWaitTimeout)
	default:
		stores.Locker = NewMongoSpotLocker(cfg)
	}

	stores.Spots = NewCachedSpotDirectory(spots, cfg.SpotCacheSize, cfg.SpotCacheTTL)

	cfg.Log.Info("Booking stores initialized",
		"store_driver", cfg.StoreDriver,
		"lock_driver", cfg.LockDriver,
	)
	return stores
}

// HealthChecks returns a ping per backend cfg has open.
func HealthChecks(cfg *config.Config) []contracts.HealthCheck {
	var checks []contracts.HealthCheck
	if c := cfg.Client.Mongo; c != nil {
		checks = append(checks, contracts.HealthCheck{
			Name: "mongo",
			Ping: func(ctx context.Context) error { return c.Ping(ctx, nil) },
		})
	}
	if p := cfg.Client.Postgres; p != nil {
		checks = append(checks, contracts.HealthCheck{
			Name: "postgres",
			Ping: p.Ping,
		})
	}
	if r := cfg.Client.Redis; r != nil {
		checks = append(checks, contracts.HealthCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return r.Ping(ctx).Err() },
		})
	}
	return checks
}
