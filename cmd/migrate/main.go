package main

import (
	"context"
	"time"

	mongoMigration "spotbook/internal/migrations/mongo"
	postgresMigration "spotbook/internal/migrations/postgres"
	"spotbook/pkg/config"
)

const JobName = "migrate"

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	cfg := config.Load(JobName)
	cfg.Connect()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting migration job", "store_driver", cfg.StoreDriver, "lock_driver", cfg.LockDriver)

	if cfg.Client.Mongo != nil {
		if err := mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.Log); err != nil {
			cfg.Log.Fatal("Mongo migration failed", "error", err)
		}
	}
	if cfg.Client.Postgres != nil {
		if err := postgresMigration.RunMigration(ctx, cfg.Client.Postgres, cfg.Log); err != nil {
			cfg.Log.Fatal("Postgres migration failed", "error", err)
		}
	}

	cfg.Log.Info("Migration completed successfully")
}
