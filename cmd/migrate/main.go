package main

import (
	"context"
	"time"

	mongoMigration "bookly/internal/migrations/mongo"
	sqlMigration "bookly/internal/migrations/sql"
	"bookly/pkg/config"
)

const JobName = "migration"

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	cfg := config.Load(JobName)
	cfg.Connect()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting migration job", "storage_backend", cfg.StorageBackend)

	var err error
	switch cfg.StorageBackend {
	case config.StorageMongo:
		err = mongoMigration.RunMigration(ctx, cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName), cfg.Log)
	case config.StoragePostgres, config.StorageSQLite:
		err = sqlMigration.Migrate(ctx, cfg.Client.SQL, cfg.Log)
	default:
		cfg.Log.Info("Nothing to migrate for this storage backend")
		return
	}
	if err != nil {
		cfg.Log.Error("Migration failed", "error", err)
		cfg.GracefulShutdown()
		cfg.Log.Fatal("Migration job aborted")
	}

	cfg.Log.Info("Migration completed successfully")
}
