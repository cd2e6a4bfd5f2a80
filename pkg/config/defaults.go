package config

import "time"

const (
	StorageMemory   = "memory"
	StorageMongo    = "mongo"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"

	IdempotencyMemory = "memory"
	IdempotencyRedis  = "redis"

	PolicyReject   = "reject"
	PolicyWaitlist = "waitlist"
)

const (
	DefaultStorageBackend = StorageMemory

	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "bookly"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPostgresDSN = "host=localhost user=bookly password=bookly dbname=bookly port=5432 sslmode=disable TimeZone=UTC"
	DefaultSQLitePath  = "bookly.db"

	DefaultIdempotencyBackend = IdempotencyMemory
	DefaultRedisAddr          = "localhost:6379"
	DefaultRedisDB            = 0

	DefaultKafkaEnabled         = false
	DefaultKafkaBookingTopic    = "bookings.lifecycle"
	DefaultKafkaBookingDLQTopic = "bookings.lifecycle.dlq"

	DefaultConflictPolicy = PolicyReject
	DefaultCommitTimeout  = 5 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 100
)
