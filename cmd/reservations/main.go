package main

import (
	"context"
	"time"

	sqlMigration "bookly/internal/migrations/sql"
	"bookly/internal/reservations/events"
	"bookly/internal/reservations/handler"
	"bookly/internal/reservations/repository"
	"bookly/internal/reservations/service"
	"bookly/internal/reservations/validator"
	"bookly/pkg/app"
	"bookly/pkg/config"
	"bookly/pkg/kafka"
	kafka_config "bookly/pkg/kafka/config"
	kafka_middleware "bookly/pkg/kafka/middleware"
)

const (
	ServiceName = "reservations"
	warmTimeout = 2 * time.Minute
)

func main() {
	cfg := config.Load(ServiceName)
	cfg.Connect()

	cfg.Log.Info("Starting Reservations service")
	serverApp := app.NewApplication(cfg)

	notifier := initNotifier(cfg, serverApp)
	reservationService, reservationValidator := initServices(cfg, notifier)

	ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
	if err := reservationService.Warm(ctx); err != nil {
		cfg.Log.Warn("Some availability indexes failed to load, they will load on first use", "error", err)
	}
	cancel()

	serverApp.SetApp(
		handler.NewHealthHandler(reservationService, cfg.Log),
		handler.NewResourceHandler(reservationService, cfg.Log),
		handler.NewBookingHandler(reservationService, reservationValidator, cfg.Log),
	)
	serverApp.OnShutdown(cfg.GracefulShutdown)
	serverApp.Run()
}

func initServices(cfg *config.Config, notifier events.Notifier) (service.ReservationService, *validator.ReservationValidator) {
	bookingRepo, resourceRepo := initRepositories(cfg)
	reservationValidator := validator.NewReservationValidator(cfg.Log)
	reservationService := service.NewReservationService(
		bookingRepo,
		resourceRepo,
		notifier,
		reservationValidator,
		cfg,
	)

	cfg.Log.Info("Reservation service initialized",
		"storage_backend", cfg.StorageBackend,
		"conflict_policy", cfg.ConflictPolicy,
	)
	return reservationService, reservationValidator
}

func initRepositories(cfg *config.Config) (repository.BookingRepository, repository.ResourceRepository) {
	switch cfg.StorageBackend {
	case config.StorageMongo:
		return repository.NewMongoBookingRepository(cfg), repository.NewMongoResourceRepository(cfg)
	case config.StoragePostgres, config.StorageSQLite:
		if cfg.StorageBackend == config.StorageSQLite {
			// The embedded database has no separate migration job.
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := sqlMigration.Migrate(ctx, cfg.Client.SQL, cfg.Log); err != nil {
				cfg.Log.Fatal("SQLite migration failed", "error", err)
			}
		}
		return repository.NewGormBookingRepository(cfg.Client.SQL), repository.NewGormResourceRepository(cfg.Client.SQL)
	default:
		cfg.Log.Warn("Using in-memory storage, bookings are lost on restart")
		return repository.NewMemoryBookingRepository(), repository.NewMemoryResourceRepository()
	}
}

func initNotifier(cfg *config.Config, serverApp *app.Application) events.Notifier {
	if !cfg.KafkaEnabled {
		return events.NewNoopNotifier()
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.Log, cfg.KafkaBookingTopic, cfg.KafkaBookingDLQTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	if kafkaCfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log.Component("kafka")))
	}
	serverApp.OnShutdown(func() {
		if err := producer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka producer", "error", err)
		}
	})

	cfg.Log.Info("Booking events enabled", "topic", cfg.KafkaBookingTopic, "dlq_topic", cfg.KafkaBookingDLQTopic)
	return events.NewKafkaNotifier(producer, ServiceName)
}
