package main

import (
	capacityrepository "slotkeeper/internal/capacity/repository"
	capacityservice "slotkeeper/internal/capacity/service"
	"slotkeeper/internal/holds/handler"
	"slotkeeper/internal/holds/repository"
	"slotkeeper/internal/holds/service"
	"slotkeeper/internal/holds/validator"
	"slotkeeper/pkg/app"
	"slotkeeper/pkg/client"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	"slotkeeper/pkg/contracts"
	"slotkeeper/pkg/events"
	"slotkeeper/pkg/kafka"
	kafka_config "slotkeeper/pkg/kafka/config"
	kafka_middleware "slotkeeper/pkg/kafka/middleware"
	"slotkeeper/pkg/lock"
)

const ServiceName = "holds"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	if cfg.LockBackend == config.LockBackendRedis {
		cfg.SetRedis()
	}
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Holds service")
	serverApp := app.NewApplication(cfg)

	publisher, closePublisher := newPublisher(cfg)
	serverApp.OnShutdown(closePublisher)

	handlers, sweeper := initServices(cfg, publisher)
	serverApp.SetApp(handlers)
	if err := serverApp.AddCronJob("hold-sweeper", cfg.HoldSweepCron, sweeper.Run); err != nil {
		cfg.Log.Fatal("Invalid hold sweep schedule", "spec", cfg.HoldSweepCron, "error", err)
	}
	serverApp.Run()
}

func initServices(cfg *config.Config, publisher events.Publisher) (contracts.Handlers, *service.Sweeper) {
	locker, err := lock.New(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to create locker", "backend", cfg.LockBackend, "error", err)
	}

	clk := clock.Real()
	holdValidator := validator.NewHoldValidator(cfg.Log)
	holdRepo := repository.NewMongoHoldRepository(cfg)

	ledger := capacityservice.NewLedger(capacityrepository.NewMongoCapacityRepository(cfg), locker, clk, cfg)
	policyService := service.NewPolicyService(repository.NewMongoPolicyRepository(cfg), holdValidator, clk, cfg)
	holdService := service.NewHoldService(
		holdRepo,
		policyService,
		ledger,
		locker,
		client.NewAvailabilityClient(cfg.AvailabilityServiceURL, cfg.RequestTimeout),
		publisher,
		holdValidator,
		clk,
		cfg,
	)

	cfg.Log.Info("Holds service initialized",
		"database", cfg.MongoDatabaseName,
		"lock_backend", cfg.LockBackend,
		"kafka_enabled", cfg.KafkaEnabled,
	)
	return contracts.Handlers{
		handler.NewPolicyHandler(policyService, cfg.Log),
		handler.NewHoldHandler(holdService, cfg.Log),
		handler.NewPoolHandler(ledger, cfg.Log),
	}, service.NewSweeper(holdService, holdRepo, clk, cfg)
}

// newPublisher returns the hold event publisher and its close hook. Without Kafka, events are dropped.
func newPublisher(cfg *config.Config) (events.Publisher, func()) {
	if !cfg.KafkaEnabled {
		cfg.Log.Warn("Kafka disabled, hold events will not be published")
		return events.NopPublisher{}, func() {}
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.KafkaHoldEventsTopic, cfg.KafkaDLQTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "topic", cfg.KafkaHoldEventsTopic, "error", err)
	}
	metrics := kafka_middleware.NewMetrics()
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	producer.Use(metrics.ProducerMiddleware())

	return events.NewKafkaPublisher(producer, ServiceName), func() {
		cfg.Log.Info("Kafka producer stats", "stats", metrics.Snapshot())
		if err := producer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka producer", "error", err)
		}
	}
}
