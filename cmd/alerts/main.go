package main

import (
	"context"
	"slotkeeper/internal/alerts/handler"
	"slotkeeper/internal/alerts/repository"
	"slotkeeper/internal/alerts/service"
	holdrepository "slotkeeper/internal/holds/repository"
	holdservice "slotkeeper/internal/holds/service"
	"slotkeeper/internal/holds/validator"
	"slotkeeper/pkg/app"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	"slotkeeper/pkg/events"
	"slotkeeper/pkg/kafka"
	kafka_config "slotkeeper/pkg/kafka/config"
	kafka_middleware "slotkeeper/pkg/kafka/middleware"
	"slotkeeper/pkg/lock"
)

const ServiceName = "alerts"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	if cfg.LockBackend == config.LockBackendRedis {
		cfg.SetRedis()
	}
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Alerts service")
	serverApp := app.NewApplication(cfg)

	var kafkaCfg *kafka_config.Config
	publisher := events.Publisher(events.NopPublisher{})
	if cfg.KafkaEnabled {
		var err error
		if kafkaCfg, err = kafka_config.Load(); err != nil {
			cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
		}
		kafkaCfg.LogConfiguration(cfg.Log)
		publisher = newPublisher(cfg, kafkaCfg, serverApp)
	} else {
		cfg.Log.Warn("Kafka disabled, alerts follow the recompute schedule only")
	}

	alertService := initServices(cfg, publisher)
	serverApp.SetApp(handler.NewAlertHandler(alertService, cfg.Log))
	if err := serverApp.AddCronJob("alert-recompute", cfg.AlertRecomputeCron, alertService.Run); err != nil {
		cfg.Log.Fatal("Invalid alert recompute schedule", "spec", cfg.AlertRecomputeCron, "error", err)
	}
	if kafkaCfg != nil {
		startConsumer(cfg, kafkaCfg, alertService, serverApp)
	}
	serverApp.Run()
}

func initServices(cfg *config.Config, publisher events.Publisher) service.AlertService {
	locker, err := lock.New(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to create locker", "backend", cfg.LockBackend, "error", err)
	}

	clk := clock.Real()
	policies := holdservice.NewPolicyService(
		holdrepository.NewMongoPolicyRepository(cfg),
		validator.NewHoldValidator(cfg.Log),
		clk,
		cfg,
	)
	alertService := service.NewAlertService(
		repository.NewMongoAlertRepository(cfg),
		holdrepository.NewMongoHoldRepository(cfg),
		policies,
		locker,
		publisher,
		clk,
		cfg,
	)

	cfg.Log.Info("Alerts service initialized",
		"database", cfg.MongoDatabaseName,
		"window_min", cfg.AlertWindowMin,
		"grace_min", cfg.AlertGraceMin,
		"max_age", cfg.AlertMaxAge,
	)
	return alertService
}

func newPublisher(cfg *config.Config, kafkaCfg *kafka_config.Config, serverApp *app.Application) events.Publisher {
	producer, err := kafka.NewProducer(kafkaCfg, cfg.KafkaAlertEventsTopic, cfg.KafkaDLQTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "topic", cfg.KafkaAlertEventsTopic, "error", err)
	}
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))

	serverApp.OnShutdown(func() {
		if err := producer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka producer", "error", err)
		}
	})
	return events.NewKafkaPublisher(producer, ServiceName)
}

func startConsumer(cfg *config.Config, kafkaCfg *kafka_config.Config, alertService service.AlertService, serverApp *app.Application) {
	consumer, err := kafka.NewConsumer(
		kafkaCfg,
		cfg.KafkaHoldEventsTopic,
		cfg.KafkaConsumerGroup,
		cfg.KafkaDLQTopic,
		service.HoldEventHandler(alertService, cfg.Log),
		cfg.Log,
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "topic", cfg.KafkaHoldEventsTopic, "error", err)
	}

	metrics := kafka_middleware.NewMetrics()
	consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
	consumer.Use(metrics.ConsumerMiddleware())

	serverApp.AddWorker("hold-events-consumer", func(ctx context.Context) error {
		return consumer.Start(ctx)
	})
	serverApp.OnShutdown(func() {
		cfg.Log.Info("Kafka consumer stats", "stats", metrics.Snapshot(), "lag", consumer.Lag())
		if err := consumer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka consumer", "error", err)
		}
	})
}
