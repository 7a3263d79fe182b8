package main

import (
	"context"
	"slotkeeper/internal/availability/handler"
	"slotkeeper/internal/availability/repository"
	"slotkeeper/internal/availability/service"
	"slotkeeper/internal/availability/validator"
	tracehandler "slotkeeper/internal/traces/handler"
	tracerepository "slotkeeper/internal/traces/repository"
	traceservice "slotkeeper/internal/traces/service"
	"slotkeeper/pkg/app"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	"slotkeeper/pkg/contracts"
)

const ServiceName = "availability"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Availability service")
	handlers, recorder := initServices(cfg)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(handlers)
	serverApp.OnShutdown(func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = recorder.Close(ctx)
	})
	serverApp.Run()
}

func initServices(cfg *config.Config) (contracts.Handlers, *traceservice.Recorder) {
	clk := clock.Real()
	calendarRepo := repository.NewMongoCalendarRepository(cfg)
	ruleRepo := repository.NewMongoRuleRepository(cfg)
	dependencyRepo := repository.NewMongoDependencyRepository(cfg)
	runRepo := tracerepository.NewMongoRunRepository(cfg)

	recorder := traceservice.NewRecorder(runRepo, cfg)
	checker := service.NewDependencyChecker(dependencyRepo, calendarRepo, cfg.Log)
	ruleStore := service.NewRuleStore(
		calendarRepo,
		ruleRepo,
		dependencyRepo,
		checker,
		validator.NewAvailabilityValidator(cfg.Log),
		clk,
		cfg,
	)
	availabilityService := service.NewAvailabilityService(
		service.NewCompositor(calendarRepo, ruleRepo),
		service.NewEvaluator(cfg.MaxEvaluationWindow),
		checker,
		recorder,
		clk,
		cfg,
	)

	cfg.Log.Info("Availability service initialized",
		"database", cfg.MongoDatabaseName,
		"trace_workers", cfg.TraceWorkers,
		"trace_buffer", cfg.TraceBufferSize,
	)
	return contracts.Handlers{
		handler.NewCalendarHandler(ruleStore, cfg.Log),
		handler.NewAvailabilityHandler(availabilityService, cfg.Log),
		tracehandler.NewRunHandler(traceservice.NewRunService(runRepo, cfg), cfg.Log),
	}, recorder
}
